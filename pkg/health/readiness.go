package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/ridecore/pkg/resilience"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// DependencyStatus is the outcome of one check.
type DependencyStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Message   string `json:"message,omitempty"`
	Critical  bool   `json:"critical"`
}

// Report aggregates every dependency and breaker.
type Report struct {
	Status        string             `json:"status"`
	Service       string             `json:"service"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Dependencies  []DependencyStatus `json:"dependencies"`
	Breakers      map[string]bool    `json:"circuit_breakers,omitempty"`
	CheckedAt     time.Time          `json:"checked_at"`
}

type namedChecker struct {
	name     string
	check    Checker
	critical bool
}

// Readiness runs registered checks concurrently. A failing critical check makes the
// service unhealthy; a failing optional check or an open breaker only degrades it.
type Readiness struct {
	service  string
	timeout  time.Duration
	started  time.Time
	mu       sync.RWMutex
	checks   []namedChecker
	breakers map[string]*resilience.CircuitBreaker
}

func NewReadiness(service string, timeout time.Duration) *Readiness {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Readiness{
		service:  service,
		timeout:  timeout,
		started:  time.Now(),
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

// Add registers a dependency check.
func (r *Readiness) Add(name string, check Checker, critical bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, namedChecker{name: name, check: check, critical: critical})
}

// AddBreaker exposes a circuit breaker's state in the report.
func (r *Readiness) AddBreaker(name string, breaker *resilience.CircuitBreaker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.breakers[name] = breaker
}

// Check runs every check under the configured timeout.
func (r *Readiness) Check(ctx context.Context) Report {
	r.mu.RLock()
	checks := append([]namedChecker(nil), r.checks...)
	breakers := make(map[string]bool, len(r.breakers))
	for name, breaker := range r.breakers {
		breakers[name] = breaker.Allow()
	}
	r.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	results := make([]DependencyStatus, len(checks))
	var wg sync.WaitGroup
	for i, nc := range checks {
		wg.Add(1)
		go func(i int, nc namedChecker) {
			defer wg.Done()
			start := time.Now()
			status := DependencyStatus{Name: nc.name, Status: StatusHealthy, Critical: nc.critical}
			if err := nc.check(ctx); err != nil {
				status.Status = StatusUnhealthy
				status.Message = err.Error()
			}
			status.LatencyMs = time.Since(start).Milliseconds()
			results[i] = status
		}(i, nc)
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	overall := StatusHealthy
	for _, res := range results {
		if res.Status == StatusHealthy {
			continue
		}
		if res.Critical {
			overall = StatusUnhealthy
			break
		}
		overall = StatusDegraded
	}
	if overall == StatusHealthy {
		for _, allows := range breakers {
			if !allows {
				overall = StatusDegraded
				break
			}
		}
	}

	return Report{
		Status:        overall,
		Service:       r.service,
		UptimeSeconds: int64(time.Since(r.started).Seconds()),
		Dependencies:  results,
		Breakers:      breakers,
		CheckedAt:     time.Now().UTC(),
	}
}

// Handler serves the readiness report: 503 when unhealthy, 200 otherwise.
func (r *Readiness) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		report := r.Check(c.Request.Context())
		code := http.StatusOK
		if report.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	}
}

// Liveness always reports the process as alive.
func Liveness(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": StatusHealthy, "service": service})
	}
}
