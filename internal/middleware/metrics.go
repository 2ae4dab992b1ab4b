package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts failed Redis commands by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warbler_redis_errors_total",
		Help: "Total number of failed Redis commands",
	}, []string{"command"})

	// DomainEvents counts successful state changes by kind (signup, follow, like, ...).
	DomainEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warbler_domain_events_total",
		Help: "Total number of applied domain mutations by kind",
	}, []string{"kind"})

	// CSRFRejections counts requests refused for a missing or invalid anti-forgery token.
	CSRFRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warbler_csrf_rejections_total",
		Help: "Total number of requests rejected by CSRF validation",
	})

	promOnce sync.Once
	prom     *fiberprometheus.FiberPrometheus
)

// InitMetrics returns the process-wide HTTP metrics collector. The collectors
// register with the default registry, so repeated calls share one instance.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		prom = fiberprometheus.New(serviceName)
	})
	return prom
}

// MetricsMiddleware records request count and latency.
func MetricsMiddleware(p *fiberprometheus.FiberPrometheus) fiber.Handler {
	return p.Middleware
}
