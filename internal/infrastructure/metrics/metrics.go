// Package metrics expone en Prometheus los eventos de firma y del codec de contenedores.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jhoicas/siga-gateway/internal/application/container"
	"github.com/jhoicas/siga-gateway/internal/application/signing"
	"github.com/jhoicas/siga-gateway/internal/domain/entity"
)

const namespace = "siga"

// Recorder colectores del gateway registrados en su propio registro.
type Recorder struct {
	registry *prometheus.Registry

	signingStarted   *prometheus.CounterVec
	signingCompleted *prometheus.CounterVec
	signingRejected  *prometheus.CounterVec
	providerStatus   *prometheus.CounterVec

	containersImported prometheus.Counter
	containerSize      prometheus.Histogram
	containersRejected *prometheus.CounterVec
	sessionsExpired    prometheus.Counter
}

var (
	_ signing.EventRecorder   = (*Recorder)(nil)
	_ container.EventRecorder = (*Recorder)(nil)
)

// NewRecorder crea y registra los colectores (más los de proceso y runtime de Go).
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		signingStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "signing", Name: "started_total",
			Help: "Operaciones de firma iniciadas por canal.",
		}, []string{"signing_type"}),
		signingCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "signing", Name: "completed_total",
			Help: "Firmas agregadas a un contenedor por canal.",
		}, []string{"signing_type"}),
		signingRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "signing", Name: "rejected_total",
			Help: "Llamadas de firma rechazadas por canal y motivo.",
		}, []string{"signing_type", "reason"}),
		providerStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "provider", Name: "status_total",
			Help: "Estados devueltos por los proveedores de identidad.",
		}, []string{"signing_type", "status"}),
		containersImported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "container", Name: "imported_total",
			Help: "Contenedores hashcode importados.",
		}),
		containerSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "container", Name: "exported_bytes",
			Help:    "Tamaño de los contenedores exportados.",
			Buckets: prometheus.ExponentialBuckets(1<<10, 4, 8),
		}),
		containersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "container", Name: "rejected_total",
			Help: "Contenedores rechazados por el codec por operación.",
		}, []string{"op"}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "session", Name: "expired_total",
			Help: "Sesiones eliminadas por expiración.",
		}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.signingStarted, r.signingCompleted, r.signingRejected, r.providerStatus,
		r.containersImported, r.containerSize, r.containersRejected, r.sessionsExpired,
	)
	return r
}

// Registry registro a exponer en /metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) SigningStarted(t entity.SigningType) {
	r.signingStarted.WithLabelValues(string(t)).Inc()
}

func (r *Recorder) SigningCompleted(t entity.SigningType) {
	r.signingCompleted.WithLabelValues(string(t)).Inc()
}

func (r *Recorder) SigningRejected(t entity.SigningType, reason string) {
	r.signingRejected.WithLabelValues(string(t), reason).Inc()
}

func (r *Recorder) ProviderStatus(t entity.SigningType, status entity.ProviderStatus) {
	r.providerStatus.WithLabelValues(string(t), string(status)).Inc()
}

func (r *Recorder) ContainerImported(int, int) {
	r.containersImported.Inc()
}

func (r *Recorder) ContainerExported(bytes int) {
	r.containerSize.Observe(float64(bytes))
}

func (r *Recorder) ContainerRejected(op string) {
	r.containersRejected.WithLabelValues(op).Inc()
}

// SessionsExpired suma las sesiones borradas por el janitor.
func (r *Recorder) SessionsExpired(n int) {
	r.sessionsExpired.Add(float64(n))
}
