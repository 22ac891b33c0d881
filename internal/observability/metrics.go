package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TCPConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracker_tcp_connections_total",
		Help: "Total de conexiones TCP aceptadas",
	})
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_tcp_connections_active",
		Help: "Conexiones TCP abiertas",
	})
	FramesRecv = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_frames_received_total",
		Help: "Total de frames delimitados recibidos",
	}, []string{"protocol"})
	DecodeResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_decode_results_total",
		Help: "Resultado del decode por frame (ok, unrecognized, unknown_device, invalid_field, error)",
	}, []string{"protocol", "result"})
	AcksWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_acks_written_total",
		Help: "Acks escritos al dispositivo",
	}, []string{"protocol", "command"})
	FilterDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_filter_decisions_total",
		Help: "Decisiones del filtro por resultado y motivo",
	}, []string{"outcome", "reason"})
	DeliveriesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_deliveries_total",
		Help: "Entregas completadas por sink",
	}, []string{"sink"})
	DeliveryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_delivery_errors_total",
		Help: "Errores de entrega por sink",
	}, []string{"sink"})
	DeliveriesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_deliveries_dropped_total",
		Help: "Entregas descartadas por cola llena",
	}, []string{"sink"})
	DirectoryReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracker_directory_reloads_total",
		Help: "Recargas del directorio de dispositivos (ok, error)",
	}, []string{"result"})
	DirectoryDevices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracker_directory_devices",
		Help: "Dispositivos en el snapshot vigente",
	})
	DecodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracker_decode_latency_seconds",
		Help:    "Latencia de decode + filtro por frame",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveDecodeLatency(start time.Time) {
	DecodeLatency.Observe(time.Since(start).Seconds())
}

// StartMetricsServer expone /metrics y /healthz hasta que ctx se cancele.
func StartMetricsServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
