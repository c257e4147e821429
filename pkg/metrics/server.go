package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/logger"
)

// Listener exposes /metrics for background processes that have no API router.
type Listener struct {
	server *http.Server
}

// Listen starts serving gatherer on addr in the background. An empty addr
// disables the listener and returns nil.
func Listen(ctx context.Context, logg *logger.Logger, addr string, gatherer prometheus.Gatherer) *Listener {
	if addr == "" {
		return nil
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logg.Info(logg.WithField(ctx, "metrics_addr", addr), "serving metrics")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()
	return &Listener{server: server}
}

// Close stops the listener. It is safe on a nil Listener.
func (l *Listener) Close() {
	if l == nil || l.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = l.server.Shutdown(ctx)
}
