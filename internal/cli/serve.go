package cli

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"binmap/internal/adapters/rpc"
	"binmap/internal/blob"
	"binmap/internal/config"
	"binmap/internal/core"
	"binmap/internal/infra/events"
	"binmap/internal/infra/events/redisstream"
	"binmap/internal/infra/events/wshub"
	"binmap/internal/infra/metrics"
)

// ServeCmd returns the serve command.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the RPC API, live feed and metrics",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, a.Close()) }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			handler, err := a.handler(ctx)
			if err != nil {
				return err
			}
			ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", a.cfg.HTTP.Addr, err)
			}
			return a.serve(ctx, ln, handler)
		},
	}
}

// handler wires the engine, its sinks and the HTTP adapter from config.
func (a *app) handler(ctx context.Context) (*rpc.Handler, error) {
	hub := wshub.New(a.logger)
	sinks := []events.Publisher{hub}
	if a.cfg.Redis.Addr != "" {
		pub, err := redisstream.Dial(ctx, a.cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pub.Close)
		sinks = append(sinks, pub)
	}
	blobs, err := blob.Open(ctx, a.cfg.Blob)
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	opts := []core.Option{
		core.WithNotifier(events.NewMulti(sinks...)),
		core.WithBlobStore(blobs),
	}
	var metricsHandler http.Handler
	switch a.cfg.Observe.Metrics {
	case config.MetricsExpvar:
		opts = append(opts, core.WithMetrics(core.NewExpvarMetricsRecorder("")))
		metricsHandler = expvar.Handler()
	default:
		recorder := metrics.NewPrometheusRecorder()
		opts = append(opts, core.WithMetrics(recorder))
		metricsHandler = recorder.Handler()
	}
	if path := a.cfg.Observe.TraceFile; path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}
	svc, err := a.service(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &rpc.Handler{
		Service:   svc,
		Directory: a.dir,
		Hub:       hub,
		Metrics:   metricsHandler,
		Logger:    a.logger,
	}, nil
}

// serve runs the HTTP server until ctx ends, then shuts it down within the
// configured timeout.
func (a *app) serve(ctx context.Context, ln net.Listener, handler http.Handler) error {
	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
