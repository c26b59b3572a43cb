package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yuxishi/aws-limit-checker/internal/aws"
	"github.com/yuxishi/aws-limit-checker/internal/cache"
	"github.com/yuxishi/aws-limit-checker/internal/handler"
	"github.com/yuxishi/aws-limit-checker/internal/metrics"
	"github.com/yuxishi/aws-limit-checker/internal/model"
	"github.com/yuxishi/aws-limit-checker/internal/runner"
)

const metricsNamespace = "limitchecker"

func serveCmd(root *rootOptions) *cobra.Command {
	var (
		port     string
		noAlerts bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest scan over HTTP and rescan periodically",
		Long: `Run an HTTP server exposing the latest scan as JSON and HTML, plus
Prometheus metrics on /metrics. A scan runs at startup and then every
server.scan_interval_minutes; alerts are sent after each scan.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.load(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()
			if port != "" {
				a.cfg.Server.Port = port
			}
			return a.serve(cmd.Context(), !noAlerts)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides config and PORT)")
	cmd.Flags().BoolVar(&noAlerts, "no-alerts", false, "Do not notify alert providers")
	return cmd
}

func (a *app) serve(ctx context.Context, withAlerts bool) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := a.registry()
	if err != nil {
		return err
	}
	m := metrics.NewMetrics(metricsNamespace)
	runOpts, err := a.runnerOptions(ctx, withAlerts, m)
	if err != nil {
		return err
	}
	scanner := runner.New(registry, runOpts)

	reports := cache.New[*runner.Report](a.cfg.GetCacheTTL())
	defer reports.Stop()

	regions := func(ctx context.Context) ([]model.Region, error) {
		return aws.GetRegions(ctx, a.factory)
	}
	h := handler.New(scanner, reports, regions, a.logger)

	if a.cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(a.logger))
	h.Register(engine, m.Handler())

	go scanLoop(ctx, scanner, h, a.cfg.GetScanInterval(), a.logger)

	port := a.cfg.GetPort()
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Starting server", zap.String("addr", "http://localhost:"+port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type reportScanner interface {
	Run(ctx context.Context) (*runner.Report, error)
}

type reportStore interface {
	Store(report *runner.Report)
}

// scanLoop scans immediately and then on every tick until ctx is done.
// A non-positive interval scans once.
func scanLoop(ctx context.Context, s reportScanner, store reportStore, interval time.Duration, logger *zap.Logger) {
	scan := func() {
		report, err := s.Run(ctx)
		if err != nil {
			logger.Error("Scheduled scan failed", zap.Error(err))
			return
		}
		store.Store(report)
	}

	scan()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			scan()
		}
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	logger = logger.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
