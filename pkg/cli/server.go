package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/mchmarny/forecast/pkg/data"
	"github.com/mchmarny/forecast/pkg/logging"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
)

var (
	portFlag = &cli.IntFlag{
		Name:  "port",
		Usage: "Port on which the server will listen (default: server.port from config)",
	}

	serverCmd = &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start local JSON API server",
		Action:  cmdStartServer,
		Flags:   []cli.Flag{portFlag},
	}
)

func cmdStartServer(c *cli.Context) error {
	cfg := getConfig(c)

	port := cfg.Config.Server.Port
	if c.IsSet(portFlag.Name) {
		port = c.Int(portFlag.Name)
	}
	address := fmt.Sprintf("127.0.0.1:%d", port)

	store, err := cfg.Store(c.Context)
	if err != nil {
		return err
	}

	level := cfg.Config.LogLevel
	if c.Bool(debugFlag.Name) {
		level = "debug"
	}
	logger := logging.NewServerLogger(c.App.ErrWriter, level)

	s := &http.Server{
		Addr:           address,
		Handler:        logRequests(logger, makeRouter(store)),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server started", "address", "http://"+address)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error starting server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
		defer cancel()
		if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error shutting down server: %w", err)
		}
		slog.Info("server stopped")
		return nil
	})

	return g.Wait()
}

func makeRouter(s *data.Store) *http.ServeMux {
	mux := http.NewServeMux()

	// Forecasts API
	mux.HandleFunc("GET /api/forecasts", listForecastsAPIHandler(s))
	mux.HandleFunc("POST /api/forecasts", addForecastAPIHandler(s))
	mux.HandleFunc("GET /api/forecasts/{id}", forecastAPIHandler(s))
	mux.HandleFunc("DELETE /api/forecasts/{id}", deleteForecastAPIHandler(s))
	mux.HandleFunc("GET /api/forecasts/{id}/points", pointsAPIHandler(s))
	mux.HandleFunc("POST /api/forecasts/{id}/points", addPointAPIHandler(s))
	mux.HandleFunc("POST /api/forecasts/{id}/resolution", resolveAPIHandler(s))

	// Scores API
	mux.HandleFunc("GET /api/scores/average", averageScoreAPIHandler(s))
	mux.HandleFunc("GET /api/scores/summary", scoreSummaryAPIHandler(s))
	mux.HandleFunc("GET /api/scores/categories", categoryScoresAPIHandler(s))
	mux.HandleFunc("GET /api/scores/calibration", calibrationAPIHandler(s))

	// Posts API
	mux.HandleFunc("GET /api/posts", listPostsAPIHandler(s))
	mux.HandleFunc("GET /api/posts/{slug}", postAPIHandler(s))

	return mux
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}
