package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhfmzl/priceUpdate-BTB/internal/campaign"
	"github.com/zhfmzl/priceUpdate-BTB/internal/model"
	"github.com/zhfmzl/priceUpdate-BTB/internal/monitoring"
	"github.com/zhfmzl/priceUpdate-BTB/internal/query"
	"github.com/zhfmzl/priceUpdate-BTB/internal/resilience"
	"github.com/zhfmzl/priceUpdate-BTB/internal/store"
)

var servePort int

type playerSearcher interface {
	Search(ctx context.Context, opts query.Options) ([]model.PlayerReport, error)
}

type campaignRunner interface {
	Run(ctx context.Context, spec model.CampaignSpec) (*campaign.Result, error)
}

type runReader interface {
	GetRun(ctx context.Context, runID string) (*model.CampaignRun, error)
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.CampaignRun, error)
	DequeueDLQ(ctx context.Context, filter resilience.DLQFilter) ([]resilience.DLQEntry, error)
}

type metricsCollector interface {
	Collect(ctx context.Context, lookbackHours int) (*monitoring.MetricsSnapshot, error)
}

// routerDeps are the services behind the HTTP routes. Any nil field makes
// its routes answer 503.
type routerDeps struct {
	Searcher playerSearcher
	Runner   campaignRunner
	Runs     runReader
	Metrics  metricsCollector
	Lookback int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP service for searches and campaigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := resolvePort(servePort, cfg.Server.Port)
		cfg.Server.Port = port

		env, err := initCampaign(ctx, "serve", envOptions{})
		if err != nil {
			return err
		}
		defer env.Close()

		collector := monitoring.NewCollector(env.Store)
		if cfg.Monitor.Enabled {
			checker := monitoring.NewChecker(collector, monitoring.NewAlerter(cfg.Monitor), cfg.Monitor)
			go checker.Run(ctx)
		}

		return startServer(ctx, buildRouter(ctx, routerDeps{
			Searcher: env.Builder,
			Runner:   env.Runner,
			Runs:     env.Store,
			Metrics:  collector,
			Lookback: cfg.Monitor.LookbackWindowHours,
		}), port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves h on port until ctx is done, then shuts down gracefully.
func startServer(ctx context.Context, h http.Handler, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "server listen")
	}
	return nil
}

// buildRouter wires the HTTP routes. Campaigns started over HTTP run under
// ctx, one at a time: they share a single browser session.
func buildRouter(ctx context.Context, deps routerDeps) http.Handler {
	searcher, runner, runs := deps.Searcher, deps.Runner, deps.Runs
	var campaignActive atomic.Bool

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/players", func(w http.ResponseWriter, req *http.Request) {
		if searcher == nil {
			writeError(w, http.StatusServiceUnavailable, "search unavailable")
			return
		}
		q := req.URL.Query()
		opts := query.Options{Seasons: q["season"], NamePattern: q.Get("name")}
		var err error
		if opts.MinOvr, err = intParam(q.Get("min_ovr")); err != nil {
			writeError(w, http.StatusBadRequest, "min_ovr must be an integer")
			return
		}
		limit, err := intParam(q.Get("limit"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		opts.Limit = int64(limit)

		reports, err := searcher.Search(req.Context(), opts)
		if err != nil {
			zap.L().Error("player search failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "search failed")
			return
		}
		writeJSON(w, http.StatusOK, reports)
	})

	r.Post("/campaigns", func(w http.ResponseWriter, req *http.Request) {
		if runner == nil {
			writeError(w, http.StatusServiceUnavailable, "campaigns unavailable")
			return
		}
		var body struct {
			Seasons   []string `json:"seasons"`
			MinOvr    int      `json:"min_ovr"`
			Grades    []string `json:"grades"`
			EntityIDs []int64  `json:"entity_ids"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(body.Seasons) == 0 && len(body.EntityIDs) == 0 {
			writeError(w, http.StatusBadRequest, "seasons or entity_ids is required")
			return
		}
		grades, err := model.ParseGrades(body.Grades)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		spec := model.CampaignSpec{
			Seasons:   body.Seasons,
			MinOvr:    body.MinOvr,
			Grades:    grades,
			EntityIDs: body.EntityIDs,
		}
		if !runCampaignAsync(ctx, runner, spec, &campaignActive) {
			writeError(w, http.StatusConflict, "a campaign is already running")
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":  "accepted",
			"seasons": spec.Seasons,
		})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		if runs == nil {
			writeError(w, http.StatusServiceUnavailable, "run ledger unavailable")
			return
		}
		limit, err := intParam(req.URL.Query().Get("limit"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		list, err := runs.ListRuns(req.Context(), store.RunFilter{
			Status: model.RunStatus(req.URL.Query().Get("status")),
			Limit:  limit,
		})
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		writeJSON(w, http.StatusOK, list)
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		if runs == nil {
			writeError(w, http.StatusServiceUnavailable, "run ledger unavailable")
			return
		}
		run, err := runs.GetRun(req.Context(), chi.URLParam(req, "id"))
		if eris.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			zap.L().Error("get run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get run failed")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Get("/dlq", func(w http.ResponseWriter, req *http.Request) {
		if runs == nil {
			writeError(w, http.StatusServiceUnavailable, "run ledger unavailable")
			return
		}
		entries, err := runs.DequeueDLQ(req.Context(), resilience.DLQFilter{
			ErrorType: req.URL.Query().Get("error_type"),
			Limit:     100,
		})
		if err != nil {
			zap.L().Error("read dlq failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "read dlq failed")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		if deps.Metrics == nil {
			writeError(w, http.StatusServiceUnavailable, "metrics unavailable")
			return
		}
		hours := deps.Lookback
		if v := req.URL.Query().Get("hours"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "hours must be a positive integer")
				return
			}
			hours = n
		}
		if hours <= 0 {
			hours = 24
		}
		snap, err := deps.Metrics.Collect(req.Context(), hours)
		if err != nil {
			zap.L().Error("collect metrics failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "collect metrics failed")
			return
		}
		writeJSON(w, http.StatusOK, snap)
	})

	return r
}

// runCampaignAsync starts a campaign that outlives the request asking for it.
// It stops with the server context. It returns false without starting when
// active is already set; active is cleared once the campaign returns.
func runCampaignAsync(ctx context.Context, runner campaignRunner, spec model.CampaignSpec, active *atomic.Bool) bool {
	if !active.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer active.Store(false)

		res, err := runner.Run(ctx, spec)
		if err != nil {
			zap.L().Error("campaign failed", zap.Error(err))
			return
		}
		zap.L().Info("campaign complete",
			zap.String("run_id", res.Run.ID),
			zap.Int("written", res.Run.Tally.Written),
		)
	}()
	return true
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
