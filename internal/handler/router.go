package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/paiban/rota/internal/config"
	"github.com/paiban/rota/internal/metrics"
	"github.com/paiban/rota/internal/middleware"
)

// Pinger 健康检查依赖
type Pinger interface {
	Health(ctx context.Context) error
}

// BuildInfo 构建信息
type BuildInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"buildTime"`
	GitCommit string `json:"gitCommit"`
}

// RouterOptions 路由依赖
type RouterOptions struct {
	Solve     *SolveHandler
	Policies  *PolicyHandler
	Schedules *ScheduleHandler
	DB        Pinger
	Build     BuildInfo
	API       config.APIConfig
	Metrics   config.MetricsConfig
}

// NewRouter 注册全部路由并挂载中间件
//
// 中间件执行顺序：requestID -> rateLimit -> cors -> logging -> handler
func NewRouter(opts RouterOptions) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logging())

	r.HandleFunc("/health", health(opts.DB)).Methods(http.MethodGet)
	r.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, opts.Build)
	}).Methods(http.MethodGet)
	if opts.Metrics.Enabled {
		path := opts.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, metrics.Handler()).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api/v1").Subrouter()
	if opts.Solve != nil {
		api.HandleFunc("/schedules/solve", opts.Solve.Solve).Methods(http.MethodPost)
		api.HandleFunc("/schedules/repair", opts.Solve.Repair).Methods(http.MethodPost)
		api.HandleFunc("/solver/debug", opts.Solve.Debug).Methods(http.MethodGet)
	}
	if opts.Schedules != nil {
		api.HandleFunc("/schedules", opts.Schedules.Create).Methods(http.MethodPost)
		api.HandleFunc("/schedules/{id}/publish", opts.Schedules.Publish).Methods(http.MethodPost)
	}
	if opts.Policies != nil {
		api.HandleFunc("/policies", opts.Policies.Create).Methods(http.MethodPost)
		api.HandleFunc("/policies/{id}", opts.Policies.Update).Methods(http.MethodPut)
		api.HandleFunc("/policies/{id}/deactivate", opts.Policies.Deactivate).Methods(http.MethodPost)
	}

	var h http.Handler = r
	h = middleware.Cors(opts.API.CORSOrigins...)(h)
	if opts.API.RateLimit > 0 {
		h = middleware.RateLimit(middleware.RateLimitConfig{RequestsPerPeriod: opts.API.RateLimit})(h)
	}
	return middleware.RequestID()(h)
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{"status": "ok", "service": "rota"}
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Health(ctx); err != nil {
				status["status"] = "degraded"
				status["database"] = err.Error()
				respondJSON(w, http.StatusServiceUnavailable, status)
				return
			}
		}
		respondJSON(w, http.StatusOK, status)
	}
}
