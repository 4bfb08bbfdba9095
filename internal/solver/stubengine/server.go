package stubengine

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/paiban/rota/internal/solver"
	"github.com/paiban/rota/pkg/logger"
	"github.com/paiban/rota/pkg/model"
)

// requestBody 兼容全量与修复两种请求体
type requestBody struct {
	solver.Request
	Events []model.DisruptionEvent `json:"events"`
}

// Handler 返回引擎的 HTTP 处理器
func (e *Engine) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/solve_full", e.handle(false)).Methods(http.MethodPost)
	r.HandleFunc("/solve_repair", e.handle(true)).Methods(http.MethodPost)
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	return r
}

func (e *Engine) handle(repair bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body requestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "请求体格式错误: " + err.Error()})
			return
		}

		events := body.Events
		if !repair {
			events = nil
		}

		resp, err := e.Solve(r.Context(), &body.Request, events)
		var slotErr *UnknownSlotError
		switch {
		case errors.As(err, &slotErr):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"diagnostics": solver.Diagnostics{
					Unfilled:   []solver.Unfilled{},
					Infeasible: true,
					Notes:      []string{slotErr.Error()},
				},
			})
			return
		case err != nil:
			// 调用方已断开，无需响应
			logger.Warn().Err(err).Msg("桩引擎求解中断")
			return
		}

		logger.Info().
			Bool("repair", repair).
			Int("assignments", len(resp.Assignments)).
			Bool("infeasible", resp.Diagnostics.Infeasible).
			Msg("桩引擎求解完成")
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error().Err(err).Msg("写入响应失败")
	}
}
