package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/paiban/rota/internal/config"
	apperrors "github.com/paiban/rota/pkg/errors"
	"github.com/paiban/rota/pkg/logger"
	"github.com/paiban/rota/pkg/model"
)

const (
	// DefaultFullBudgetMs 全量求解默认时间预算
	DefaultFullBudgetMs = 300000
	// DefaultRepairBudgetMs 修复求解默认时间预算
	DefaultRepairBudgetMs = 60000

	pathSolveFull   = "/solve_full"
	pathSolveRepair = "/solve_repair"

	maxErrorBody = 2048
)

// Gateway 求解引擎同步调用客户端
type Gateway struct {
	baseURL        string
	client         *http.Client
	fullBudgetMs   int
	repairBudgetMs int
	debug          *DebugRecorder
}

// NewGateway 创建网关，debug 为 nil 时不记录调试文件
func NewGateway(cfg config.SolverConfig, debug *DebugRecorder) *Gateway {
	g := &Gateway{
		baseURL:        strings.TrimRight(cfg.URL, "/"),
		client:         &http.Client{},
		fullBudgetMs:   cfg.FullBudgetMs,
		repairBudgetMs: cfg.RepairBudgetMs,
		debug:          debug,
	}
	if g.baseURL == "" {
		g.baseURL = "http://localhost:8090"
	}
	if g.fullBudgetMs <= 0 {
		g.fullBudgetMs = DefaultFullBudgetMs
	}
	if g.repairBudgetMs <= 0 {
		g.repairBudgetMs = DefaultRepairBudgetMs
	}
	return g
}

// SolveFull 全量求解
func (g *Gateway) SolveFull(ctx context.Context, req *Request) (*Response, error) {
	body := withBudget(req, g.fullBudgetMs)
	return g.call(ctx, pathSolveFull, body, body.TimeBudgetMs)
}

// SolveRepair 修复求解，events 应已归一化
func (g *Gateway) SolveRepair(ctx context.Context, req *Request, events []model.DisruptionEvent) (*Response, error) {
	if events == nil {
		events = []model.DisruptionEvent{}
	}
	body := repairRequest{Request: withBudget(req, g.repairBudgetMs), Events: events}
	return g.call(ctx, pathSolveRepair, body, body.TimeBudgetMs)
}

// withBudget 返回带生效预算的浅拷贝，引擎收到的预算与网关等待的时长一致
func withBudget(req *Request, fallback int) *Request {
	c := *req
	c.TimeBudgetMs = budgetOr(req.TimeBudgetMs, fallback)
	return &c
}

func budgetOr(budgetMs, fallback int) int {
	if budgetMs > 0 {
		return budgetMs
	}
	return fallback
}

func (g *Gateway) call(ctx context.Context, path string, payload interface{}, budgetMs int) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.GatewayError(fmt.Errorf("序列化求解请求失败: %w", err))
	}
	exchange := g.debug.Begin(body)

	ctx, cancel := context.WithTimeout(ctx, time.Duration(budgetMs)*time.Millisecond)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		appErr := apperrors.GatewayError(err)
		exchange.Fail(appErr)
		return nil, appErr
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if id := logger.RequestIDFromContext(ctx); id != "" {
		httpReq.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		tErr := g.transportError(ctx, err, budgetMs)
		exchange.Fail(tErr)
		return nil, tErr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		tErr := g.transportError(ctx, err, budgetMs)
		exchange.Fail(tErr)
		return nil, tErr
	}
	exchange.Finish(raw)

	logger.WithContext(ctx).Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("求解引擎已响应")

	switch {
	case resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, apperrors.Infeasible(decodeDiagnostics(raw))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, apperrors.GatewayError(fmt.Errorf("求解引擎返回 %d: %s", resp.StatusCode, truncate(raw)))
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperrors.GatewayError(fmt.Errorf("解析求解响应失败: %w", err))
	}
	out.normalize()
	return &out, nil
}

// transportError 区分超时与其他传输错误
func (g *Gateway) transportError(ctx context.Context, err error, budgetMs int) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperrors.Timeout(budgetMs)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperrors.Timeout(budgetMs)
	}
	return apperrors.GatewayError(err)
}

// decodeDiagnostics 兼容 {"diagnostics": {...}} 与直接返回诊断两种格式
func decodeDiagnostics(raw []byte) Diagnostics {
	var wrapped struct {
		Diagnostics *Diagnostics `json:"diagnostics"`
	}
	var d Diagnostics
	switch {
	case json.Unmarshal(raw, &wrapped) == nil && wrapped.Diagnostics != nil:
		d = *wrapped.Diagnostics
	case json.Unmarshal(raw, &d) == nil:
	default:
		d = Diagnostics{Notes: []string{truncate(raw)}}
	}
	d.Infeasible = true
	d.normalize()
	return d
}

func truncate(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
