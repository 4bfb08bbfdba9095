package solver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiban/rota/internal/config"
	apperrors "github.com/paiban/rota/pkg/errors"
	"github.com/paiban/rota/pkg/model"
)

func newTestGateway(t *testing.T, h http.HandlerFunc, debug *DebugRecorder) *Gateway {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewGateway(config.SolverConfig{URL: srv.URL}, debug)
}

func minimalRequest() *Request {
	return &Request{
		Horizon:      Horizon{Start: "2025-01-01", End: "2025-01-01"},
		ShiftTypes:   []model.ShiftType{},
		Staff:        []StaffMember{},
		Demand:       []DemandSlot{},
		Locks:        []LockedSlot{},
		Preferences:  []PreferenceSlot{},
		Objective:    ObjectiveFull,
		TimeBudgetMs: 10000,
		Substitution: map[string][]string{},
	}
}

func TestSolveFull_Success(t *testing.T) {
	var gotPath string
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"solutionId":"s-1","assignments":[{"staffId":"` + uuid.NewString() + `","shiftTypeId":"` + uuid.NewString() + `","wardId":"` + uuid.NewString() + `","date":"2025-01-01","slot":"Night"}],"metrics":{"hardViolations":0,"solveMs":12},"diagnostics":{"infeasible":false}}`))
	}, nil)

	resp, err := g.SolveFull(context.Background(), minimalRequest())

	require.NoError(t, err)
	assert.Equal(t, "/solve_full", gotPath)
	assert.Equal(t, "s-1", resp.SolutionID)
	assert.Len(t, resp.Assignments, 1)
	assert.Equal(t, int64(12), resp.Metrics.SolveMs)
	assert.NotNil(t, resp.Diagnostics.Unfilled)
	assert.NotNil(t, resp.Diagnostics.Notes)
}

func TestSolveRepair_SendsEvents(t *testing.T) {
	var body map[string]json.RawMessage
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/solve_repair", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Write([]byte(`{"solutionId":"r-1","assignments":[],"metrics":{},"diagnostics":{}}`))
	}, nil)

	staffID := uuid.New()
	events := []model.DisruptionEvent{{Type: model.DisruptionSickness, Date: "2025-01-01", StaffID: &staffID, Payload: map[string]interface{}{}}}
	_, err := g.SolveRepair(context.Background(), minimalRequest(), events)

	require.NoError(t, err)
	require.Contains(t, body, "events")
	require.Contains(t, body, "horizon")
	var sent []model.DisruptionEvent
	require.NoError(t, json.Unmarshal(body["events"], &sent))
	require.Len(t, sent, 1)
	assert.Equal(t, model.DisruptionSickness, sent[0].Type)
}

func TestGateway_FailureMapping(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		budget  int
		code    apperrors.Code
	}{
		{
			name: "422 映射为无可行解",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte(`{"diagnostics":{"unfilled":[{"date":"2025-01-01","slot":"Night","skill":"GeneralCare","missing":1}],"infeasible":true,"notes":["no staff"]}}`))
			},
			budget: 10000,
			code:   apperrors.CodeInfeasible,
		},
		{
			name: "超出时间预算",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-time.After(2 * time.Second):
				case <-r.Context().Done():
				}
			},
			budget: 50,
			code:   apperrors.CodeTimeout,
		},
		{
			name: "其他状态码",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "engine crashed", http.StatusInternalServerError)
			},
			budget: 10000,
			code:   apperrors.CodeGatewayError,
		},
		{
			name: "响应无法解析",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(`not json`))
			},
			budget: 10000,
			code:   apperrors.CodeGatewayError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGateway(t, tt.handler, nil)
			req := minimalRequest()
			req.TimeBudgetMs = tt.budget

			_, err := g.SolveFull(context.Background(), req)

			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
		})
	}
}

func TestGateway_InfeasibleCarriesDiagnostics(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"unfilled":[],"notes":["horizon too short"]}`))
	}, nil)

	_, err := g.SolveFull(context.Background(), minimalRequest())

	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	diag, ok := appErr.Fields["diagnostics"].(Diagnostics)
	require.True(t, ok)
	assert.True(t, diag.Infeasible)
	assert.Equal(t, []string{"horizon too short"}, diag.Notes)
}

func TestGateway_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewGateway(config.SolverConfig{URL: url}, nil).SolveFull(context.Background(), minimalRequest())

	assert.Equal(t, apperrors.CodeGatewayError, apperrors.GetCode(err))
}

func TestGateway_DefaultBudgets(t *testing.T) {
	g := NewGateway(config.SolverConfig{}, nil)

	assert.Equal(t, "http://localhost:8090", g.baseURL)
	assert.Equal(t, DefaultFullBudgetMs, budgetOr(0, g.fullBudgetMs))
	assert.Equal(t, DefaultRepairBudgetMs, budgetOr(0, g.repairBudgetMs))
	assert.Equal(t, 5000, budgetOr(5000, g.repairBudgetMs))
}

func TestGateway_WritesDebugArtifacts(t *testing.T) {
	dir := t.TempDir()
	debug := NewDebugRecorder(dir)
	g := newTestGateway(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"solutionId":"dbg","assignments":[],"metrics":{},"diagnostics":{}}`))
	}, debug)

	_, err := g.SolveFull(context.Background(), minimalRequest())
	require.NoError(t, err)
	debug.Flush()

	last, err := debug.Last()
	require.NoError(t, err)
	assert.Contains(t, string(last.Request), `"objective":"full"`)
	assert.Contains(t, string(last.Response), `"solutionId":"dbg"`)
}

func TestGateway_DebugArtifactsAfterTimeout(t *testing.T) {
	debug := NewDebugRecorder(t.TempDir())
	var calls atomic.Int32
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) > 1 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(300 * time.Millisecond):
			}
		}
		w.Write([]byte(`{"solutionId":"sol-1","assignments":[],"metrics":{},"diagnostics":{}}`))
	}, debug)

	_, err := g.SolveFull(context.Background(), minimalRequest())
	require.NoError(t, err)

	slow := minimalRequest()
	slow.Horizon = Horizon{Start: "2025-02-02", End: "2025-02-02"}
	slow.TimeBudgetMs = 50
	_, err = g.SolveFull(context.Background(), slow)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeTimeout, apperrors.GetCode(err))
	debug.Flush()

	last, err := debug.Last()
	require.NoError(t, err)
	assert.Contains(t, string(last.Request), "2025-02-02")
	assert.NotContains(t, string(last.Response), "sol-1")
	assert.Contains(t, string(last.Response), `"code":"TIMEOUT"`)
}

func TestGateway_SendsEffectiveBudget(t *testing.T) {
	var seen atomic.Int64
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			TimeBudgetMs int64 `json:"timeBudgetMs"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		seen.Store(body.TimeBudgetMs)
		w.Write([]byte(`{"solutionId":"b","assignments":[],"metrics":{},"diagnostics":{}}`))
	}, nil)

	tests := []struct {
		name   string
		budget int
		repair bool
		want   int64
	}{
		{name: "全量未指定预算", budget: 0, want: DefaultFullBudgetMs},
		{name: "修复未指定预算", budget: 0, repair: true, want: DefaultRepairBudgetMs},
		{name: "调用方预算", budget: 20000, want: 20000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := minimalRequest()
			req.TimeBudgetMs = tt.budget

			var err error
			if tt.repair {
				_, err = g.SolveRepair(context.Background(), req, nil)
			} else {
				_, err = g.SolveFull(context.Background(), req)
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, seen.Load())
			assert.Equal(t, tt.budget, req.TimeBudgetMs, "调用方的请求不被修改")
		})
	}
}

func TestResponse_ToAssignmentsDefaultsWard(t *testing.T) {
	scheduleID, wardID, otherWard := uuid.New(), uuid.New(), uuid.New()
	resp := &Response{Assignments: []AssignmentSlot{
		{StaffID: uuid.New(), ShiftTypeID: uuid.New(), Date: "2025-01-01", Slot: "Night"},
		{StaffID: uuid.New(), ShiftTypeID: uuid.New(), WardID: otherWard, Date: "2025-01-02", Slot: "Night"},
	}}

	rows := resp.ToAssignments(scheduleID, wardID)

	require.Len(t, rows, 2)
	assert.Equal(t, wardID, rows[0].WardID)
	assert.Equal(t, otherWard, rows[1].WardID)
	assert.Equal(t, scheduleID, rows[1].ScheduleID)
}
