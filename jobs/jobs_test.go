package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/factorybooks/factorybooks/internal/accounting/reports"
	jobmetrics "github.com/factorybooks/factorybooks/internal/jobs"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/ledger/projection"
	"github.com/factorybooks/factorybooks/internal/posting"
	"github.com/factorybooks/factorybooks/internal/shared"
	"github.com/factorybooks/factorybooks/internal/store/memory"
)

var _ posting.IntentPublisher = (*Client)(nil)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMetrics() (*jobmetrics.Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return jobmetrics.NewMetrics(reg), reg
}

func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	next:
		for _, m := range family.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			if m.GetCounter() != nil {
				return m.GetCounter().GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

type capturePublisher struct {
	mu      sync.Mutex
	intents []posting.JournalIntent
}

func (p *capturePublisher) PublishIntent(_ context.Context, intent posting.JournalIntent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents = append(p.intents, intent)
	return nil
}

type fakeProcessor struct {
	err     error
	drained int
	limit   int
	calls   []string
}

func (f *fakeProcessor) ProcessIntent(_ context.Context, id string) error {
	f.calls = append(f.calls, id)
	return f.err
}

func (f *fakeProcessor) DrainIntents(_ context.Context, limit int) (int, error) {
	f.limit = limit
	return f.drained, f.err
}

func intentTask(t *testing.T, id string) *asynq.Task {
	t.Helper()
	task, err := NewJournalIntentTask(id)
	require.NoError(t, err)
	return task
}

func TestJournalIntentTaskPayload(t *testing.T) {
	task := intentTask(t, "intent-1")
	require.Equal(t, TaskJournalIntent, task.Type())
	var payload JournalIntentPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, "intent-1", payload.IntentID)

	_, err := NewJournalIntentTask("  ")
	require.Error(t, err)
}

func TestNewTaskByName(t *testing.T) {
	for _, name := range []string{"intent-sweep", "depreciation", "gl-integrity", "balance-warmup", TaskGLIntegrity} {
		task, err := NewTaskByName(name, 10)
		require.NoError(t, err, name)
		require.NotNil(t, task)
	}
	_, err := NewTaskByName("mail:send", 0)
	require.ErrorIs(t, err, ErrUnknownTask)
}

func TestJournalIntentJobRetryPolicy(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantErr   bool
		skipRetry bool
	}{
		{"posted", nil, false, false},
		{"transient failure is retried", errors.New("journal store unavailable"), true, false},
		{"dead intent is not retried", posting.ErrIntentDead, true, true},
		{"unknown intent is not retried", posting.ErrIntentNotFound, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			metrics, _ := newMetrics()
			proc := &fakeProcessor{err: tc.err}
			job := NewJournalIntentJob(proc, quietLogger(), metrics)
			err := job.Handle(context.Background(), intentTask(t, "intent-9"))
			require.Equal(t, []string{"intent-9"}, proc.calls)
			if !tc.wantErr {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.err)
			require.Equal(t, tc.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestJournalIntentJobRejectsBadPayload(t *testing.T) {
	proc := &fakeProcessor{}
	job := NewJournalIntentJob(proc, quietLogger(), nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskJournalIntent, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Empty(t, proc.calls)
}

func TestJournalIntentJobPostsOutboxIntent(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	cfg := posting.DefaultConfig()
	cfg.JournalMode = posting.JournalOutbox
	orch := posting.NewOrchestrator(store, &shared.MemoryAudit{}, quietLogger(), cfg)
	pub := &capturePublisher{}
	orch.WithPublisher(pub)

	res, err := orch.Post(ctx, shared.System, posting.Candidate{Entry: ledger.LedgerEntry{
		TransactionID:   "TX-1",
		Type:            ledger.TypeIncome,
		Category:        "Sales",
		Amount:          decimal.RequireFromString("1000"),
		IsARAPEntry:     true,
		AssociatedParty: "Acme",
	}})
	require.NoError(t, err)
	require.Len(t, pub.intents, 1)

	metrics, reg := newMetrics()
	job := NewJournalIntentJob(orch, quietLogger(), metrics)
	require.NoError(t, job.Handle(ctx, intentTask(t, res.IntentID)))

	journals, err := store.ListJournals(ctx, time.Time{})
	require.NoError(t, err)
	require.NotEmpty(t, journals)
	require.Equal(t, 1.0, metricValue(t, reg, "factorybooks_journal_intents_total", map[string]string{"outcome": "posted"}))

	check := NewGLIntegrityJob(reports.NewService(store, quietLogger()), quietLogger(), metrics)
	report, err := check.Run(ctx)
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Equal(t, report.Journals, len(journals))
	require.Zero(t, metricValue(t, reg, "factorybooks_gl_imbalance", nil))
}

func TestIntentSweepJob(t *testing.T) {
	metrics, reg := newMetrics()
	proc := &fakeProcessor{drained: 3}
	job := NewIntentSweepJob(proc, 25, quietLogger(), metrics)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIntentSweep, nil)))
	require.Equal(t, 25, proc.limit)
	require.Equal(t, 3.0, metricValue(t, reg, "factorybooks_journal_intents_total", map[string]string{"outcome": "swept"}))

	task, err := NewIntentSweepTask(7)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 7, proc.limit)

	job.BatchSize = 0
	_, err = job.Run(context.Background(), 0)
	require.NoError(t, err)
	require.Equal(t, DefaultSweepLimit, proc.limit)

	proc.err = context.DeadlineExceeded
	require.ErrorIs(t, job.Handle(context.Background(), task), context.DeadlineExceeded)
	require.Equal(t, 1.0, metricValue(t, reg, "factorybooks_jobs_failures_total", map[string]string{"job": TaskIntentSweep}))
}

func TestRetryDelayFollowsOutboxBackoff(t *testing.T) {
	delay := RetryDelay(5*time.Second, time.Minute)
	require.Equal(t, 5*time.Second, delay(0, nil, nil))
	require.Equal(t, 10*time.Second, delay(1, nil, nil))
	require.Equal(t, 40*time.Second, delay(3, nil, nil))
	require.Equal(t, time.Minute, delay(10, nil, nil))
}

type fakeDepreciator struct {
	charged int
	err     error
}

func (f fakeDepreciator) DepreciateAll(context.Context) (int, error) {
	return f.charged, f.err
}

func TestDepreciationJob(t *testing.T) {
	metrics, reg := newMetrics()
	require.NoError(t, NewDepreciationJob(fakeDepreciator{charged: 2}, quietLogger(), metrics).Handle(context.Background(), NewDepreciationRunTask()))
	require.Equal(t, 1.0, metricValue(t, reg, "factorybooks_jobs_total", map[string]string{"job": TaskDepreciationRun, "status": "success"}))

	boom := errors.New("asset A-1: storage unavailable")
	err := NewDepreciationJob(fakeDepreciator{err: boom}, quietLogger(), metrics).Handle(context.Background(), NewDepreciationRunTask())
	require.ErrorIs(t, err, boom)
}

type fakeChecker struct {
	report reports.IntegrityReport
}

func (f fakeChecker) CheckIntegrity(context.Context) (reports.IntegrityReport, error) {
	return f.report, nil
}

func TestGLIntegrityJobReportsImbalance(t *testing.T) {
	metrics, reg := newMetrics()
	job := NewGLIntegrityJob(fakeChecker{report: reports.IntegrityReport{
		Journals:    4,
		Unbalanced:  []string{"JE-3"},
		TotalDebit:  decimal.RequireFromString("150.50"),
		TotalCredit: decimal.RequireFromString("100"),
	}}, quietLogger(), metrics)

	err := job.Handle(context.Background(), NewGLIntegrityTask())
	require.ErrorIs(t, err, ErrLedgerInconsistent)
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Equal(t, 50.5, metricValue(t, reg, "factorybooks_gl_imbalance", nil))
}

type fakeBalances struct {
	parties []ledger.Party
	loaded  []string
}

func (f *fakeBalances) Parties(context.Context) ([]ledger.Party, error) {
	return f.parties, nil
}

func (f *fakeBalances) PartyBalance(ctx context.Context, name string) (projection.PartyBalance, error) {
	if _, ok := ctx.Deadline(); !ok {
		return projection.PartyBalance{}, errors.New("expected a per-party deadline")
	}
	f.loaded = append(f.loaded, name)
	return projection.PartyBalance{}, nil
}

func TestBalanceWarmupJob(t *testing.T) {
	balances := &fakeBalances{parties: []ledger.Party{{Name: "Acme"}, {Name: "Globex"}}}
	job := NewBalanceWarmupJob(balances, quietLogger(), nil)
	warmed, err := job.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, warmed)
	require.Equal(t, []string{"Acme", "Globex"}, balances.loaded)
}

type fakeInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (f fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	info, ok := f.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthEndpoint(t *testing.T) {
	serve := func(inspector QueueInspector) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		NewHandler(inspector, quietLogger()).MountRoutes(r)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
		return rr
	}

	rr := serve(fakeInspector{infos: map[string]*asynq.QueueInfo{
		QueueCritical: {Queue: QueueCritical, Pending: 4, Retry: 1},
	}})
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Queues []queueHealth `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, []queueHealth{
		{Queue: QueueCritical, Pending: 4, Retry: 1},
		{Queue: QueueDefault},
	}, body.Queues)

	rr = serve(fakeInspector{err: errors.New("redis down")})
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = serve(nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRedisOpt(t *testing.T) {
	opt, err := RedisOpt("redis://:pw@queue:6390/3")
	require.NoError(t, err)
	require.Equal(t, "queue:6390", opt.Addr)
	require.Equal(t, "pw", opt.Password)
	require.Equal(t, 3, opt.DB)

	_, err = RedisOpt("")
	require.Error(t, err)
}
