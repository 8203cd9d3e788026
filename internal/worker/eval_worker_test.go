package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sentora/sentora/internal/testutil"
	"github.com/sentora/sentora/pkg/types"
)

// mockReportQueue serves queued reports in batches.
type mockReportQueue struct {
	mu      sync.Mutex
	pending []types.MetricsReport
	popErr  error
}

func (q *mockReportQueue) Pop(ctx context.Context, maxReports int) ([]types.MetricsReport, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.popErr != nil {
		return nil, q.popErr
	}
	n := min(maxReports, len(q.pending))
	batch := q.pending[:n]
	q.pending = q.pending[n:]
	return batch, nil
}

func (q *mockReportQueue) Len(ctx context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.pending)), nil
}

// mockEvaluator counts evaluated reports and can fail specific agents.
type mockEvaluator struct {
	mu        sync.Mutex
	evaluated []string
	failAgent string
}

func (e *mockEvaluator) EvaluateReport(ctx context.Context, report *types.MetricsReport) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if report.AgentName == e.failAgent {
		return errors.New("evaluation failed")
	}
	e.evaluated = append(e.evaluated, report.AgentName)
	return nil
}

func TestEvalWorkerDrainsQueue(t *testing.T) {
	queue := &mockReportQueue{}
	for i := 0; i < 7; i++ {
		queue.pending = append(queue.pending, *testutil.FixtureReport())
	}
	eval := &mockEvaluator{}

	w := NewEvalWorker(queue, eval, EvalWorkerConfig{BatchSize: 3}, testutil.NewTestLogger())
	w.runOnce(context.Background())

	if len(eval.evaluated) != 7 {
		t.Errorf("evaluated %d reports, want 7", len(eval.evaluated))
	}
	if n, _ := queue.Len(context.Background()); n != 0 {
		t.Errorf("queue still holds %d reports", n)
	}
}

func TestEvalWorkerSkipsFailedReports(t *testing.T) {
	queue := &mockReportQueue{pending: []types.MetricsReport{
		*testutil.FixtureReport(func(r *types.MetricsReport) { r.AgentName = "bad-agent" }),
		*testutil.FixtureReport(func(r *types.MetricsReport) { r.AgentName = "good-agent" }),
	}}
	eval := &mockEvaluator{failAgent: "bad-agent"}

	w := NewEvalWorker(queue, eval, EvalWorkerConfig{BatchSize: 10}, testutil.NewTestLogger())
	w.runOnce(context.Background())

	// One failure must not stall the rest of the batch.
	if len(eval.evaluated) != 1 || eval.evaluated[0] != "good-agent" {
		t.Errorf("evaluated %v", eval.evaluated)
	}
}

func TestEvalWorkerPopError(t *testing.T) {
	queue := &mockReportQueue{popErr: errors.New("redis down")}
	eval := &mockEvaluator{}

	w := NewEvalWorker(queue, eval, DefaultEvalWorkerConfig(), testutil.NewTestLogger())
	w.runOnce(context.Background())

	if len(eval.evaluated) != 0 {
		t.Errorf("evaluated %d reports on pop failure", len(eval.evaluated))
	}
}
