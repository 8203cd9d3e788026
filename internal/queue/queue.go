// Package queue provides a Redis-backed evaluation queue for metric reports.
// Ingestion pushes accepted reports here and returns immediately; the
// evaluation worker drains the list and runs threshold checks. When Redis is
// not configured the server evaluates inline and this package is unused.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentora/sentora/pkg/types"
)

const (
	// Redis key for the pending evaluation list
	keyEvalQueue = "sentora:eval_queue"

	// Default number of reports drained per worker pass
	DefaultBatchSize = 500
)

// EvalQueue is a Redis list of JSON-encoded reports awaiting evaluation.
type EvalQueue struct {
	client *redis.Client
	logger *slog.Logger
}

// NewEvalQueue connects to Redis and returns a queue.
func NewEvalQueue(redisURL string, logger *slog.Logger) (*EvalQueue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &EvalQueue{
		client: client,
		logger: logger,
	}, nil
}

// Push enqueues a report for evaluation.
func (q *EvalQueue) Push(ctx context.Context, report *types.MetricsReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := q.client.LPush(ctx, keyEvalQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to push report to redis: %w", err)
	}
	return nil
}

// Pop retrieves and removes up to maxReports from the queue in FIFO order.
func (q *EvalQueue) Pop(ctx context.Context, maxReports int) ([]types.MetricsReport, error) {
	pipe := q.client.Pipeline()
	cmds := make([]*redis.StringCmd, maxReports)

	for i := 0; i < maxReports; i++ {
		cmds[i] = pipe.RPop(ctx, keyEvalQueue)
	}

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to pop reports from redis: %w", err)
	}

	reports := make([]types.MetricsReport, 0, maxReports)
	for _, cmd := range cmds {
		data, err := cmd.Bytes()
		if err == redis.Nil {
			continue // No more items
		}
		if err != nil {
			q.logger.Warn("failed to read queued report", "error", err)
			continue
		}

		var r types.MetricsReport
		if err := json.Unmarshal(data, &r); err != nil {
			q.logger.Warn("failed to unmarshal queued report", "error", err)
			continue
		}
		reports = append(reports, r)
	}

	return reports, nil
}

// Len returns the number of queued reports.
func (q *EvalQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, keyEvalQueue).Result()
}

// Close closes the Redis connection.
func (q *EvalQueue) Close() error {
	return q.client.Close()
}
