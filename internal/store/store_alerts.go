package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/sentora/sentora/pkg/types"
)

// =============================================================================
// ALERTS
// =============================================================================

// FindActiveAlert returns the open or acknowledged alert for the given key,
// or nil if none exists. A partial unique index guarantees at most one.
func (s *Store) FindActiveAlert(ctx context.Context, key types.AlertKey) (*types.Alert, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, agent_name, hostname, kind, subject, severity, status,
			message, value, first_triggered, last_confirmed,
			acknowledged_at, acknowledged_by, resolved_at
		FROM alerts
		WHERE agent_name = $1 AND kind = $2 AND subject = $3
			AND status IN ('open', 'acknowledged')
	`, key.AgentName, key.Kind, key.Subject)

	alert, err := scanAlert(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

// CreateAlert inserts a new alert in open state.
func (s *Store) CreateAlert(ctx context.Context, alert *types.Alert) error {
	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (
			id, agent_name, hostname, kind, subject, severity, status,
			message, value, first_triggered, last_confirmed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		alert.ID, alert.AgentName, alert.Hostname, alert.Kind, alert.Subject,
		alert.Severity, alert.Status, alert.Message, alert.Value,
		alert.FirstTriggered, alert.LastConfirmed,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

// RefreshAlert updates an active alert after its condition re-triggered.
// Severity, message and value track the latest observation; first_triggered
// and the acknowledgement fields are preserved.
func (s *Store) RefreshAlert(ctx context.Context, id string, severity types.Severity, message string, value float64, confirmedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET
			severity = $2,
			message = $3,
			value = $4,
			last_confirmed = $5
		WHERE id = $1 AND status IN ('open', 'acknowledged')
	`, id, severity, message, value, confirmedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AcknowledgeAlert marks an open alert acknowledged. Acknowledging an
// already-acknowledged alert is a no-op that succeeds; anything else
// returns ErrNotFound.
func (s *Store) AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET
			status = 'acknowledged',
			acknowledged_at = $2,
			acknowledged_by = $3
		WHERE id = $1 AND status = 'open'
	`, id, at, acknowledgedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Distinguish repeat acknowledgement from a missing or resolved alert.
	var status types.AlertStatus
	err = s.pool.QueryRow(ctx, `SELECT status FROM alerts WHERE id = $1`, id).Scan(&status)
	if err == pgx.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status == types.AlertAcknowledged {
		return nil
	}
	return ErrNotFound
}

// ResolveAlert closes an active alert. Returns ErrNotFound when the alert
// does not exist or is already resolved.
func (s *Store) ResolveAlert(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET
			status = 'resolved',
			resolved_at = $2
		WHERE id = $1 AND status IN ('open', 'acknowledged')
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveAlertsForAgent returns the agent's open and acknowledged alerts.
func (s *Store) ListActiveAlertsForAgent(ctx context.Context, agentName string) ([]types.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_name, hostname, kind, subject, severity, status,
			message, value, first_triggered, last_confirmed,
			acknowledged_at, acknowledged_by, resolved_at
		FROM alerts
		WHERE agent_name = $1 AND status IN ('open', 'acknowledged')
		ORDER BY first_triggered DESC
	`, agentName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// ListAlerts returns alerts matching the filter, newest first.
func (s *Store) ListAlerts(ctx context.Context, filter types.AlertFilter) ([]types.Alert, error) {
	where := "1=1"
	args := []interface{}{}
	argNum := 1

	if filter.AgentName != "" {
		where += fmt.Sprintf(" AND agent_name = $%d", argNum)
		args = append(args, filter.AgentName)
		argNum++
	}
	if filter.Since != nil {
		where += fmt.Sprintf(" AND first_triggered >= $%d", argNum)
		args = append(args, *filter.Since)
		argNum++
	}
	if filter.Acknowledged != nil {
		if *filter.Acknowledged {
			where += " AND status = 'acknowledged'"
		} else {
			where += " AND status = 'open'"
		}
	}

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT id, agent_name, hostname, kind, subject, severity, status,
			message, value, first_triggered, last_confirmed,
			acknowledged_at, acknowledged_by, resolved_at
		FROM alerts
		WHERE %s
		ORDER BY first_triggered DESC
		LIMIT $%d
	`, where, argNum)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// GetAlertStats returns aggregate counts over the alerts table.
func (s *Store) GetAlertStats(ctx context.Context) (*types.AlertStats, error) {
	var stats types.AlertStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'open'),
			COUNT(*) FILTER (WHERE status = 'acknowledged'),
			COUNT(*) FILTER (WHERE status IN ('open', 'acknowledged') AND severity = 'critical'),
			COUNT(*) FILTER (WHERE status IN ('open', 'acknowledged') AND severity = 'warning'),
			COUNT(*) FILTER (WHERE status = 'resolved' AND resolved_at >= date_trunc('day', NOW()))
		FROM alerts
	`).Scan(
		&stats.OpenCount, &stats.AcknowledgedCount,
		&stats.CriticalCount, &stats.WarningCount,
		&stats.ResolvedTodayCount,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*types.Alert, error) {
	var a types.Alert
	err := row.Scan(
		&a.ID, &a.AgentName, &a.Hostname, &a.Kind, &a.Subject,
		&a.Severity, &a.Status, &a.Message, &a.Value,
		&a.FirstTriggered, &a.LastConfirmed,
		&a.AcknowledgedAt, &a.AcknowledgedBy, &a.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func collectAlerts(rows pgx.Rows) ([]types.Alert, error) {
	var alerts []types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}
