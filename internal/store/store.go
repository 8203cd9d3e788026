// Package store provides database access for the monitoring server.
//
// # Design
//
// The store uses raw SQL with pgx. Reports land in an append-only table
// keyed on (agent_name, collected_at) so redelivered payloads are no-ops,
// and the agent registry is a small upsert-heavy table read on every cycle.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sentora/sentora/pkg/types"
)

// ErrNotFound is returned by conditional updates whose target row does not
// exist or is not in the required state.
var ErrNotFound = errors.New("store: not found")

// Store provides database operations.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new store with the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewStoreFromURL creates a new store by connecting to the given database URL.
func NewStoreFromURL(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping tests database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool returns the underlying connection pool for advanced operations.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// =============================================================================
// AGENTS
// =============================================================================

// UpsertAgent records that an agent was seen at seenAt, registering it on
// first contact. Hostname is refreshed on every call; overrides are left
// untouched.
func (s *Store) UpsertAgent(ctx context.Context, name, hostname string, seenAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agents (agent_name, hostname, first_seen, last_seen)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (agent_name) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			last_seen = GREATEST(agents.last_seen, EXCLUDED.last_seen)
	`, name, hostname, seenAt)
	return err
}

// GetAgent retrieves an agent by name. Returns nil if not found.
func (s *Store) GetAgent(ctx context.Context, name string) (*types.AgentRecord, error) {
	var rec types.AgentRecord
	var overridesJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT agent_name, hostname, first_seen, last_seen, threshold_overrides
		FROM agents WHERE agent_name = $1
	`, name).Scan(&rec.AgentName, &rec.Hostname, &rec.FirstSeen, &rec.LastSeen, &overridesJSON)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(overridesJSON) > 0 {
		var t types.Thresholds
		if err := json.Unmarshal(overridesJSON, &t); err == nil {
			rec.ThresholdOverrides = &t
		}
	}
	return &rec, nil
}

// ListAgents returns all registered agents ordered by name.
func (s *Store) ListAgents(ctx context.Context) ([]types.AgentRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT agent_name, hostname, first_seen, last_seen, threshold_overrides
		FROM agents ORDER BY agent_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []types.AgentRecord
	for rows.Next() {
		var rec types.AgentRecord
		var overridesJSON []byte
		if err := rows.Scan(&rec.AgentName, &rec.Hostname, &rec.FirstSeen, &rec.LastSeen, &overridesJSON); err != nil {
			return nil, err
		}
		if len(overridesJSON) > 0 {
			var t types.Thresholds
			if err := json.Unmarshal(overridesJSON, &t); err == nil {
				rec.ThresholdOverrides = &t
			}
		}
		agents = append(agents, rec)
	}
	return agents, rows.Err()
}

// UpdateThresholdOverrides replaces an agent's threshold overrides. A nil
// overrides clears them, reverting the agent to the global defaults.
// Returns ErrNotFound if the agent is not registered.
func (s *Store) UpdateThresholdOverrides(ctx context.Context, name string, overrides *types.Thresholds) error {
	var overridesJSON interface{}
	if overrides != nil {
		b, err := json.Marshal(overrides)
		if err != nil {
			return fmt.Errorf("marshaling overrides: %w", err)
		}
		overridesJSON = b
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE agents SET threshold_overrides = $2 WHERE agent_name = $1
	`, name, overridesJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// =============================================================================
// REPORTS
// =============================================================================

// InsertReport persists a metrics report. Returns false without error when a
// report for the same (agent_name, collected_at) already exists; the caller
// treats redelivery as a no-op.
func (s *Store) InsertReport(ctx context.Context, report *types.MetricsReport) (bool, error) {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}

	disksJSON, _ := json.Marshal(report.Disks)
	servicesJSON, _ := json.Marshal(report.Services)
	networkJSON, _ := json.Marshal(report.Network)

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO reports (
			id, agent_name, hostname, collected_at, received_at,
			cpu_pct, ram_pct, disks, network, services, ssh_failed_attempts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (agent_name, collected_at) DO NOTHING
	`,
		report.ID, report.AgentName, report.Hostname, report.CollectedAt, report.ReceivedAt,
		report.CPUPct, report.RAMPct, disksJSON, networkJSON, servicesJSON, report.SSHFailedAttempts,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetHistory returns an agent's reports collected at or after since,
// oldest first.
func (s *Store) GetHistory(ctx context.Context, agentName string, since time.Time) ([]types.MetricsReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, agent_name, hostname, collected_at, received_at,
			cpu_pct, ram_pct, disks, network, services, ssh_failed_attempts
		FROM reports
		WHERE agent_name = $1 AND collected_at >= $2
		ORDER BY collected_at ASC
	`, agentName, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []types.MetricsReport
	for rows.Next() {
		var r types.MetricsReport
		var disksJSON, networkJSON, servicesJSON []byte
		if err := rows.Scan(
			&r.ID, &r.AgentName, &r.Hostname, &r.CollectedAt, &r.ReceivedAt,
			&r.CPUPct, &r.RAMPct, &disksJSON, &networkJSON, &servicesJSON, &r.SSHFailedAttempts,
		); err != nil {
			return nil, err
		}
		json.Unmarshal(disksJSON, &r.Disks)
		json.Unmarshal(networkJSON, &r.Network)
		json.Unmarshal(servicesJSON, &r.Services)
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// PruneReports deletes reports collected before cutoff and returns the
// number of rows removed.
func (s *Store) PruneReports(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reports WHERE collected_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
