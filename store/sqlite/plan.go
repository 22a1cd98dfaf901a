package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sidecore/agentcore/domain"
)

// UpsertPlan creates or replaces the plan attached to a session,
// including its full task list, in a single transaction. The
// UNIQUE(session_id) constraint on plans is the sole mechanism
// enforcing the 1:1 invariant (spec.md §4.6, §8 property 4): a second
// upsert for the same session replaces rather than duplicates.
func (s *Storage) UpsertPlan(ctx context.Context, plan *domain.Plan) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	var existingID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM plans WHERE session_id = ?`, plan.SessionID).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		if plan.ID == "" {
			plan.ID = uuid.NewString()
		}
		plan.CreatedAt = now
	case err != nil:
		return fmt.Errorf("failed to look up existing plan: %w", err)
	default:
		plan.ID = existingID
	}
	plan.UpdatedAt = now
	if plan.Status == "" {
		plan.Status = domain.PlanInProgress
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plans (id, session_id, title, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			title = excluded.title, status = excluded.status, updated_at = excluded.updated_at`,
		plan.ID, plan.SessionID, plan.Title, string(plan.Status),
		plan.CreatedAt.Format(time.RFC3339Nano), plan.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to upsert plan: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM plan_tasks WHERE plan_id = ?`, plan.ID); err != nil {
		return fmt.Errorf("failed to clear plan tasks: %w", err)
	}
	for i, t := range plan.Tasks {
		depsJSON, err := json.Marshal(t.Dependencies)
		if err != nil {
			return fmt.Errorf("failed to marshal dependencies: %w", err)
		}
		seq := t.Seq
		if seq == 0 {
			seq = i
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO plan_tasks (plan_id, id, parent_id, description, status, dependencies_json, seq)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			plan.ID, t.ID, t.ParentID, t.Description, string(t.Status), string(depsJSON), seq)
		if err != nil {
			return fmt.Errorf("failed to insert plan task: %w", err)
		}
	}

	return tx.Commit()
}

// GetPlanForSession reconstructs the Plan attached to a session, or
// ErrNotFound if none exists.
func (s *Storage) GetPlanForSession(ctx context.Context, sessionID string) (*domain.Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, title, status, created_at, updated_at
		FROM plans WHERE session_id = ?`, sessionID)

	var plan domain.Plan
	var status, createdAt, updatedAt string
	err := row.Scan(&plan.ID, &plan.SessionID, &plan.Title, &status, &createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	plan.Status = domain.PlanStatus(status)
	plan.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	plan.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, description, status, dependencies_json, seq
		FROM plan_tasks WHERE plan_id = ? ORDER BY seq ASC`, plan.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t domain.Task
		var status, depsJSON string
		if err := rows.Scan(&t.ID, &t.ParentID, &t.Description, &status, &depsJSON, &t.Seq); err != nil {
			return nil, fmt.Errorf("failed to scan plan task: %w", err)
		}
		t.Status = domain.TaskStatus(status)
		if err := json.Unmarshal([]byte(depsJSON), &t.Dependencies); err != nil {
			return nil, fmt.Errorf("failed to unmarshal dependencies: %w", err)
		}
		plan.Tasks = append(plan.Tasks, t)
	}
	return &plan, rows.Err()
}

// UpdateTaskStatus updates one task's status within a session's plan.
func (s *Storage) UpdateTaskStatus(ctx context.Context, sessionID, taskID string, status domain.TaskStatus) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var planID string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM plans WHERE session_id = ?`, sessionID).Scan(&planID)
	if err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("failed to find plan: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `UPDATE plan_tasks SET status = ? WHERE plan_id = ? AND id = ?`, string(status), planID, taskID)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, `UPDATE plans SET updated_at = ? WHERE id = ?`, time.Now().UTC().Format(time.RFC3339Nano), planID)
	if err != nil {
		return fmt.Errorf("failed to bump plan updated_at: %w", err)
	}
	return nil
}

// AbandonPlan marks a session's plan abandoned rather than deleting it,
// preserving history for inspection.
func (s *Storage) AbandonPlan(ctx context.Context, sessionID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.db.ExecContext(ctx, `UPDATE plans SET status = ?, updated_at = ? WHERE session_id = ?`,
		string(domain.PlanAbandoned), time.Now().UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("failed to abandon plan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
