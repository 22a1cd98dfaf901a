package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sidecore/agentcore/domain"
)

var ErrNotFound = errors.New("not found")

// CreateSession inserts a brand new session with no messages. Grounded
// on srv/sqlite/task.go's PersistTask insert shape.
func (s *Storage) CreateSession(ctx context.Context, sess *domain.Session) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := time.Now().UTC()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, title, working_dir, work_mode, model, provider,
			usage_input_tokens, usage_output_tokens, usage_cache_read_tokens, usage_cache_write_tokens,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.WorkingDir, string(sess.WorkMode), sess.Model, sess.Provider,
		sess.Usage.InputTokens, sess.Usage.OutputTokens, sess.Usage.CacheReadInputTokens, sess.Usage.CacheWriteInputTokens,
		sess.CreatedAt.Format(time.RFC3339Nano), sess.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession reconstructs a Session including its ordered messages.
func (s *Storage) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, working_dir, work_mode, model, provider,
			usage_input_tokens, usage_output_tokens, usage_cache_read_tokens, usage_cache_write_tokens,
			created_at, updated_at
		FROM sessions WHERE id = ?`, id)

	var sess domain.Session
	var workMode, createdAt, updatedAt string
	err := row.Scan(&sess.ID, &sess.Title, &sess.WorkingDir, &workMode, &sess.Model, &sess.Provider,
		&sess.Usage.InputTokens, &sess.Usage.OutputTokens, &sess.Usage.CacheReadInputTokens, &sess.Usage.CacheWriteInputTokens,
		&createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	sess.WorkMode = domain.WorkMode(workMode)
	sess.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	sess.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	msgs, err := s.getMessages(ctx, id)
	if err != nil {
		return nil, err
	}
	sess.Messages = msgs
	return &sess, nil
}

func (s *Storage) getMessages(ctx context.Context, sessionID string) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content_json FROM messages WHERE session_id = ? ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var msgs []domain.Message
	for rows.Next() {
		var role, contentJSON string
		if err := rows.Scan(&role, &contentJSON); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		var blocks []domain.ContentBlock
		if err := json.Unmarshal([]byte(contentJSON), &blocks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message content: %w", err)
		}
		msgs = append(msgs, domain.Message{Role: domain.Role(role), Content: blocks})
	}
	return msgs, rows.Err()
}

// AppendMessages appends one or more messages to a session's history in
// a single transaction and bumps updated_at, matching spec.md §3's
// "messages are append-only within a turn" invariant.
func (s *Storage) AppendMessages(ctx context.Context, sessionID string, msgs []domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var nextSeq int
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), -1) + 1 FROM messages WHERE session_id = ?`, sessionID).Scan(&nextSeq)
	if err != nil {
		return fmt.Errorf("failed to compute next seq: %w", err)
	}

	for _, m := range msgs {
		contentJSON, err := json.Marshal(m.Content)
		if err != nil {
			return fmt.Errorf("failed to marshal message content: %w", err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO messages (session_id, seq, role, content_json) VALUES (?, ?, ?, ?)`,
			sessionID, nextSeq, string(m.Role), string(contentJSON))
		if err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
		nextSeq++
	}

	_, err = tx.ExecContext(ctx, `UPDATE sessions SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("failed to bump session updated_at: %w", err)
	}

	return tx.Commit()
}

// UpdateUsage accumulates usage counters for a session.
func (s *Storage) UpdateUsage(ctx context.Context, sessionID string, u domain.Usage) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET
			usage_input_tokens = usage_input_tokens + ?,
			usage_output_tokens = usage_output_tokens + ?,
			usage_cache_read_tokens = usage_cache_read_tokens + ?,
			usage_cache_write_tokens = usage_cache_write_tokens + ?,
			updated_at = ?
		WHERE id = ?`,
		u.InputTokens, u.OutputTokens, u.CacheReadInputTokens, u.CacheWriteInputTokens,
		time.Now().UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update usage: %w", err)
	}
	return nil
}

// SetTitle persists an asynchronously generated title (spec.md §4.4).
func (s *Storage) SetTitle(ctx context.Context, sessionID, title string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("failed to set title: %w", err)
	}
	return nil
}

// SetWorkMode persists a work-mode transition (spec.md §4.4's ModeChange).
func (s *Storage) SetWorkMode(ctx context.Context, sessionID string, mode domain.WorkMode) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET work_mode = ?, updated_at = ? WHERE id = ?`,
		string(mode), time.Now().UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("failed to set work mode: %w", err)
	}
	return nil
}

// DeleteSession removes a session; ON DELETE CASCADE takes its plan and
// plan_tasks with it (spec.md §3, §8 property 5).
func (s *Storage) DeleteSession(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
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

// ListSessions returns every session (without messages, for a lightweight listing).
func (s *Storage) ListSessions(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, working_dir, work_mode, model, provider, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var sess domain.Session
		var workMode, createdAt, updatedAt string
		if err := rows.Scan(&sess.ID, &sess.Title, &sess.WorkingDir, &workMode, &sess.Model, &sess.Provider, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.WorkMode = domain.WorkMode(workMode)
		sess.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		sess.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, sess)
	}
	return out, rows.Err()
}
