package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/davidx33/multi-agent-plan-execute/internal/plan"
	_ "github.com/glebarez/go-sqlite"
)

// SQLiteStore keeps checkpoints and chat history in a single SQLite file.
type SQLiteStore struct {
	DB  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite serialises writers anyway; one connection also keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	queries := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			next_node TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			review TEXT,
			last_error TEXT NOT NULL DEFAULT '',
			version INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON checkpoints (status, updated_at);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			role TEXT,
			content TEXT,
			timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate %s: %w", dbPath, err)
		}
	}

	return &SQLiteStore{DB: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.DB.Close()
}

const checkpointColumns = `thread_id, status, next_node, state, review, last_error, version, created_at, updated_at`

func (s *SQLiteStore) Load(ctx context.Context, threadID string) (Checkpoint, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+checkpointColumns+` FROM checkpoints WHERE thread_id = ?`, threadID)
	cp, err := scanCheckpoint(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint{}, fmt.Errorf("%w: %s", ErrNotFound, threadID)
	}
	return cp, err
}

func (s *SQLiteStore) Save(ctx context.Context, cp *Checkpoint) error {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	var review []byte
	if cp.Review != nil {
		if review, err = json.Marshal(cp.Review); err != nil {
			return fmt.Errorf("encode review: %w", err)
		}
	}
	now := s.now().UTC()

	var res sql.Result
	if cp.Version == 0 {
		res, err = s.DB.ExecContext(ctx,
			`INSERT INTO checkpoints (`+checkpointColumns+`) VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
			 ON CONFLICT(thread_id) DO NOTHING`,
			cp.ThreadID, string(cp.Status), cp.Next, string(state), nullable(review), cp.LastError,
			now.UnixMilli(), now.UnixMilli())
	} else {
		res, err = s.DB.ExecContext(ctx,
			`UPDATE checkpoints
			 SET status = ?, next_node = ?, state = ?, review = ?, last_error = ?, version = version + 1, updated_at = ?
			 WHERE thread_id = ? AND version = ?`,
			string(cp.Status), cp.Next, string(state), nullable(review), cp.LastError, now.UnixMilli(),
			cp.ThreadID, cp.Version)
	}
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", cp.ThreadID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s at version %d", ErrVersionConflict, cp.ThreadID, cp.Version)
	}

	if cp.Version == 0 {
		cp.CreatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	}
	cp.Version++
	cp.UpdatedAt = time.UnixMilli(now.UnixMilli()).UTC()
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, status Status) ([]Checkpoint, error) {
	query := `SELECT ` + checkpointColumns + ` FROM checkpoints`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY updated_at DESC, thread_id`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		cp, err := scanCheckpoint(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID)
	return err
}

func (s *SQLiteStore) Purge(ctx context.Context, before time.Time, statuses ...Status) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(statuses)), ", ")
	args := []any{before.UTC().UnixMilli()}
	for _, st := range statuses {
		args = append(args, string(st))
	}
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE updated_at < ? AND status IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) AddMessage(ctx context.Context, chatID string, msg plan.Message) error {
	query := `INSERT INTO messages (chat_id, role, content) VALUES (?, ?, ?)`
	_, err := s.DB.ExecContext(ctx, query, chatID, string(msg.Role), msg.Content)
	return err
}

// GetHistory returns up to limit of the most recent messages, oldest first.
func (s *SQLiteStore) GetHistory(ctx context.Context, chatID string, limit int) ([]plan.Message, error) {
	query := `SELECT role, content FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := s.DB.QueryContext(ctx, query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []plan.Message
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}
		history = append(history, plan.Message{Role: plan.Role(role), Content: content})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

func (s *SQLiteStore) ClearHistory(ctx context.Context, chatID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, chatID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCheckpoint(row scanner) (Checkpoint, error) {
	var (
		cp               Checkpoint
		status, state    string
		review           sql.NullString
		created, updated int64
	)
	if err := row.Scan(&cp.ThreadID, &status, &cp.Next, &state, &review, &cp.LastError, &cp.Version, &created, &updated); err != nil {
		return Checkpoint{}, err
	}
	cp.Status = Status(status)
	if err := json.Unmarshal([]byte(state), &cp.State); err != nil {
		return Checkpoint{}, fmt.Errorf("decode state of %s: %w", cp.ThreadID, err)
	}
	if review.Valid && review.String != "" {
		if err := json.Unmarshal([]byte(review.String), &cp.Review); err != nil {
			return Checkpoint{}, fmt.Errorf("decode review of %s: %w", cp.ThreadID, err)
		}
	}
	cp.CreatedAt = time.UnixMilli(created).UTC()
	cp.UpdatedAt = time.UnixMilli(updated).UTC()
	return cp, nil
}

func nullable(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}
