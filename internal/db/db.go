package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"genesis/internal/models"

	_ "modernc.org/sqlite"
)

func Open(dir string) (*sql.DB, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "genesis.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer; the persister is the only one anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}

	schema := []string{
		`CREATE TABLE IF NOT EXISTS chats (
			user_id TEXT PRIMARY KEY,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			last_user_prompt TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			user_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			id TEXT NOT NULL,
			role TEXT NOT NULL,
			display_content TEXT NOT NULL,
			model_content TEXT NOT NULL,
			tool_calls TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			PRIMARY KEY(user_id, seq),
			FOREIGN KEY(user_id) REFERENCES chats(user_id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chats_updated_at ON chats(updated_at DESC);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return db, nil
}

// MessageStore keeps one message list per user.
type MessageStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db, now: time.Now}
}

// SaveMessages replaces the user's stored list with msgs.
func (s *MessageStore) SaveMessages(ctx context.Context, userID string, msgs []models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	nowUnix := s.now().Unix()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chats(user_id, created_at, updated_at, last_user_prompt) VALUES(?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET updated_at = excluded.updated_at, last_user_prompt = excluded.last_user_prompt`,
		userID,
		nowUnix,
		nowUnix,
		lastUserPrompt(msgs),
	); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE user_id = ?", userID); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO messages(user_id, seq, id, role, display_content, model_content, tool_calls, created_at) VALUES(?, ?, ?, ?, ?, ?, ?, ?)",
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, m := range msgs {
		calls := ""
		if len(m.ToolCalls) > 0 {
			data, err := json.Marshal(m.ToolCalls)
			if err != nil {
				return fmt.Errorf("message %s: %w", m.ID, err)
			}
			calls = string(data)
		}
		if _, err := stmt.ExecContext(ctx,
			userID,
			i,
			m.ID,
			string(m.Role),
			m.DisplayContent,
			m.ModelContent,
			calls,
			m.Timestamp.UnixMilli(),
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *MessageStore) LoadMessages(ctx context.Context, userID string) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, role, display_content, model_content, tool_calls, created_at FROM messages WHERE user_id = ? ORDER BY seq ASC",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.Message{}
	for rows.Next() {
		var (
			m       models.Message
			role    string
			calls   string
			created int64
		)
		if err := rows.Scan(&m.ID, &role, &m.DisplayContent, &m.ModelContent, &calls, &created); err != nil {
			return nil, err
		}
		m.Role = models.Role(role)
		m.Timestamp = time.UnixMilli(created)
		if calls != "" {
			if err := json.Unmarshal([]byte(calls), &m.ToolCalls); err != nil {
				return nil, fmt.Errorf("message %s: %w", m.ID, err)
			}
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// ChatSummary describes one user's stored conversation.
type ChatSummary struct {
	UserID         string
	UpdatedAtUnix  int64
	LastUserPrompt string
	Messages       int
}

func (s *MessageStore) RecentChats(ctx context.Context, limit int) ([]ChatSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.user_id, c.updated_at, c.last_user_prompt, COUNT(m.seq)
		 FROM chats c LEFT JOIN messages m ON m.user_id = c.user_id
		 GROUP BY c.user_id ORDER BY c.updated_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]ChatSummary, 0, limit)
	for rows.Next() {
		var it ChatSummary
		if err := rows.Scan(&it.UserID, &it.UpdatedAtUnix, &it.LastUserPrompt, &it.Messages); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func lastUserPrompt(msgs []models.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == models.RoleUser {
			return msgs[i].ModelContent
		}
	}
	return ""
}
