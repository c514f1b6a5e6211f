package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/tmc/langchaingo/llms"

	"github.com/priya/fete/internal/confirm"
	"github.com/priya/fete/internal/plan"
)

// Store persists wizard sessions, the append-only event log, finalized
// plans, and prep reminders in a single sqlite database. Reads after writes
// are consistent for a single session.
type Store struct {
	DB *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if not exist
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			chat_id TEXT PRIMARY KEY,
			session_id TEXT,
			data TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT,
			kind TEXT,
			role TEXT,
			content TEXT,
			request_id TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS plans (
			idempotency_key TEXT PRIMARY KEY,
			session_id TEXT,
			data TEXT,
			ref TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id TEXT,
			description TEXT,
			due_at DATETIME,
			sent INTEGER DEFAULT 0
		);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return nil, err
		}
	}

	return &Store{DB: db}, nil
}

// LoadSession returns the session bound to a chat, or nil when the chat has
// never planned anything.
func (s *Store) LoadSession(chatID string) (*plan.Session, error) {
	var data string
	err := s.DB.QueryRow(`SELECT data FROM sessions WHERE chat_id = ?`, chatID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess plan.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("corrupt session for chat %s: %v", chatID, err)
	}
	return &sess, nil
}

func (s *Store) SaveSession(sess *plan.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	query := `INSERT INTO sessions (chat_id, session_id, data, updated_at) VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(chat_id) DO UPDATE SET session_id = excluded.session_id, data = excluded.data, updated_at = excluded.updated_at`
	_, err = s.DB.Exec(query, sess.ChatID, sess.ID, string(data))
	return err
}

// ResetSession replaces the chat's session with a fresh one. History is not
// carried over; the old event log stays under the old session id.
func (s *Store) ResetSession(chatID string) (*plan.Session, error) {
	sess := plan.NewSession(chatID)
	if err := s.SaveSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// AppendTurn appends one conversational turn to the event log.
func (s *Store) AppendTurn(sessionID, role, content string) error {
	query := `INSERT INTO events (session_id, kind, role, content) VALUES (?, 'turn', ?, ?)`
	_, err := s.DB.Exec(query, sessionID, role, content)
	return err
}

// AppendConfirmation records an emitted confirmation request.
func (s *Store) AppendConfirmation(req *confirm.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	query := `INSERT INTO events (session_id, kind, content, request_id) VALUES (?, 'confirmation', ?, ?)`
	_, err = s.DB.Exec(query, req.SessionID, string(data), req.ID)
	return err
}

// AppendDecision records a decision event. The decided-request-id set is
// rebuilt from these rows on replay.
func (s *Store) AppendDecision(sessionID string, d confirm.Decision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return err
	}
	query := `INSERT INTO events (session_id, kind, content, request_id) VALUES (?, 'decision', ?, ?)`
	_, err = s.DB.Exec(query, sessionID, string(data), d.RequestID)
	return err
}

// DecidedRequestIDs replays the log into the set of decided confirmation
// ids. Used to reconcile with the client-local cache after a reload.
func (s *Store) DecidedRequestIDs(sessionID string) (map[string]struct{}, error) {
	rows, err := s.DB.Query(`SELECT request_id FROM events WHERE session_id = ? AND kind = 'decision'`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	decided := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		decided[id] = struct{}{}
	}
	return decided, rows.Err()
}

// OpenConfirmations returns confirmation requests with no recorded decision,
// oldest first. On resume these re-arm the engine's open-slot tracking.
func (s *Store) OpenConfirmations(sessionID string) ([]confirm.Request, error) {
	query := `SELECT content FROM events
		WHERE session_id = ? AND kind = 'confirmation'
		AND request_id NOT IN (SELECT request_id FROM events WHERE session_id = ? AND kind = 'decision')
		ORDER BY id`
	rows, err := s.DB.Query(query, sessionID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var open []confirm.Request
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, err
		}
		var req confirm.Request
		if err := json.Unmarshal([]byte(content), &req); err != nil {
			return nil, fmt.Errorf("corrupt confirmation event: %v", err)
		}
		open = append(open, req)
	}
	return open, rows.Err()
}

// History returns the last conversational turns in chronological order,
// shaped for the model call.
func (s *Store) History(sessionID string, limit int) ([]llms.MessageContent, error) {
	query := `SELECT role, content FROM events WHERE session_id = ? AND kind = 'turn' ORDER BY id DESC LIMIT ?`
	rows, err := s.DB.Query(query, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []llms.MessageContent
	for rows.Next() {
		var role, content string
		if err := rows.Scan(&role, &content); err != nil {
			return nil, err
		}

		var msgRole llms.ChatMessageType
		switch role {
		case "human":
			msgRole = llms.ChatMessageTypeHuman
		case "ai":
			msgRole = llms.ChatMessageTypeAI
		case "system":
			msgRole = llms.ChatMessageTypeSystem
		default:
			msgRole = llms.ChatMessageTypeHuman
		}

		history = append(history, llms.MessageContent{
			Role: msgRole,
			Parts: []llms.ContentPart{
				llms.TextPart(content),
			},
		})
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

// SavePlan stores the finalized plan under its idempotency key. Re-running
// finalize with the same key leaves the first row in place.
func (s *Store) SavePlan(key, sessionID, data, ref string) error {
	query := `INSERT INTO plans (idempotency_key, session_id, data, ref) VALUES (?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING`
	_, err := s.DB.Exec(query, key, sessionID, data, ref)
	return err
}

// PlanRef returns the durable reference for an already-finalized plan, or
// "" when the key is unknown.
func (s *Store) PlanRef(key string) (string, error) {
	var ref string
	err := s.DB.QueryRow(`SELECT ref FROM plans WHERE idempotency_key = ?`, key).Scan(&ref)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return ref, err
}

// Reminder is one pending prep-task notification.
type Reminder struct {
	ID          int
	ChatID      string
	Description string
	DueAt       time.Time
}

// ClearPendingReminders removes a chat's unsent reminders so that
// re-seeding after a partial finalize cannot leave duplicates behind.
func (s *Store) ClearPendingReminders(chatID string) error {
	_, err := s.DB.Exec(`DELETE FROM reminders WHERE chat_id = ? AND sent = 0`, chatID)
	return err
}

func (s *Store) AddReminder(chatID, description string, dueAt time.Time) error {
	query := `INSERT INTO reminders (chat_id, description, due_at) VALUES (?, ?, ?)`
	_, err := s.DB.Exec(query, chatID, description, dueAt.UTC().Format(time.RFC3339))
	return err
}

func (s *Store) DueReminders(now time.Time) ([]Reminder, error) {
	query := `SELECT id, chat_id, description, due_at FROM reminders WHERE sent = 0 AND due_at <= ?`
	rows, err := s.DB.Query(query, now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []Reminder
	for rows.Next() {
		var r Reminder
		var dueAt string
		if err := rows.Scan(&r.ID, &r.ChatID, &r.Description, &dueAt); err != nil {
			return nil, err
		}
		r.DueAt, _ = time.Parse(time.RFC3339, dueAt)
		due = append(due, r)
	}
	return due, rows.Err()
}

func (s *Store) MarkReminderSent(id int) error {
	_, err := s.DB.Exec(`UPDATE reminders SET sent = 1 WHERE id = ?`, id)
	return err
}
