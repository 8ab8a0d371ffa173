package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ShayCichocki/pairline/pkg/models"
)

// Message kinds stored in the messages table.
const (
	kindLog          = "log"
	kindInput        = "input"
	kindConversation = "conversation"
)

// SessionRecord is the persisted form of a session.
type SessionRecord struct {
	ID string
	// CommitHash is empty when the session has no recorded commit.
	CommitHash    string
	CommitMessage string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	// Messages is the display log.
	Messages     []models.Message
	InputHistory []string
	// Conversation is what the generation backend sees.
	Conversation []models.Message
	Results      []models.TaskResult
}

// SaveSession writes rec, replacing any previous version, in one transaction.
func (db *DB) SaveSession(rec *SessionRecord) error {
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	return db.Transaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO sessions (id, commit_hash, commit_message, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				commit_hash = excluded.commit_hash,
				commit_message = excluded.commit_message,
				updated_at = excluded.updated_at
		`, rec.ID, nullString(rec.CommitHash), nullString(rec.CommitMessage),
			formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt))
		if err != nil {
			return fmt.Errorf("save session: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", rec.ID); err != nil {
			return fmt.Errorf("clear messages: %w", err)
		}
		if err := insertMessages(tx, rec.ID, kindLog, rec.Messages); err != nil {
			return err
		}
		if err := insertMessages(tx, rec.ID, kindConversation, rec.Conversation); err != nil {
			return err
		}
		inputs := make([]models.Message, len(rec.InputHistory))
		for i, in := range rec.InputHistory {
			inputs[i] = models.Message{Role: models.RoleUser, Content: in}
		}
		if err := insertMessages(tx, rec.ID, kindInput, inputs); err != nil {
			return err
		}

		if _, err := tx.Exec("DELETE FROM task_results WHERE session_id = ?", rec.ID); err != nil {
			return fmt.Errorf("clear task results: %w", err)
		}
		for i, r := range rec.Results {
			files, err := json.Marshal(r.EditedFiles)
			if err != nil {
				return fmt.Errorf("marshal edited files: %w", err)
			}
			_, err = tx.Exec(`
				INSERT INTO task_results (session_id, seq, task_name, description, result, edited_files, commit_hash, commit_message)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			`, rec.ID, i, r.TaskName, r.Description, r.Result, string(files),
				nullString(r.CommitHash), nullString(r.CommitMessage))
			if err != nil {
				return fmt.Errorf("insert task result: %w", err)
			}
		}
		return nil
	})
}

func insertMessages(tx *sql.Tx, sessionID, kind string, msgs []models.Message) error {
	for i, m := range msgs {
		_, err := tx.Exec(`
			INSERT INTO messages (session_id, kind, seq, role, content) VALUES (?, ?, ?, ?, ?)
		`, sessionID, kind, i, string(m.Role), m.Content)
		if err != nil {
			return fmt.Errorf("insert %s message: %w", kind, err)
		}
	}
	return nil
}

// LoadSession reads a session. It returns nil, nil when id is unknown.
func (db *DB) LoadSession(id string) (*SessionRecord, error) {
	row := db.QueryRow(`
		SELECT id, commit_hash, commit_message, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)

	var rec SessionRecord
	var hash, message sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&rec.ID, &hash, &message, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	rec.CommitHash = hash.String
	rec.CommitMessage = message.String
	rec.CreatedAt, _ = parseTime(createdAt)
	rec.UpdatedAt, _ = parseTime(updatedAt)

	rows, err := db.Query(`
		SELECT kind, role, content FROM messages WHERE session_id = ? ORDER BY kind, seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, role, content string
		if err := rows.Scan(&kind, &role, &content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m := models.Message{Role: models.Role(role), Content: content}
		switch kind {
		case kindLog:
			rec.Messages = append(rec.Messages, m)
		case kindConversation:
			rec.Conversation = append(rec.Conversation, m)
		case kindInput:
			rec.InputHistory = append(rec.InputHistory, content)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	results, err := db.loadResults(id)
	if err != nil {
		return nil, err
	}
	rec.Results = results
	return &rec, nil
}

func (db *DB) loadResults(id string) ([]models.TaskResult, error) {
	rows, err := db.Query(`
		SELECT task_name, description, result, edited_files, commit_hash, commit_message
		FROM task_results WHERE session_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load task results: %w", err)
	}
	defer rows.Close()

	var results []models.TaskResult
	for rows.Next() {
		var r models.TaskResult
		var files string
		var hash, message sql.NullString
		if err := rows.Scan(&r.TaskName, &r.Description, &r.Result, &files, &hash, &message); err != nil {
			return nil, fmt.Errorf("scan task result: %w", err)
		}
		if err := json.Unmarshal([]byte(files), &r.EditedFiles); err != nil {
			return nil, fmt.Errorf("unmarshal edited files: %w", err)
		}
		r.CommitHash = hash.String
		r.CommitMessage = message.String
		results = append(results, r)
	}
	return results, rows.Err()
}

// DeleteSession deletes a session and everything it owns.
func (db *DB) DeleteSession(id string) error {
	_, err := db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ListSessionIDs returns every stored session id, most recently updated first.
func (db *DB) ListSessionIDs() ([]string, error) {
	rows, err := db.Query("SELECT id FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
