// Package trace persists invocation results so that handler behavior
// can be inspected after the fact: what ran, what it returned, what it
// logged, and which events it fired.
package trace

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gantry-run/gantry/internal/handler"
)

//go:embed schema.sql
var schemaSQL string

// Store provides durable storage for invocation traces. Uses SQLite
// with WAL mode for concurrent read access.
type Store struct {
	db *sql.DB
}

// Invocation is one persisted trace row.
type Invocation struct {
	ID              string
	HandlerName     string
	HandlerPath     string
	Kind            handler.Kind
	Success         bool
	Error           string
	Data            json.RawMessage
	Triggers        []handler.TriggerRecord
	AutoPayloads    map[string]any
	ExecutionTimeMs int64
	CreatedAt       time.Time
}

// Open creates or opens the trace database at the given path. Pragmas
// and schema are applied on every open; both are idempotent.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create trace directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open trace database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect trace database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent record calls.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply trace schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Record persists one finished invocation and its captured logs in a
// single transaction. It satisfies the pool's recorder contract.
func (s *Store) Record(handlerPath string, ictx *handler.InvocationContext, result *handler.ExecutionResult) error {
	id := uuid.NewString()

	dataJSON, err := json.Marshal(result.Data)
	if err != nil {
		// Data came over the wire as JSON, so this only fires for
		// results built in-process; record the failure, keep the row.
		dataJSON = []byte(fmt.Sprintf("%q", "unserializable: "+err.Error()))
	}
	triggersJSON, err := json.Marshal(result.Triggers)
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}
	autoJSON, err := json.Marshal(result.AutoTriggerPayloads)
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO invocations
		(id, handler_name, handler_path, kind, success, error, data, triggers, auto_payloads, execution_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		id,
		ictx.HandlerName,
		handlerPath,
		string(handler.KindFromPath(handlerPath)),
		result.Success,
		result.ErrorMessage(),
		string(dataJSON),
		string(triggersJSON),
		string(autoJSON),
		result.ExecutionTimeMs,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record invocation: %w", err)
	}

	for seq, rec := range result.Logs {
		fieldsJSON, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("record invocation log %d: %w", seq, err)
		}
		_, err = tx.Exec(`
			INSERT INTO invocation_logs
			(invocation_id, seq, level, message, fields, logged_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			id, seq, string(rec.Level), rec.Message, string(fieldsJSON), rec.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("record invocation log %d: %w", seq, err)
		}
	}

	return tx.Commit()
}

// Recent returns the newest invocations, most recent first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Invocation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, handler_name, handler_path, kind, success, error, data, triggers, auto_payloads, execution_time_ms, created_at
		FROM invocations
		ORDER BY rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()
	return scanInvocations(rows)
}

// ByHandler returns the newest invocations of one handler, most
// recent first.
func (s *Store) ByHandler(ctx context.Context, handlerName string, limit int) ([]Invocation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, handler_name, handler_path, kind, success, error, data, triggers, auto_payloads, execution_time_ms, created_at
		FROM invocations
		WHERE handler_name = ?
		ORDER BY rowid DESC
		LIMIT ?
	`, handlerName, limit)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()
	return scanInvocations(rows)
}

// Logs returns one invocation's captured log records in emission
// order. The slice is empty, not nil, when the handler logged nothing.
func (s *Store) Logs(ctx context.Context, invocationID string) ([]handler.LogRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.level, i.handler_name, l.message, l.fields, l.logged_at
		FROM invocation_logs l
		JOIN invocations i ON i.id = l.invocation_id
		WHERE l.invocation_id = ?
		ORDER BY l.seq ASC
	`, invocationID)
	if err != nil {
		return nil, fmt.Errorf("query invocation logs: %w", err)
	}
	defer rows.Close()

	logs := []handler.LogRecord{}
	for rows.Next() {
		var rec handler.LogRecord
		var level, fieldsJSON string
		if err := rows.Scan(&level, &rec.Handler, &rec.Message, &fieldsJSON, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan invocation log: %w", err)
		}
		rec.Level = handler.LogLevel(level)
		if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
			return nil, fmt.Errorf("decode log fields: %w", err)
		}
		logs = append(logs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocation logs: %w", err)
	}
	return logs, nil
}

func scanInvocations(rows *sql.Rows) ([]Invocation, error) {
	invocations := []Invocation{}
	for rows.Next() {
		var inv Invocation
		var kind, errMsg, data, triggers, auto, createdAt string
		if err := rows.Scan(&inv.ID, &inv.HandlerName, &inv.HandlerPath, &kind, &inv.Success,
			&errMsg, &data, &triggers, &auto, &inv.ExecutionTimeMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan invocation: %w", err)
		}
		inv.Kind = handler.Kind(kind)
		inv.Error = errMsg
		inv.Data = json.RawMessage(data)
		if err := json.Unmarshal([]byte(triggers), &inv.Triggers); err != nil {
			return nil, fmt.Errorf("decode triggers: %w", err)
		}
		if err := json.Unmarshal([]byte(auto), &inv.AutoPayloads); err != nil {
			return nil, fmt.Errorf("decode auto payloads: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		inv.CreatedAt = ts
		invocations = append(invocations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invocations: %w", err)
	}
	return invocations, nil
}
