// Package transcript persists the audit triple every generation call
// returns: the request as issued, the raw response and the extracted reply.
package transcript

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/sherzod-hakimov/clm-pol-gen/pkg/backends"
)

// Interaction is one recorded generation call.
type Interaction struct {
	ID          string
	Model       string
	Backend     string
	Prompt      string
	Response    string
	Text        string
	CreatedAtMs int64
}

// SQLiteStore keeps interactions in a single sqlite table.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("transcript store: empty dsn")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		model TEXT NOT NULL,
		backend TEXT NOT NULL,
		prompt_json TEXT NOT NULL DEFAULT '{}',
		response_json TEXT NOT NULL DEFAULT '{}',
		text TEXT NOT NULL DEFAULT '',
		created_at_ms INTEGER NOT NULL
	);`)
	return errors.Wrap(err, "transcript store: migrate")
}

// Record persists one completion for a model spec and returns the
// interaction id.
func (s *SQLiteStore) Record(ctx context.Context, spec backends.ModelSpec, completion backends.Completion) (string, error) {
	promptJSON, err := toJSON(completion.Prompt)
	if err != nil {
		return "", errors.Wrap(err, "transcript store: encoding prompt")
	}
	responseJSON, err := toJSON(completion.Response)
	if err != nil {
		return "", errors.Wrap(err, "transcript store: encoding response")
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO interactions (id, model, backend, prompt_json, response_json, text, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, spec.Name, spec.Backend, promptJSON, responseJSON, completion.Text, time.Now().UnixMilli())
	if err != nil {
		return "", errors.Wrap(err, "transcript store: insert")
	}
	return id, nil
}

// List returns the most recent interactions, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, backend, prompt_json, response_json, text, created_at_ms
		 FROM interactions ORDER BY created_at_ms DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "transcript store: query")
	}
	defer func() { _ = rows.Close() }()

	var out []Interaction
	for rows.Next() {
		var it Interaction
		if err := rows.Scan(&it.ID, &it.Model, &it.Backend, &it.Prompt, &it.Response, &it.Text, &it.CreatedAtMs); err != nil {
			return nil, errors.Wrap(err, "transcript store: scan")
		}
		out = append(out, it)
	}
	return out, errors.Wrap(rows.Err(), "transcript store: rows")
}

func toJSON(v any) (string, error) {
	if v == nil {
		return "{}", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
