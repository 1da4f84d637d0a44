package task

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// ErrNotFound is returned when a task ID is unknown.
var ErrNotFound = errors.New("task not found")

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	seq             INTEGER PRIMARY KEY AUTOINCREMENT,
	id              TEXT NOT NULL UNIQUE,
	task_type       TEXT NOT NULL,
	status          TEXT NOT NULL,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	action          TEXT NOT NULL DEFAULT '',
	origin          TEXT NOT NULL DEFAULT 'action',
	conversation_id TEXT NOT NULL DEFAULT '',
	api_response    TEXT,
	error_message   TEXT,
	created_at      DATETIME NOT NULL,
	updated_at      DATETIME NOT NULL,
	started_at      DATETIME,
	completed_at    DATETIME
);
CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks (created_at DESC, seq DESC);
`

const taskColumns = `id, task_type, status, title, description, action, origin, conversation_id,
	api_response, error_message, created_at, updated_at, started_at, completed_at`

// SQLiteStore persists tasks in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the tasks table exists. The caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Insert persists a new task.
func (s *SQLiteStore) Insert(t *Task) error {
	_, err := s.db.Exec(`INSERT INTO tasks (`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, string(t.Type), string(t.Status), t.Title, t.Description, t.Action, string(t.Origin),
		t.ConversationID, nullJSON(t.APIResponse), nullString(t.ErrorMessage),
		t.CreatedAt, t.UpdatedAt, nullTime(t.StartedAt), nullTime(t.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// Get retrieves a task by ID.
func (s *SQLiteStore) Get(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return t, err
}

// Update saves the mutable fields of an existing task.
func (s *SQLiteStore) Update(t *Task) error {
	res, err := s.db.Exec(`
		UPDATE tasks SET
			status=?, api_response=?, error_message=?, updated_at=?, started_at=?, completed_at=?
		WHERE id=?`,
		string(t.Status), nullJSON(t.APIResponse), nullString(t.ErrorMessage),
		t.UpdatedAt, nullTime(t.StartedAt), nullTime(t.CompletedAt),
		t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

// List returns tasks matching the filter, newest first.
func (s *SQLiteStore) List(filter Filter) ([]*Task, error) {
	q := strings.Builder{}
	q.WriteString("SELECT " + taskColumns + " FROM tasks WHERE 1=1")
	args := []any{}

	if filter.Status != nil {
		q.WriteString(" AND status=?")
		args = append(args, string(*filter.Status))
	}
	if filter.Type != "" {
		q.WriteString(" AND task_type=?")
		args = append(args, string(filter.Type))
	}
	if filter.Origin != "" {
		q.WriteString(" AND origin=?")
		args = append(args, string(filter.Origin))
	}
	if filter.ConversationID != "" {
		q.WriteString(" AND conversation_id=?")
		args = append(args, filter.ConversationID)
	}
	q.WriteString(" ORDER BY created_at DESC, seq DESC")
	if filter.Limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
		if filter.Offset > 0 {
			q.WriteString(fmt.Sprintf(" OFFSET %d", filter.Offset))
		}
	}

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// scanner abstracts sql.Row and sql.Rows for scanTask.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (*Task, error) {
	var t Task
	var typ, status, origin string
	var apiResponse, errMsg sql.NullString
	var startedAt, completedAt sql.NullTime

	err := s.Scan(
		&t.ID, &typ, &status, &t.Title, &t.Description, &t.Action, &origin, &t.ConversationID,
		&apiResponse, &errMsg,
		&t.CreatedAt, &t.UpdatedAt, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Type = Type(typ)
	t.Status = Status(status)
	t.Origin = Origin(origin)
	if apiResponse.Valid {
		t.APIResponse = []byte(apiResponse.String)
	}
	if errMsg.Valid {
		msg := errMsg.String
		t.ErrorMessage = &msg
	}
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullJSON(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

// MemoryStore keeps tasks in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*memEntry
	seq   uint64
}

type memEntry struct {
	seq  uint64
	task Task
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*memEntry)}
}

// Insert persists a new task.
func (m *MemoryStore) Insert(t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tasks[t.ID]; exists {
		return fmt.Errorf("insert task: duplicate id %s", t.ID)
	}
	m.seq++
	m.tasks[t.ID] = &memEntry{seq: m.seq, task: t.Clone()}
	return nil
}

// Get retrieves a task by ID.
func (m *MemoryStore) Get(id string) (*Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	c := e.task.Clone()
	return &c, nil
}

// Update saves changes to an existing task.
func (m *MemoryStore) Update(t *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.tasks[t.ID]
	if !ok {
		return fmt.Errorf("task %s: %w", t.ID, ErrNotFound)
	}
	e.task = t.Clone()
	return nil
}

// List returns tasks matching the filter, newest first.
func (m *MemoryStore) List(filter Filter) ([]*Task, error) {
	m.mu.RLock()
	entries := make([]*memEntry, 0, len(m.tasks))
	for _, e := range m.tasks {
		if filter.match(&e.task) {
			entries = append(entries, &memEntry{seq: e.seq, task: e.task.Clone()})
		}
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.task.CreatedAt.Equal(b.task.CreatedAt) {
			return a.task.CreatedAt.After(b.task.CreatedAt)
		}
		return a.seq > b.seq
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(entries) {
			return nil, nil
		}
		entries = entries[filter.Offset:]
	}
	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}

	tasks := make([]*Task, 0, len(entries))
	for _, e := range entries {
		tasks = append(tasks, &e.task)
	}
	return tasks, nil
}
