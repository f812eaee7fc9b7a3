package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Turn is one goal/response exchange in a session's history.
type Turn struct {
	Goal     string `json:"goal"`
	Response string `json:"response"`
}

// Record is the persisted state of a session, carried across invocations so
// follow-up goals can build on earlier answers.
type Record struct {
	SessionID       string            `json:"session_id"`
	History         []Turn            `json:"history"`
	BudgetLimit     float64           `json:"budget_limit"`
	BudgetUsed      float64           `json:"budget_used"`
	BudgetRemaining float64           `json:"budget_remaining"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	Metadata        map[string]string `json:"metadata"`
}

// Store persists session records as JSON files, one per session.
type Store struct {
	dir string
	log zerolog.Logger
}

// NewStore creates a session store rooted at dir, creating it if missing.
func NewStore(dir string, log zerolog.Logger) (*Store, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "rlm_sessions")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{dir: dir, log: log}, nil
}

// NewID returns a fresh timestamp-based session id.
func NewID() string {
	return "session_" + time.Now().Format("20060102_150405")
}

// Create initializes and persists a new session record.
func (s *Store) Create(budgetLimit float64, metadata map[string]string) (*Record, error) {
	now := time.Now()
	rec := &Record{
		SessionID:       NewID(),
		History:         []Turn{},
		BudgetLimit:     budgetLimit,
		BudgetRemaining: budgetLimit,
		CreatedAt:       now,
		UpdatedAt:       now,
		Metadata:        metadata,
	}
	if err := s.Save(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Save writes a record to disk, refreshing its updated_at and derived
// budget_remaining.
func (s *Store) Save(rec *Record) error {
	rec.UpdatedAt = time.Now()
	rec.BudgetRemaining = rec.BudgetLimit - rec.BudgetUsed
	if rec.BudgetRemaining < 0 {
		rec.BudgetRemaining = 0
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(rec.SessionID), data, 0o644)
}

// Load reads a session record by id.
func (s *Store) Load(id string) (*Record, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return &rec, nil
}

// List returns all stored sessions, most recently updated first. Corrupt
// files are skipped with a warning.
func (s *Store) List() []*Record {
	files, _ := filepath.Glob(filepath.Join(s.dir, "session_*.json"))

	records := make([]*Record, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.Warn().Str("file", f).Msg("skipping corrupt session file")
			continue
		}
		records = append(records, &rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
	return records
}

// Delete removes a session record.
func (s *Store) Delete(id string) error {
	return os.Remove(s.path(id))
}

func (s *Store) path(id string) string {
	// Keep ids filename-safe.
	id = strings.ReplaceAll(id, string(os.PathSeparator), "_")
	return filepath.Join(s.dir, id+".json")
}
