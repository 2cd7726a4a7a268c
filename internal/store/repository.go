package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/rapport/internal/conflict"
	"github.com/MikeSquared-Agency/rapport/internal/emotion"
	"github.com/MikeSquared-Agency/rapport/internal/scoring"
)

// ErrNotFound is returned when a user has no stored record.
var ErrNotFound = errors.New("not found")

const (
	// RecentMessageLimit is how many prior messages a snapshot carries.
	RecentMessageLimit = 4
	// RecentConflictLimit is how many prior conflict types a snapshot carries.
	RecentConflictLimit = 3
)

// Repository persists the per-user records the engine reads and writes.
// Implementations: the Postgres Store and sqlite.Store.
type Repository interface {
	// Load returns everything needed to process the next interaction. A user
	// with no record gets defaults and Exists=false.
	Load(ctx context.Context, userID string) (Snapshot, error)
	// Save writes the outcome of one interaction atomically.
	Save(ctx context.Context, u Update) error
	GetState(ctx context.Context, userID string) (StateRecord, error)
	// GetOpenConflict returns nil when the user has no open conflict.
	GetOpenConflict(ctx context.Context, userID string) (*conflict.Conflict, error)
	// ResetState writes the default emotional state and records events in
	// the same transaction.
	ResetState(ctx context.Context, userID string, now time.Time, events []EventRecord) error
	ListEvents(ctx context.Context, userID string, limit int) ([]EventRecord, error)
	Close() error
}

// StateRecord is a user's emotional state and relationship metrics.
type StateRecord struct {
	UserID    string          `json:"user_id"`
	State     emotion.State   `json:"state"`
	Metrics   scoring.Metrics `json:"metrics"`
	Chapter   int             `json:"chapter"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DefaultStateRecord is the record of a user seen for the first time.
func DefaultStateRecord(userID string) StateRecord {
	return StateRecord{
		UserID:  userID,
		State:   emotion.Default(),
		Metrics: scoring.DefaultMetrics(),
		Chapter: 1,
	}
}

type Snapshot struct {
	StateRecord
	Exists              bool
	OpenConflict        *conflict.Conflict
	RecentConflictTypes []emotion.ConflictType
	// RecentMessages are the latest user messages, oldest first.
	RecentMessages    []string
	LastInteractionAt *time.Time
}

type Update struct {
	UserID  string
	State   emotion.State
	Metrics scoring.Metrics
	Chapter int
	// Conflict is upserted when set.
	Conflict *conflict.Conflict
	Message  string
	At       time.Time
	Events   []EventRecord
}

// EventRecord is one row of the emotion event log.
type EventRecord struct {
	ID        uuid.UUID       `json:"id"`
	UserID    string          `json:"user_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEventRecord marshals payload into an event row.
func NewEventRecord(userID, kind string, payload any, at time.Time) (EventRecord, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return EventRecord{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	return EventRecord{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Payload:   b,
		CreatedAt: at,
	}, nil
}

// EncodeTriggerIDs and DecodeTriggerIDs convert a conflict's trigger ids to
// and from their JSON column form.
func EncodeTriggerIDs(ids []uuid.UUID) ([]byte, error) {
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return json.Marshal(ids)
}

func DecodeTriggerIDs(b []byte) ([]uuid.UUID, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var ids []uuid.UUID
	if err := json.Unmarshal(b, &ids); err != nil {
		return nil, fmt.Errorf("decode trigger ids: %w", err)
	}
	return ids, nil
}

// Reverse flips s in place.
func Reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
