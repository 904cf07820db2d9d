package economy

import (
	"context"
	"fmt"
	"strings"
)

// Username identifies one ledger row. The backing store keys rows by a
// case-insensitive display name, so the normalized form is always lowercase
// with any leading mention marker stripped.
type Username struct {
	value string
}

// NewUsername validates and normalizes a chat username.
func NewUsername(raw string) (Username, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "@")
	if trimmed == "" {
		return Username{}, fmt.Errorf("%w: empty value", ErrInvalidUsername)
	}
	return Username{value: strings.ToLower(trimmed)}, nil
}

// String returns the normalized name.
func (username Username) String() string {
	return username.value
}

// FieldName names one interpreted column of a ledger row.
type FieldName string

// Ledger columns the service reads and writes. Any other column in the
// backing store is preserved untouched.
const (
	FieldTokens  FieldName = "Tokens"
	FieldTickets FieldName = "Tickets"
)

// NewFieldName validates a column name against the interpreted set.
func NewFieldName(raw string) (FieldName, error) {
	switch FieldName(raw) {
	case FieldTokens, FieldTickets:
		return FieldName(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidFieldName, raw)
}

// String returns the column name.
func (field FieldName) String() string {
	return string(field)
}

// Row is a handle to one located ledger row.
type Row struct {
	Username string
	Index    int
}

// Receipt reports the post-operation balances for a successful purchase.
type Receipt struct {
	Tokens  int64
	Tickets int64
}

// Store is the ledger persistence contract used by Service. Implementations
// perform no retries of their own; retry policy belongs to the Service so it
// can reason about idempotence per operation.
type Store interface {
	ReadField(ctx context.Context, username string, field FieldName) (int64, error)
	WriteField(ctx context.Context, username string, field FieldName, value int64) error
	Locate(ctx context.Context, username string) (Row, error)
}

// IntentStage tracks how far a journaled multi-write operation progressed.
type IntentStage string

const (
	IntentPending     IntentStage = "pending"
	IntentHalfApplied IntentStage = "half_applied"
	IntentApplied     IntentStage = "applied"
	IntentAbandoned   IntentStage = "abandoned"
)

// Intent records the absolute target values of a two-write ledger mutation
// before the first write is issued, so a crash between the writes can be
// repaired by replaying the second write.
type Intent struct {
	IntentID       string
	Operation      string
	FirstUsername  string
	FirstField     FieldName
	FirstValue     int64
	SecondUsername string
	SecondField    FieldName
	SecondValue    int64
	Stage          IntentStage
}

// Journal is the durable intent log used by Service for multi-write
// operations and startup recovery.
type Journal interface {
	Append(ctx context.Context, intent Intent) (string, error)
	SetStage(ctx context.Context, intentID string, stage IntentStage) error
	ListInStage(ctx context.Context, stage IntentStage) ([]Intent, error)
}
