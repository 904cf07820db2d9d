package tokenstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CredentialRecord mirrors the tokens table: one row per platform user,
// always holding the most recently validated token pair.
type CredentialRecord struct {
	UserID  string `gorm:"primaryKey;column:user_id"`
	Token   string `gorm:"not null"`
	Refresh string `gorm:"not null"`
}

func (CredentialRecord) TableName() string { return "tokens" }

// LedgerIntent mirrors the ledger_intents table: the durable intent journal
// written before every two-write ledger mutation.
type LedgerIntent struct {
	IntentID       string         `gorm:"type:uuid;primaryKey"`
	Operation      string         `gorm:"not null"`
	FirstUsername  string         `gorm:"not null"`
	FirstField     string         `gorm:"not null"`
	FirstValue     int64          `gorm:"not null"`
	SecondUsername string         `gorm:"not null"`
	SecondField    string         `gorm:"not null"`
	SecondValue    int64          `gorm:"not null"`
	Stage          string         `gorm:"not null;index:idx_intents_stage"`
	Metadata       datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null"`
	UpdatedAt      time.Time      `gorm:"not null"`
}

func (LedgerIntent) TableName() string { return "ledger_intents" }

func (intent *LedgerIntent) BeforeCreate(tx *gorm.DB) error {
	if intent.IntentID == "" {
		intent.IntentID = uuid.NewString()
	}
	return nil
}
