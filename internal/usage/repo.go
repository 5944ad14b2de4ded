// Package usage keeps a durable record of settled chat exchanges.
package usage

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/suPer8Hu/ai-chat/internal/chat"
)

type ExchangeRecord struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement"`
	EventID          string    `gorm:"type:varchar(32);uniqueIndex;not null"`
	SessionID        string    `gorm:"type:varchar(32);index;not null"`
	Model            string    `gorm:"type:varchar(128);index;not null"`
	OK               bool      `gorm:"not null"`
	Error            string    `gorm:"type:text"`
	PromptTokens     int       `gorm:"not null;default:0"`
	CompletionTokens int       `gorm:"not null;default:0"`
	TotalTokens      int       `gorm:"not null;default:0"`
	LatencyMS        int64     `gorm:"not null;default:0"`
	SettledAt        time.Time `gorm:"index"`
	CreatedAt        time.Time
}

func (ExchangeRecord) TableName() string { return "chat_exchanges" }

func FromEvent(ev chat.ExchangeEvent) ExchangeRecord {
	rec := ExchangeRecord{
		EventID:   ev.ID,
		SessionID: ev.SessionID,
		Model:     ev.Model,
		OK:        ev.OK,
		Error:     ev.Error,
		LatencyMS: ev.Latency.Milliseconds(),
		SettledAt: ev.SettledAt,
	}
	if ev.Usage != nil {
		rec.PromptTokens = ev.Usage.PromptTokens
		rec.CompletionTokens = ev.Usage.CompletionTokens
		rec.TotalTokens = ev.Usage.TotalTokens
	}
	return rec
}

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Migrate() error {
	return r.db.AutoMigrate(&ExchangeRecord{})
}

// Insert stores rec unless its event id was already recorded. The boolean
// reports whether a row was written, so redelivered events are harmless.
func (r *Repo) Insert(ctx context.Context, rec *ExchangeRecord) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListBySession returns a session's exchanges, newest first.
func (r *Repo) ListBySession(ctx context.Context, sessionID string, limit int) ([]ExchangeRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []ExchangeRecord
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("settled_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type ModelTotal struct {
	Model            string
	Exchanges        int64
	Failures         int64
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// TotalsByModel aggregates exchanges settled at or after since.
func (r *Repo) TotalsByModel(ctx context.Context, since time.Time) ([]ModelTotal, error) {
	var out []ModelTotal
	err := r.db.WithContext(ctx).
		Model(&ExchangeRecord{}).
		Select(`model,
			COUNT(*) AS exchanges,
			SUM(CASE WHEN ok THEN 0 ELSE 1 END) AS failures,
			SUM(prompt_tokens) AS prompt_tokens,
			SUM(completion_tokens) AS completion_tokens,
			SUM(total_tokens) AS total_tokens`).
		Where("settled_at >= ?", since).
		Group("model").
		Order("model").
		Scan(&out).Error
	return out, err
}
