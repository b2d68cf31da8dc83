package common

import (
	"context"
	"log"
	"time"

	"nftdrops/src/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const ProviderStripe = "stripe"

// WebhookLedger keeps an audit row per verified webhook event.
type WebhookLedger interface {
	Record(ctx context.Context, ev *models.WebhookEvent) error
	Complete(ctx context.Context, provider, eventID string, procErr error) error
}

type GormWebhookLedger struct {
	db *gorm.DB
}

func NewGormWebhookLedger(db *gorm.DB) *GormWebhookLedger {
	return &GormWebhookLedger{db: db}
}

// Record ignores redeliveries of an event already in the ledger.
func (l *GormWebhookLedger) Record(ctx context.Context, ev *models.WebhookEvent) error {
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ev).
		Error
	if err != nil {
		log.Printf("[ledger] Error recording %s event %s: %s\n", ev.Provider, ev.ProviderEventID, err.Error())
	}
	return err
}

func (l *GormWebhookLedger) Complete(ctx context.Context, provider, eventID string, procErr error) error {
	updates := map[string]any{
		"processed_at":     time.Now().UTC(),
		"processing_error": "",
	}
	if procErr != nil {
		updates["processing_error"] = procErr.Error()
	}
	err := l.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("provider = ? AND provider_event_id = ?", provider, eventID).
		Updates(updates).
		Error
	if err != nil {
		log.Printf("[ledger] Error completing %s event %s: %s\n", provider, eventID, err.Error())
	}
	return err
}

// NoopWebhookLedger is used when no database is configured.
type NoopWebhookLedger struct{}

func (NoopWebhookLedger) Record(ctx context.Context, ev *models.WebhookEvent) error {
	return nil
}

func (NoopWebhookLedger) Complete(ctx context.Context, provider, eventID string, procErr error) error {
	return nil
}
