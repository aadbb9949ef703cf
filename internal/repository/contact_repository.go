package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/unclebandit/garage-campaigns/internal/model"
)

// ContactLedger is the per-recipient delivery record of a campaign.
type ContactLedger interface {
	PendingFor(ctx context.Context, campaignID uuid.UUID) ([]model.PendingContact, error)
	MarkSent(ctx context.Context, contactID uuid.UUID, sentAt time.Time, providerMessageID string) error
	MarkFailed(ctx context.Context, contactID uuid.UUID, kind, errorMessage string) error
	HasAnyFailed(ctx context.Context, campaignID uuid.UUID) (bool, error)
	StatsFor(ctx context.Context, campaignID uuid.UUID) (map[string]int, error)
}

type ContactRepository struct {
	DB *sqlx.DB
}

// PendingFor loads every pending row of the campaign with its recipient.
func (r *ContactRepository) PendingFor(ctx context.Context, campaignID uuid.UUID) ([]model.PendingContact, error) {
	query := `
        SELECT cc.id, cc.campaign_id, cc.customer_id, cu.email, cu.first_name, cu.last_name
        FROM campaign_contacts cc
        JOIN customers cu ON cu.id = cc.customer_id
        WHERE cc.campaign_id=$1 AND cc.status='pending'
    `
	contacts := []model.PendingContact{}
	if err := r.DB.SelectContext(ctx, &contacts, query, campaignID); err != nil {
		return nil, fmt.Errorf("failed to load pending contacts of %s: %w", campaignID, err)
	}
	return contacts, nil
}

// MarkSent and MarkFailed only touch rows that are still pending, so a
// redelivered job never overwrites an outcome already recorded.
func (r *ContactRepository) MarkSent(ctx context.Context, contactID uuid.UUID, sentAt time.Time, providerMessageID string) error {
	query := `
        UPDATE campaign_contacts
        SET status='sent', sent_at=$1, provider_message_id=$2, error_message=NULL, error_kind=NULL, updated_at=NOW()
        WHERE id=$3 AND status='pending'
    `
	if _, err := r.DB.ExecContext(ctx, query, sentAt, providerMessageID, contactID); err != nil {
		return fmt.Errorf("failed to mark contact %s sent: %w", contactID, err)
	}
	return nil
}

func (r *ContactRepository) MarkFailed(ctx context.Context, contactID uuid.UUID, kind, errorMessage string) error {
	query := `
        UPDATE campaign_contacts
        SET status='failed', error_kind=$1, error_message=$2, updated_at=NOW()
        WHERE id=$3 AND status='pending'
    `
	if _, err := r.DB.ExecContext(ctx, query, kind, errorMessage, contactID); err != nil {
		return fmt.Errorf("failed to mark contact %s failed: %w", contactID, err)
	}
	return nil
}

func (r *ContactRepository) HasAnyFailed(ctx context.Context, campaignID uuid.UUID) (bool, error) {
	var failed bool
	query := `SELECT EXISTS (SELECT 1 FROM campaign_contacts WHERE campaign_id=$1 AND status='failed')`
	if err := r.DB.GetContext(ctx, &failed, query, campaignID); err != nil {
		return false, fmt.Errorf("failed to check failed contacts of %s: %w", campaignID, err)
	}
	return failed, nil
}

func (r *ContactRepository) StatsFor(ctx context.Context, campaignID uuid.UUID) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM campaign_contacts WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := map[string]int{
		"total":   0,
		"pending": 0,
		"sent":    0,
		"opened":  0,
		"clicked": 0,
		"bounced": 0,
		"failed":  0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, rows.Err()
}

var _ ContactLedger = (*ContactRepository)(nil)
