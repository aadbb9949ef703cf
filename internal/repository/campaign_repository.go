package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/garage-campaigns/internal/errors"
	"github.com/unclebandit/garage-campaigns/internal/model"
)

type CampaignRepositoryInterface interface {
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Campaign, error)
	// TransitionStatus moves the campaign to `to` only if its current status is
	// one of `from`. It reports whether this call performed the change.
	TransitionStatus(ctx context.Context, tenantID, id uuid.UUID, from []model.CampaignStatus, to model.CampaignStatus) (bool, error)
	// Finish writes the terminal status of a processing campaign in one statement.
	Finish(ctx context.Context, tenantID, id uuid.UUID, status model.CampaignStatus, sentAt time.Time, errorMessage *string) error
}

type CampaignRepository struct {
	DB *sqlx.DB
}

const campaignColumns = `id, tenant_id, name, subject, template_id, reply_to, from_email,
    status, sent_at, error_message, created_at, updated_at`

// ====================== Campaign reads ======================

func (r *CampaignRepository) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1 AND tenant_id=$2`
	var c model.Campaign
	if err := r.DB.GetContext(ctx, &c, query, id, tenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, fmt.Errorf("failed to get campaign %s: %w", id, err)
	}
	return &c, nil
}

// ====================== Status writes ======================

func (r *CampaignRepository) TransitionStatus(ctx context.Context, tenantID, id uuid.UUID, from []model.CampaignStatus, to model.CampaignStatus) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	query := `
        UPDATE campaigns
        SET status=$1, updated_at=NOW()
        WHERE id=$2 AND tenant_id=$3 AND status = ANY($4)
    `
	res, err := r.DB.ExecContext(ctx, query, string(to), id, tenantID, pq.Array(states))
	if err != nil {
		return false, fmt.Errorf("failed to move campaign %s to %s: %w", id, to, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRepository) Finish(ctx context.Context, tenantID, id uuid.UUID, status model.CampaignStatus, sentAt time.Time, errorMessage *string) error {
	query := `
        UPDATE campaigns
        SET status=$1, sent_at=$2, error_message=$3, updated_at=NOW()
        WHERE id=$4 AND tenant_id=$5 AND status='processing'
    `
	res, err := r.DB.ExecContext(ctx, query, string(status), sentAt, errorMessage, id, tenantID)
	if err != nil {
		return fmt.Errorf("failed to finish campaign %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewInvalidTransition(id, "not processing", string(status))
	}
	return nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
