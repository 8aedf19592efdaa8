package repository

import (
	"context"
	"fmt"
	"time"

	"buildinpublic-hub/errs"
	"buildinpublic-hub/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SparRepo struct {
	db *gorm.DB
}

var _ SparRepository = (*SparRepo)(nil)

func NewSparRepo(db *gorm.DB) *SparRepo {
	return &SparRepo{db: db}
}

func (r *SparRepo) Create(ctx context.Context, spar *models.Spar) error {
	if spar.ID == "" {
		spar.ID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(spar).Error; err != nil {
		return wrap("create spar", err)
	}
	return nil
}

func (r *SparRepo) withParticipants(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Creator").
		Preload("Opponent").
		Preload("Winner")
}

func (r *SparRepo) Get(ctx context.Context, id string) (*models.Spar, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("get spar %q: %w", id, errs.ErrNotFound)
	}
	var spar models.Spar
	if err := r.withParticipants(ctx).First(&spar, "id = ?", id).Error; err != nil {
		return nil, wrap("get spar", err)
	}
	return &spar, nil
}

func (r *SparRepo) List(ctx context.Context, filter SparFilter) ([]models.Spar, error) {
	q := r.withParticipants(ctx).Order("created_at DESC")
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var spars []models.Spar
	if err := q.Find(&spars).Error; err != nil {
		return nil, wrap("list spars", err)
	}
	return spars, nil
}

func (r *SparRepo) ListByStatus(ctx context.Context, status models.SparStatus) ([]models.Spar, error) {
	var spars []models.Spar
	err := r.withParticipants(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&spars).Error
	if err != nil {
		return nil, wrap("list spars by status", err)
	}
	return spars, nil
}

func (r *SparRepo) ListDueForStart(ctx context.Context, now time.Time) ([]models.Spar, error) {
	var spars []models.Spar
	err := r.withParticipants(ctx).
		Where("status = ? AND scheduled_start <= ?", models.SparStatusAccepted, now).
		Order("scheduled_start ASC").
		Find(&spars).Error
	if err != nil {
		return nil, wrap("list due spars", err)
	}
	return spars, nil
}

func (r *SparRepo) Transition(ctx context.Context, id string, from, to models.SparStatus, fields map[string]any) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("transition %s -> %s: %w", from, to, errs.ErrInvalidState)
	}
	updates := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to

	res := r.db.WithContext(ctx).Model(&models.Spar{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, wrap("transition spar", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func countColumn(role models.SparRole) (string, error) {
	switch role {
	case models.SparRoleCreator:
		return "creator_commits", nil
	case models.SparRoleOpponent:
		return "opponent_commits", nil
	}
	return "", fmt.Errorf("role %q: %w", role, errs.ErrValidation)
}

func (r *SparRepo) SetCommitCount(ctx context.Context, id string, role models.SparRole, count int64) (bool, error) {
	column, err := countColumn(role)
	if err != nil {
		return false, err
	}
	// Totals freeze once the spar leaves active.
	res := r.db.WithContext(ctx).Model(&models.Spar{}).
		Where("id = ? AND status = ?", id, models.SparStatusActive).
		Update(column, count)
	if res.Error != nil {
		return false, wrap("set commit count", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *SparRepo) MarkPaid(ctx context.Context, id string, role models.SparRole, paymentIntentID string) (bool, error) {
	var updates map[string]any
	switch role {
	case models.SparRoleCreator:
		updates = map[string]any{"creator_paid": true, "stripe_payment_intent_creator": paymentIntentID}
	case models.SparRoleOpponent:
		updates = map[string]any{"opponent_paid": true, "stripe_payment_intent_opponent": paymentIntentID}
	default:
		return false, fmt.Errorf("role %q: %w", role, errs.ErrValidation)
	}
	res := r.db.WithContext(ctx).Model(&models.Spar{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return false, wrap("mark paid", res.Error)
	}
	return res.RowsAffected > 0, nil
}
