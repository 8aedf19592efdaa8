package repository

import (
	"context"
	"strings"

	"buildinpublic-hub/errs"
	"buildinpublic-hub/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DeveloperRepo struct {
	db *gorm.DB
}

var _ DeveloperRepository = (*DeveloperRepo)(nil)

func NewDeveloperRepo(db *gorm.DB) *DeveloperRepo {
	return &DeveloperRepo{db: db}
}

func (r *DeveloperRepo) Track(ctx context.Context, profile DeveloperProfile) (*models.Developer, error) {
	handle := strings.TrimSpace(profile.Handle)
	if handle == "" {
		return nil, errs.ErrValidation
	}
	dev := models.Developer{
		ID:              uuid.NewString(),
		Username:        handle,
		HandleKey:       models.HandleKey(handle),
		FullName:        profile.FullName,
		AvatarURL:       profile.AvatarURL,
		TwitterUsername: profile.TwitterUsername,
	}
	// Re-tracking refreshes the profile but keeps the id, score and history.
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "handle_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"username", "full_name", "avatar_url", "twitter_username", "updated_at"}),
		}).
		Create(&dev).Error; err != nil {
		return nil, wrap("track developer", err)
	}

	var stored models.Developer
	if err := r.db.WithContext(ctx).Where("handle_key = ?", dev.HandleKey).First(&stored).Error; err != nil {
		return nil, wrap("track developer", err)
	}
	return &stored, nil
}

func (r *DeveloperRepo) List(ctx context.Context) ([]models.Developer, error) {
	var devs []models.Developer
	if err := r.db.WithContext(ctx).Order("username ASC").Find(&devs).Error; err != nil {
		return nil, wrap("list developers", err)
	}
	return devs, nil
}

func (r *DeveloperRepo) RecordStats(ctx context.Context, stats *models.StatsHistory) error {
	if stats.ID == "" {
		stats.ID = uuid.NewString()
	}
	return wrap("record stats", r.db.WithContext(ctx).Create(stats).Error)
}

func (r *DeveloperRepo) SetScore(ctx context.Context, id string, score float64) error {
	res := r.db.WithContext(ctx).Model(&models.Developer{}).
		Where("id = ?", id).
		Update("total_score", score)
	if res.Error != nil {
		return wrap("set score", res.Error)
	}
	if res.RowsAffected == 0 {
		return wrap("set score", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *DeveloperRepo) Leaderboard(ctx context.Context, limit int) ([]models.Developer, error) {
	var devs []models.Developer
	err := r.db.WithContext(ctx).
		Order("total_score DESC").
		Order("username ASC").
		Limit(limit).
		Find(&devs).Error
	if err != nil {
		return nil, wrap("developer leaderboard", err)
	}
	return devs, nil
}
