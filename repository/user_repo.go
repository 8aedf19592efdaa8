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

type UserRepo struct {
	db *gorm.DB
}

var _ UserRepository = (*UserRepo)(nil)

func NewUserRepo(db *gorm.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) EnsureUser(ctx context.Context, profile UserProfile) (*models.User, error) {
	handle := strings.TrimSpace(profile.Handle)
	if handle == "" {
		return nil, errs.ErrValidation
	}
	key := models.HandleKey(handle)

	user := models.User{
		ID:             uuid.NewString(),
		GitHubID:       handle,
		GitHubUsername: handle,
		HandleKey:      key,
		AvatarURL:      profile.AvatarURL,
		Email:          profile.Email,
	}
	// Concurrent first logins race on handle_key; the loser falls through to the read.
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "handle_key"}}, DoNothing: true}).
		Create(&user).Error; err != nil {
		return nil, wrap("ensure user", err)
	}

	var stored models.User
	if err := r.db.WithContext(ctx).Where("handle_key = ?", key).First(&stored).Error; err != nil {
		return nil, wrap("ensure user", err)
	}

	if stored.AvatarURL == nil && profile.AvatarURL != nil {
		if err := r.db.WithContext(ctx).Model(&stored).Update("avatar_url", *profile.AvatarURL).Error; err != nil {
			return nil, wrap("update avatar", err)
		}
	}
	return &stored, nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, wrap("get user", err)
	}
	return &user, nil
}

func (r *UserRepo) AddRecord(ctx context.Context, userID string, wins, losses int64) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]any{
			"spar_wins":   gorm.Expr("spar_wins + ?", wins),
			"spar_losses": gorm.Expr("spar_losses + ?", losses),
		})
	if res.Error != nil {
		return wrap("add record", res.Error)
	}
	if res.RowsAffected == 0 {
		return wrap("add record", gorm.ErrRecordNotFound)
	}
	return nil
}

func (r *UserRepo) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("spar_wins > 0 OR spar_losses > 0").
		Order("spar_wins DESC").
		Order("spar_losses ASC").
		Order("github_username ASC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, wrap("leaderboard", err)
	}
	return users, nil
}

func (r *UserRepo) Search(ctx context.Context, query string, limit int) ([]models.User, error) {
	var users []models.User
	db := r.db.WithContext(ctx).Limit(limit).Order("github_username ASC")
	if key := models.HandleKey(query); key != "" {
		db = db.Where("handle_key LIKE ?", stripLikeWildcards(key)+"%")
	}
	if err := db.Find(&users).Error; err != nil {
		return nil, wrap("search users", err)
	}
	return users, nil
}

func stripLikeWildcards(s string) string {
	return strings.NewReplacer("%", "", "_", "").Replace(s)
}
