package repository

import (
	"context"

	"buildinpublic-hub/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CommitRepo struct {
	db *gorm.DB
}

var _ CommitRepository = (*CommitRepo)(nil)

func NewCommitRepo(db *gorm.DB) *CommitRepo {
	return &CommitRepo{db: db}
}

func (r *CommitRepo) InsertIgnore(ctx context.Context, commits []models.SparCommit) (int64, error) {
	if len(commits) == 0 {
		return 0, nil
	}
	for i := range commits {
		if commits[i].ID == "" {
			commits[i].ID = uuid.NewString()
		}
	}
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "spar_id"}, {Name: "commit_sha"}},
			DoNothing: true,
		}).
		Create(&commits)
	if res.Error != nil {
		return 0, wrap("insert spar commits", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *CommitRepo) Count(ctx context.Context, sparID, userID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.SparCommit{}).
		Where("spar_id = ? AND user_id = ?", sparID, userID).
		Count(&n).Error
	if err != nil {
		return 0, wrap("count spar commits", err)
	}
	return n, nil
}

func (r *CommitRepo) ListForSpar(ctx context.Context, sparID string) ([]models.SparCommit, error) {
	var commits []models.SparCommit
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("spar_id = ?", sparID).
		Order("committed_at DESC").
		Order("commit_sha ASC").
		Find(&commits).Error
	if err != nil {
		return nil, wrap("list spar commits", err)
	}
	return commits, nil
}
