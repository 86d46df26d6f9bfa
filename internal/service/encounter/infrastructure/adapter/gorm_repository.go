package adapter

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lingap/internal/service/encounter/domain"
)

// GormSubmissionRepository 用 MySQL 持久化提交与步骤日志。
type GormSubmissionRepository struct {
	db *gorm.DB
}

func NewGormSubmissionRepository(db *gorm.DB) *GormSubmissionRepository {
	return &GormSubmissionRepository{db: db}
}

func (r *GormSubmissionRepository) Save(ctx context.Context, sub *domain.Submission) error {
	model := toSubmissionModel(sub)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(model).Error
	return errors.Wrapf(err, "save submission %s", sub.ID)
}

func (r *GormSubmissionRepository) AppendStep(ctx context.Context, submissionID string, step *domain.StepRecord) error {
	err := r.db.WithContext(ctx).Create(toStepModel(submissionID, step)).Error
	return errors.Wrapf(err, "append step log for submission %s", submissionID)
}

func (r *GormSubmissionRepository) Steps(ctx context.Context, submissionID string) ([]*domain.StepRecord, error) {
	var models []*SubmissionStepModel
	err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "load step log for submission %s", submissionID)
	}
	steps := make([]*domain.StepRecord, 0, len(models))
	for _, m := range models {
		steps = append(steps, toStepDomain(m))
	}
	return steps, nil
}

func (r *GormSubmissionRepository) FindUnfinished(ctx context.Context) ([]*domain.Submission, error) {
	var models []*SubmissionModel
	err := r.db.WithContext(ctx).
		Where("state NOT IN ?", []string{string(domain.StateCommitted), string(domain.StateFailed)}).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "find unfinished submissions")
	}
	subs := make([]*domain.Submission, 0, len(models))
	for _, m := range models {
		subs = append(subs, toSubmissionDomain(m))
	}
	return subs, nil
}

var _ domain.SubmissionRepository = (*GormSubmissionRepository)(nil)
