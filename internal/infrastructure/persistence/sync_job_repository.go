package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ordersync/backend/internal/domain/integration"
	"github.com/ordersync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSyncJobRepository implements integration.SyncJobRepository using GORM
type GormSyncJobRepository struct {
	db *gorm.DB
}

// NewGormSyncJobRepository creates a new GormSyncJobRepository
func NewGormSyncJobRepository(db *gorm.DB) *GormSyncJobRepository {
	return &GormSyncJobRepository{db: db}
}

// Create inserts a new job
func (r *GormSyncJobRepository) Create(ctx context.Context, job *integration.SyncJob) error {
	model := &models.SyncJobModel{}
	model.FromDomain(job)
	return r.db.WithContext(ctx).Create(model).Error
}

// Update writes the job's progress and outcome
func (r *GormSyncJobRepository) Update(ctx context.Context, job *integration.SyncJob) error {
	model := &models.SyncJobModel{}
	model.FromDomain(job)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds a job by its ID
func (r *GormSyncJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.SyncJob, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrSyncJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindLatestByConfig returns the most recently started job of a config
func (r *GormSyncJobRepository) FindLatestByConfig(ctx context.Context, configID uuid.UUID) (*integration.SyncJob, error) {
	var model models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where("config_id = ?", configID).
		Order("started_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrSyncJobNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindRunningByConfig returns the RUNNING jobs of a config
func (r *GormSyncJobRepository) FindRunningByConfig(ctx context.Context, configID uuid.UUID) ([]integration.SyncJob, error) {
	var jobModels []models.SyncJobModel
	if err := r.db.WithContext(ctx).
		Where("config_id = ? AND status = ?", configID, integration.SyncJobRunning).
		Order("started_at DESC").
		Find(&jobModels).Error; err != nil {
		return nil, err
	}
	return toSyncJobs(jobModels), nil
}

// List returns a page of jobs, newest first
func (r *GormSyncJobRepository) List(ctx context.Context, filter integration.SyncJobFilter) ([]integration.SyncJob, int64, error) {
	filter.Normalize()

	var total int64
	if err := r.applyJobFilter(r.db.WithContext(ctx).Model(&models.SyncJobModel{}), filter).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var jobModels []models.SyncJobModel
	if err := r.applyJobFilter(r.db.WithContext(ctx), filter).
		Order(orderClause(filter.OrderBy, filter.OrderDir, SyncJobSortFields, "started_at")).
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&jobModels).Error; err != nil {
		return nil, 0, err
	}
	return toSyncJobs(jobModels), total, nil
}

// ExpireStale fails every RUNNING job started before cutoff in a single UPDATE
func (r *GormSyncJobRepository) ExpireStale(ctx context.Context, cutoff, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.SyncJobModel{}).
		Where("status = ? AND started_at < ?", integration.SyncJobRunning, cutoff).
		Updates(map[string]interface{}{
			"status":        integration.SyncJobFailed,
			"error_message": integration.StaleJobMessage,
			"finished_at":   now,
			"updated_at":    now,
		})
	return result.RowsAffected, result.Error
}

func (r *GormSyncJobRepository) applyJobFilter(query *gorm.DB, filter integration.SyncJobFilter) *gorm.DB {
	if filter.ConfigID != nil {
		query = query.Where("config_id = ?", *filter.ConfigID)
	}
	if filter.Platform != "" {
		query = query.Where("platform = ?", filter.Platform)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return query
}

func toSyncJobs(jobModels []models.SyncJobModel) []integration.SyncJob {
	jobs := make([]integration.SyncJob, len(jobModels))
	for i := range jobModels {
		jobs[i] = *jobModels[i].ToDomain()
	}
	return jobs
}

// Ensure GormSyncJobRepository implements SyncJobRepository
var _ integration.SyncJobRepository = (*GormSyncJobRepository)(nil)
