package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"gorm.io/gorm"
)

type DeliveryLogRepository interface {
	Get(ctx context.Context, requestID string) (*domain.DeliveryLogEntry, error)
	CreatePending(ctx context.Context, entry *domain.DeliveryLogEntry) error
	// MarkTerminal moves a pending entry to sent or failed. It reports false
	// when the entry was missing or already terminal.
	MarkTerminal(ctx context.Context, requestID string, status domain.DeliveryStatus, errorMessage *string) (bool, error)
	UpdateStatus(ctx context.Context, requestID string, status domain.DeliveryStatus, errorMessage *string) error
	ListByUser(ctx context.Context, userID string) ([]domain.DeliveryLogEntry, error)
	ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.DeliveryLogEntry, error)
	Ping(ctx context.Context) error
}

type GormDeliveryLogRepo struct {
	db      *gorm.DB
	channel domain.Channel
	table   string
	now     func() time.Time
}

var _ DeliveryLogRepository = (*GormDeliveryLogRepo)(nil)

func NewGormDeliveryLogRepo(db *gorm.DB, channel domain.Channel) *GormDeliveryLogRepo {
	return &GormDeliveryLogRepo{
		db:      db,
		channel: channel,
		table:   LogTable(channel),
		now:     time.Now,
	}
}

func (r *GormDeliveryLogRepo) Channel() domain.Channel {
	return r.channel
}

func (r *GormDeliveryLogRepo) query(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Table(r.table)
}

func (r *GormDeliveryLogRepo) Get(ctx context.Context, requestID string) (*domain.DeliveryLogEntry, error) {
	var model DeliveryLogModel
	err := r.query(ctx).Where("request_id = ?", requestID).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s log entry %s", domain.ErrNotFound, r.channel, requestID)
	}
	if err != nil {
		return nil, err
	}
	return logModelToDomain(&model, r.channel), nil
}

func (r *GormDeliveryLogRepo) CreatePending(ctx context.Context, entry *domain.DeliveryLogEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: log entry is required", domain.ErrValidation)
	}

	model := logModelFromDomain(entry)
	if model.ID == "" {
		model.ID = uuid.NewString()
	}
	model.Status = domain.StatusPending
	if model.CreatedAt.IsZero() {
		model.CreatedAt = r.now().UTC()
	}
	model.UpdatedAt = model.CreatedAt

	if err := r.query(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s log entry %s already exists", domain.ErrConflict, r.channel, entry.RequestID)
		}
		return err
	}

	*entry = *logModelToDomain(model, r.channel)
	return nil
}

func (r *GormDeliveryLogRepo) MarkTerminal(ctx context.Context, requestID string, status domain.DeliveryStatus, errorMessage *string) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("%w: %q is not a terminal status", domain.ErrValidation, status)
	}

	result := r.query(ctx).
		Where("request_id = ? AND status = ?", requestID, domain.StatusPending).
		Updates(map[string]any{
			"status":        status,
			"error_message": errorMessage,
			"updated_at":    r.now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormDeliveryLogRepo) UpdateStatus(ctx context.Context, requestID string, status domain.DeliveryStatus, errorMessage *string) error {
	if !status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}

	updates := map[string]any{
		"status":     status,
		"updated_at": r.now().UTC(),
	}
	// A callback without an error keeps the previously recorded one.
	if errorMessage != nil {
		updates["error_message"] = *errorMessage
	}

	result := r.query(ctx).
		Where("request_id = ?", requestID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s log entry %s", domain.ErrNotFound, r.channel, requestID)
	}
	return nil
}

func (r *GormDeliveryLogRepo) ListByUser(ctx context.Context, userID string) ([]domain.DeliveryLogEntry, error) {
	var models []DeliveryLogModel
	err := r.query(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return r.toDomain(models), nil
}

func (r *GormDeliveryLogRepo) ListStalePending(ctx context.Context, olderThan time.Time, limit int) ([]domain.DeliveryLogEntry, error) {
	if limit < 1 {
		limit = 100
	}

	var models []DeliveryLogModel
	err := r.query(ctx).
		Where("status = ? AND updated_at < ?", domain.StatusPending, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	return r.toDomain(models), nil
}

func (r *GormDeliveryLogRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormDeliveryLogRepo) toDomain(models []DeliveryLogModel) []domain.DeliveryLogEntry {
	entries := make([]domain.DeliveryLogEntry, 0, len(models))
	for i := range models {
		entries = append(entries, *logModelToDomain(&models[i], r.channel))
	}
	return entries
}
