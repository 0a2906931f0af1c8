package repository

import (
	"time"

	"github.com/kursadbilgin/notification-platform/internal/domain"
)

// DeliveryLogModel is the persistence model shared by the per-channel log
// tables (email_logs, push_logs). The table is chosen per repository.
type DeliveryLogModel struct {
	ID           string                `gorm:"type:uuid;primaryKey"`
	RequestID    string                `gorm:"type:varchar(64);not null"`
	UserID       string                `gorm:"type:varchar(64);not null"`
	Recipient    string                `gorm:"type:text;not null;default:''"`
	Subject      string                `gorm:"type:text;not null;default:''"`
	Body         string                `gorm:"type:text;not null;default:''"`
	Data         map[string]any        `gorm:"type:text;serializer:json"`
	Status       domain.DeliveryStatus `gorm:"type:varchar(20);not null"`
	ErrorMessage *string               `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID            string         `gorm:"type:uuid;primaryKey"`
	RequestID     string         `gorm:"type:varchar(64);not null"`
	Channel       domain.Channel `gorm:"type:varchar(10);not null"`
	AttemptNumber int            `gorm:"not null"`
	StatusCode    *int           `gorm:"type:int"`
	Error         *string        `gorm:"type:text"`
	CreatedAt     time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

// LogTable returns the delivery log table owned by a channel's worker.
func LogTable(channel domain.Channel) string {
	return channel.String() + "_logs"
}

func logModelFromDomain(e *domain.DeliveryLogEntry) *DeliveryLogModel {
	if e == nil {
		return nil
	}

	return &DeliveryLogModel{
		ID:           e.ID,
		RequestID:    e.RequestID,
		UserID:       e.UserID,
		Recipient:    e.Recipient,
		Subject:      e.Subject,
		Body:         e.Body,
		Data:         e.Data,
		Status:       e.Status,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func logModelToDomain(m *DeliveryLogModel, channel domain.Channel) *domain.DeliveryLogEntry {
	if m == nil {
		return nil
	}

	return &domain.DeliveryLogEntry{
		ID:           m.ID,
		RequestID:    m.RequestID,
		Channel:      channel,
		UserID:       m.UserID,
		Recipient:    m.Recipient,
		Subject:      m.Subject,
		Body:         m.Body,
		Data:         m.Data,
		Status:       m.Status,
		ErrorMessage: m.ErrorMessage,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:            a.ID,
		RequestID:     a.RequestID,
		Channel:       a.Channel,
		AttemptNumber: a.AttemptNumber,
		StatusCode:    a.StatusCode,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:            m.ID,
		RequestID:     m.RequestID,
		Channel:       m.Channel,
		AttemptNumber: m.AttemptNumber,
		StatusCode:    m.StatusCode,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}
