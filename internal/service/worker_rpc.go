package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/kursadbilgin/notification-platform/internal/clients"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/repository"
	"github.com/kursadbilgin/notification-platform/internal/rpc"
	"go.uber.org/zap"
)

// HandlerRegistry is the part of rpc.Server the worker needs.
type HandlerRegistry interface {
	Handle(pattern string, handler rpc.HandlerFunc)
}

// StatusRPC answers the status side channel of one delivery worker.
type StatusRPC struct {
	channel domain.Channel
	logs    repository.DeliveryLogRepository
	logger  *zap.Logger
	now     func() time.Time
}

func NewStatusRPC(channel domain.Channel, logs repository.DeliveryLogRepository, logger *zap.Logger) (*StatusRPC, error) {
	if !channel.IsValid() {
		return nil, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}
	if logs == nil {
		return nil, fmt.Errorf("delivery log repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StatusRPC{
		channel: channel,
		logs:    logs,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Register binds <channel>.update_status, <channel>.get_by_user_id and health.check.
func (h *StatusRPC) Register(registry HandlerRegistry) {
	registry.Handle(clients.StatusPattern(h.channel), h.updateStatus)
	registry.Handle(clients.ListPattern(h.channel), h.listByUser)
	registry.Handle(clients.PatternHealthCheck, h.health)
}

func (h *StatusRPC) updateStatus(ctx context.Context, data json.RawMessage) (*rpc.Response, error) {
	var update domain.StatusUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return nil, fmt.Errorf("%w: invalid status update: %v", domain.ErrValidation, err)
	}
	if strings.TrimSpace(update.RequestID) == "" {
		return nil, fmt.Errorf("%w: request_id is required", domain.ErrValidation)
	}

	status, err := domain.ParseDeliveryStatusFromString(update.Status)
	if err != nil {
		return nil, err
	}
	if err := h.logs.UpdateStatus(ctx, update.RequestID, status, update.Error); err != nil {
		return nil, err
	}

	entry, err := h.logs.Get(ctx, update.RequestID)
	if err != nil {
		return nil, err
	}

	h.logger.Info("delivery status updated",
		zap.String("requestId", update.RequestID),
		zap.String("status", status.String()),
	)
	return rpc.OK(entry.Summary(), "Status updated successfully")
}

func (h *StatusRPC) listByUser(ctx context.Context, data json.RawMessage) (*rpc.Response, error) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: invalid request: %v", domain.ErrValidation, err)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}

	entries, err := h.logs.ListByUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.NotificationSummary, 0, len(entries))
	for _, entry := range entries {
		summaries = append(summaries, entry.Summary())
	}
	return rpc.OK(summaries, fmt.Sprintf("%s notifications retrieved", h.channel))
}

func (h *StatusRPC) health(ctx context.Context, _ json.RawMessage) (*rpc.Response, error) {
	if err := h.logs.Ping(ctx); err != nil {
		return &rpc.Response{
			Success: false,
			Message: fmt.Sprintf("%s service is unhealthy", h.channel),
			Error:   err.Error(),
		}, nil
	}
	return rpc.OK(map[string]any{
		"status":    domain.HealthHealthy,
		"service":   h.channel.String() + "-service",
		"timestamp": h.now().UTC(),
	}, fmt.Sprintf("%s service is healthy", h.channel))
}
