package clients

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/rpc"
)

// StatusPattern is the status callback pattern served by a channel worker.
func StatusPattern(channel domain.Channel) string {
	return channel.String() + ".update_status"
}

// ListPattern is the per-user history pattern served by a channel worker.
func ListPattern(channel domain.Channel) string {
	return channel.String() + ".get_by_user_id"
}

// DeliveryClient talks to the RPC queue of each channel worker.
type DeliveryClient struct {
	caller rpc.Caller
	queues map[domain.Channel]string
}

func NewDeliveryClient(caller rpc.Caller, queues map[domain.Channel]string) *DeliveryClient {
	return &DeliveryClient{caller: caller, queues: queues}
}

func (c *DeliveryClient) queue(channel domain.Channel) (string, error) {
	q, ok := c.queues[channel]
	if !ok || q == "" {
		return "", fmt.Errorf("%w: no worker queue for channel %q", domain.ErrValidation, channel)
	}
	return q, nil
}

func (c *DeliveryClient) UpdateStatus(ctx context.Context, channel domain.Channel, update domain.StatusUpdate) (domain.NotificationSummary, error) {
	var summary domain.NotificationSummary
	q, err := c.queue(channel)
	if err != nil {
		return summary, err
	}

	resp, err := call(ctx, c.caller, q, StatusPattern(channel), writeTimeout, update)
	if err != nil {
		return summary, orElse(err, domain.ErrValidation)
	}
	if err := resp.Decode(&summary); err != nil {
		return summary, err
	}
	return summary, nil
}

func (c *DeliveryClient) ListByUser(ctx context.Context, channel domain.Channel, userID string) ([]domain.NotificationSummary, error) {
	q, err := c.queue(channel)
	if err != nil {
		return nil, err
	}

	resp, err := call(ctx, c.caller, q, ListPattern(channel), lookupTimeout, userIDRequest{UserID: userID})
	if err != nil {
		return nil, err
	}

	summaries := []domain.NotificationSummary{}
	if err := resp.Decode(&summaries); err != nil && !isEmptyData(resp) {
		return nil, err
	}
	return summaries, nil
}

func isEmptyData(resp *rpc.Response) bool {
	return resp == nil || len(resp.Data) == 0 || string(resp.Data) == "null"
}
