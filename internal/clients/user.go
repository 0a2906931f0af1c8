package clients

import (
	"context"

	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/rpc"
)

type userIDRequest struct {
	UserID string `json:"user_id"`
}

type createUserRequest struct {
	Name        string             `json:"name"`
	Email       string             `json:"email"`
	PushToken   *string            `json:"push_token,omitempty"`
	Preferences domain.Preferences `json:"preferences"`
}

type updateUserRequest struct {
	UserID string         `json:"user_id"`
	Data   map[string]any `json:"data"`
}

type UserClient struct {
	caller rpc.Caller
	queue  string
}

func NewUserClient(caller rpc.Caller, queue string) *UserClient {
	return &UserClient{caller: caller, queue: queue}
}

// GetByID treats any rejection without a known code as a missing user.
func (c *UserClient) GetByID(ctx context.Context, userID string) (domain.User, error) {
	var user domain.User
	resp, err := call(ctx, c.caller, c.queue, PatternUserGetByID, lookupTimeout, userIDRequest{UserID: userID})
	if err != nil {
		return user, orElse(err, domain.ErrNotFound)
	}
	if err := resp.Decode(&user); err != nil {
		return user, err
	}
	return user, nil
}

func (c *UserClient) Create(ctx context.Context, in domain.NewUser) (domain.User, error) {
	var user domain.User
	resp, err := call(ctx, c.caller, c.queue, PatternUserCreate, writeTimeout, createUserRequest{
		Name:        in.Name,
		Email:       in.Email,
		PushToken:   in.PushToken,
		Preferences: in.Preferences,
	})
	if err != nil {
		return user, orElse(err, domain.ErrValidation)
	}
	if err := resp.Decode(&user); err != nil {
		return user, err
	}
	return user, nil
}

func (c *UserClient) Update(ctx context.Context, userID string, fields map[string]any) (domain.User, error) {
	var user domain.User
	resp, err := call(ctx, c.caller, c.queue, PatternUserUpdate, writeTimeout, updateUserRequest{UserID: userID, Data: fields})
	if err != nil {
		return user, orElse(err, domain.ErrValidation)
	}
	if err := resp.Decode(&user); err != nil {
		return user, err
	}
	return user, nil
}

func (c *UserClient) Delete(ctx context.Context, userID string) error {
	_, err := call(ctx, c.caller, c.queue, PatternUserDelete, writeTimeout, userIDRequest{UserID: userID})
	return err
}
