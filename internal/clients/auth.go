package clients

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/rpc"
)

type registerRequest struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

type tokenClaims struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

type AuthClient struct {
	caller rpc.Caller
	queue  string
}

func NewAuthClient(caller rpc.Caller, queue string) *AuthClient {
	return &AuthClient{caller: caller, queue: queue}
}

// Register stores the credentials of an existing profile.
func (c *AuthClient) Register(ctx context.Context, userID string, in domain.NewUser) (domain.Session, error) {
	var session domain.Session
	resp, err := call(ctx, c.caller, c.queue, PatternAuthRegister, writeTimeout, registerRequest{
		UserID:   userID,
		Name:     in.Name,
		Email:    in.Email,
		Password: in.Password,
	})
	if err != nil {
		return session, orElse(err, domain.ErrValidation)
	}
	if err := resp.Decode(&session); err != nil {
		return session, err
	}
	return session, nil
}

// Login maps every rejection to ErrUnauthorized.
func (c *AuthClient) Login(ctx context.Context, email string, password string) (domain.Session, error) {
	var session domain.Session
	resp, err := call(ctx, c.caller, c.queue, PatternAuthLogin, writeTimeout, loginRequest{Email: email, Password: password})
	if err != nil {
		if resp != nil {
			return session, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
		}
		return session, err
	}
	if err := resp.Decode(&session); err != nil {
		return session, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	return session, nil
}

func (c *AuthClient) ValidateToken(ctx context.Context, token string) (domain.Principal, error) {
	var claims tokenClaims
	resp, err := call(ctx, c.caller, c.queue, PatternAuthValidateToken, lookupTimeout, validateTokenRequest{Token: token})
	if err != nil {
		if resp != nil {
			return domain.Principal{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
		}
		return domain.Principal{}, err
	}
	if err := resp.Decode(&claims); err != nil || !claims.Valid || claims.UserID == "" {
		return domain.Principal{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
	}
	return domain.Principal{UserID: claims.UserID, Email: claims.Email}, nil
}
