// Package clients wraps the broker RPC patterns of the user, template, auth
// and delivery services in typed calls with per-pattern timeouts.
package clients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/rpc"
)

const (
	lookupTimeout = 3 * time.Second
	writeTimeout  = 5 * time.Second
)

const (
	PatternUserGetByID       = "user.get_by_id"
	PatternUserCreate        = "user.create"
	PatternUserUpdate        = "user.update"
	PatternUserDelete        = "user.delete"
	PatternTemplateGetByName = "template.get_by_name"
	PatternTemplateGetAll    = "template.get_all"
	PatternAuthRegister      = "auth.register"
	PatternAuthLogin         = "auth.login"
	PatternAuthValidateToken = "auth.validate_token"
	PatternHealthCheck       = "health.check"
)

// call bounds one RPC with its own timeout and turns a rejected reply into an
// error.
func call(ctx context.Context, caller rpc.Caller, queue string, pattern string, timeout time.Duration, payload any) (*rpc.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := caller.Call(callCtx, queue, pattern, payload)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(pattern); err != nil {
		return resp, err
	}
	return resp, nil
}

// classified reports whether err already maps to a domain sentinel.
func classified(err error) bool {
	for _, sentinel := range []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrConflict,
		domain.ErrUnauthorized,
		domain.ErrServiceUnavailable,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// orElse wraps an unclassified rejection with fallback. Downstream internal
// errors stay unclassified.
func orElse(err error, fallback error) error {
	if err == nil || classified(err) {
		return err
	}
	var remote *rpc.RemoteError
	if !errors.As(err, &remote) || remote.Code == rpc.CodeInternal {
		return err
	}
	return fmt.Errorf("%w: %w", fallback, err)
}
