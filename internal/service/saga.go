package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-platform/internal/domain"
)

// profileReservation is a created user profile awaiting its credentials. It
// ends either confirmed or compensated, never both.
type profileReservation struct {
	users   UserDirectory
	user    domain.User
	settled bool
}

func reserveProfile(ctx context.Context, users UserDirectory, in domain.NewUser) (*profileReservation, error) {
	user, err := users.Create(ctx, in)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(user.ID) == "" {
		return nil, fmt.Errorf("user service returned a profile without an id")
	}
	return &profileReservation{users: users, user: user}, nil
}

func (r *profileReservation) UserID() string { return r.user.ID }

func (r *profileReservation) Confirm() domain.User {
	r.settled = true
	return r.user
}

// Compensate deletes the profile. It runs even when ctx was canceled.
func (r *profileReservation) Compensate(ctx context.Context) error {
	if r.settled {
		return nil
	}
	r.settled = true

	if err := r.users.Delete(context.WithoutCancel(ctx), r.user.ID); err != nil {
		return fmt.Errorf("failed to delete user profile %s: %w", r.user.ID, err)
	}
	return nil
}
