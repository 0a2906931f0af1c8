package domain

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// legacyPushTokenPrefix marks placeholder tokens issued before web push subscriptions.
const legacyPushTokenPrefix = "web-push-token-"

// PushSubscription is a browser web push subscription.
type PushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// ParsePushSubscription decodes a stored push token. Every failure wraps ErrInvalidTarget.
func ParsePushSubscription(token string) (PushSubscription, error) {
	var sub PushSubscription

	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return sub, fmt.Errorf("%w: push token is empty", ErrInvalidTarget)
	}
	if strings.HasPrefix(trimmed, legacyPushTokenPrefix) {
		return sub, fmt.Errorf("%w: legacy push token format, re-subscription required", ErrInvalidTarget)
	}
	if err := json.Unmarshal([]byte(trimmed), &sub); err != nil {
		return sub, fmt.Errorf("%w: push token is not a subscription object: %v", ErrInvalidTarget, err)
	}
	if strings.TrimSpace(sub.Endpoint) == "" {
		return sub, fmt.Errorf("%w: push subscription endpoint is missing", ErrInvalidTarget)
	}
	if sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return sub, fmt.Errorf("%w: push subscription keys are missing", ErrInvalidTarget)
	}
	return sub, nil
}
