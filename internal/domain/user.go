package domain

import "strings"

// Preferences controls which channels a user accepts.
type Preferences struct {
	EmailNotifications bool   `json:"email_notifications"`
	PushNotifications  bool   `json:"push_notifications"`
	Language           string `json:"language,omitempty"`
}

type User struct {
	ID          string      `json:"id"`
	Name        string      `json:"name,omitempty"`
	Email       string      `json:"email"`
	PushToken   *string     `json:"push_token,omitempty"`
	Preferences Preferences `json:"preferences"`
}

// Allows reports whether the user opted in to the channel. Push also needs a token.
func (u User) Allows(channel Channel) bool {
	switch channel {
	case ChannelEmail:
		return u.Preferences.EmailNotifications && strings.TrimSpace(u.Email) != ""
	case ChannelPush:
		return u.Preferences.PushNotifications && u.PushToken != nil && strings.TrimSpace(*u.PushToken) != ""
	}
	return false
}

// NewUser is the input of the create-user flow.
type NewUser struct {
	Name        string
	Email       string
	Password    string
	PushToken   *string
	Preferences Preferences
}

// PreferencesUpdate carries optional preference changes.
type PreferencesUpdate struct {
	Email    *bool
	Push     *bool
	Language *string
}

func (p PreferencesUpdate) IsEmpty() bool {
	return p.Email == nil && p.Push == nil && p.Language == nil
}

// Principal is the identity resolved from a bearer token.
type Principal struct {
	UserID string
	Email  string
}

// Session is issued by the auth service on register and login.
type Session struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}
