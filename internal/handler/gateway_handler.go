package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-platform/internal/circuitbreaker"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/service"
)

// Gateway is the orchestration surface behind the public routes.
// *service.GatewayService implements it.
type Gateway interface {
	TokenAuthenticator
	SendNotification(ctx context.Context, req domain.SendRequest) (string, error)
	CreateUser(ctx context.Context, in domain.NewUser) (service.Registration, error)
	Login(ctx context.Context, email string, password string) (domain.Session, error)
	ListMyNotifications(ctx context.Context, userID string) (service.MyNotifications, error)
	UpdatePreferences(ctx context.Context, userID string, update domain.PreferencesUpdate) (domain.User, error)
	UpdatePushToken(ctx context.Context, userID string, token string) (domain.User, error)
	ListTemplates(ctx context.Context, query domain.TemplateQuery) (domain.Page[domain.Template], error)
	UpdateDeliveryStatus(ctx context.Context, channel domain.Channel, update domain.StatusUpdate) (domain.NotificationSummary, error)
	BreakerSnapshots() []circuitbreaker.Snapshot
}

type GatewayHandler struct {
	gateway Gateway
}

func NewGatewayHandler(gateway Gateway) (*GatewayHandler, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	return &GatewayHandler{gateway: gateway}, nil
}

func RegisterGatewayRoutes(router fiber.Router, gateway Gateway) error {
	h, err := NewGatewayHandler(gateway)
	if err != nil {
		return err
	}

	authed := RequireAuth(gateway)

	v1 := router.Group(APIPrefix)
	v1.Post("/users", h.CreateUser)
	v1.Post("/auth/login", h.Login)
	v1.Post("/notifications", authed, h.SendNotification)
	v1.Get("/notifications/me", authed, h.ListMyNotifications)
	v1.Put("/users/preferences", authed, h.UpdatePreferences)
	v1.Put("/users/push-token", authed, h.UpdatePushToken)
	v1.Get("/templates", authed, h.ListTemplates)
	v1.Post("/email/status", h.UpdateStatus(domain.ChannelEmail))
	v1.Post("/push/status", h.UpdateStatus(domain.ChannelPush))
	v1.Get("/circuits", h.ListCircuits)

	return nil
}

type userDataRequest struct {
	Name string         `json:"name"`
	Link string         `json:"link" validate:"omitempty,url"`
	Meta map[string]any `json:"meta"`
}

type sendNotificationRequest struct {
	NotificationType string          `json:"notification_type" validate:"required,oneof=email push"`
	UserID           string          `json:"user_id" validate:"required"`
	TemplateCode     string          `json:"template_code" validate:"required"`
	Variables        userDataRequest `json:"variables"`
	RequestID        string          `json:"request_id" validate:"omitempty,max=128"`
	Priority         int             `json:"priority" validate:"gte=0,lte=10"`
	Metadata         map[string]any  `json:"metadata"`
	Language         string          `json:"language"`
}

type preferencesRequest struct {
	Email *bool `json:"email"`
	Push  *bool `json:"push"`
}

type createUserRequest struct {
	Name        string              `json:"name" validate:"required"`
	Email       string              `json:"email" validate:"required,email"`
	Password    string              `json:"password" validate:"required"`
	PushToken   *string             `json:"push_token"`
	Preferences *preferencesRequest `json:"preferences"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type updatePreferencesRequest struct {
	Email    *bool   `json:"email"`
	Push     *bool   `json:"push"`
	Language *string `json:"language"`
}

type updatePushTokenRequest struct {
	PushToken string `json:"push_token" validate:"required"`
}

type updateStatusRequest struct {
	NotificationID string  `json:"notification_id" validate:"required"`
	Status         string  `json:"status" validate:"required,oneof=delivered pending failed"`
	Timestamp      *string `json:"timestamp"`
	Error          *string `json:"error"`
}

type registrationResponse struct {
	User  domain.User `json:"user"`
	Token string      `json:"token"`
}

type sessionResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	UserID  string `json:"user_id"`
}

func (h *GatewayHandler) SendNotification(c *fiber.Ctx) error {
	var req sendNotificationRequest
	if err := parseBody(c, &req); err != nil {
		return toHTTPError(err)
	}

	requestID, err := h.gateway.SendNotification(c.UserContext(), domain.SendRequest{
		Channel:      domain.Channel(req.NotificationType),
		UserID:       strings.TrimSpace(req.UserID),
		TemplateName: strings.TrimSpace(req.TemplateCode),
		Language:     req.Language,
		Variables: domain.UserData{
			Name: req.Variables.Name,
			Link: req.Variables.Link,
			Meta: req.Variables.Meta,
		},
		RequestID: req.RequestID,
		Priority:  req.Priority,
		Metadata:  req.Metadata,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return respond(c, fiber.StatusOK, "Notification queued successfully", fiber.Map{
		"request_id": requestID,
	})
}

func (h *GatewayHandler) CreateUser(c *fiber.Ctx) error {
	var req createUserRequest
	if err := parseBody(c, &req); err != nil {
		return toHTTPError(err)
	}

	in := domain.NewUser{
		Name:     strings.TrimSpace(req.Name),
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
		Preferences: domain.Preferences{
			EmailNotifications: true,
			PushNotifications:  true,
		},
	}
	if req.PushToken != nil && strings.TrimSpace(*req.PushToken) != "" {
		token := strings.TrimSpace(*req.PushToken)
		in.PushToken = &token
	}
	if req.Preferences != nil {
		if req.Preferences.Email != nil {
			in.Preferences.EmailNotifications = *req.Preferences.Email
		}
		if req.Preferences.Push != nil {
			in.Preferences.PushNotifications = *req.Preferences.Push
		}
	}

	reg, err := h.gateway.CreateUser(c.UserContext(), in)
	if err != nil {
		return toHTTPError(err)
	}

	return respond(c, fiber.StatusCreated, "User created successfully", registrationResponse{
		User:  reg.User,
		Token: reg.Session.Token,
	})
}

// Login answers with the auth service's session shape. Any failure other than
// an outage or a malformed body is an invalid login.
func (h *GatewayHandler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := parseBody(c, &req); err != nil {
		return toHTTPError(err)
	}

	session, err := h.gateway.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrServiceUnavailable) || errors.Is(err, domain.ErrValidation) {
			return toHTTPError(err)
		}
		return fiber.NewError(fiber.StatusUnauthorized, "Invalid credentials")
	}

	return c.Status(fiber.StatusOK).JSON(sessionResponse{
		Success: true,
		Token:   session.Token,
		UserID:  session.UserID,
	})
}

func (h *GatewayHandler) ListMyNotifications(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return toHTTPError(err)
	}

	mine, err := h.gateway.ListMyNotifications(c.UserContext(), principal.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrServiceUnavailable) {
			return toHTTPError(err)
		}
		return fmt.Errorf("failed to retrieve notifications: %w", err)
	}

	return respond(c, fiber.StatusOK, "Notifications retrieved successfully", mine)
}

func (h *GatewayHandler) UpdatePreferences(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req updatePreferencesRequest
	if err := parseBody(c, &req); err != nil {
		return toHTTPError(err)
	}

	user, err := h.gateway.UpdatePreferences(c.UserContext(), principal.UserID, domain.PreferencesUpdate{
		Email:    req.Email,
		Push:     req.Push,
		Language: req.Language,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return respond(c, fiber.StatusOK, "Preferences updated successfully", user)
}

func (h *GatewayHandler) UpdatePushToken(c *fiber.Ctx) error {
	principal, err := principalFrom(c)
	if err != nil {
		return toHTTPError(err)
	}

	var req updatePushTokenRequest
	if err := parseBody(c, &req); err != nil {
		return toHTTPError(err)
	}

	user, err := h.gateway.UpdatePushToken(c.UserContext(), principal.UserID, req.PushToken)
	if err != nil {
		return toHTTPError(err)
	}

	return respond(c, fiber.StatusOK, "Push token registered successfully", user)
}

func (h *GatewayHandler) ListTemplates(c *fiber.Ctx) error {
	query := domain.TemplateQuery{
		Page:     c.QueryInt("page", 1),
		Limit:    c.QueryInt("limit", 10),
		Language: strings.TrimSpace(c.Query("language")),
	}
	if query.Page < 1 {
		return toHTTPError(fmt.Errorf("%w: Page must be >= 1", domain.ErrValidation))
	}
	if query.Limit < 1 {
		return toHTTPError(fmt.Errorf("%w: Limit must be >= 1", domain.ErrValidation))
	}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		channel := domain.Channel(strings.ToLower(raw))
		query.Type = &channel
	}

	page, err := h.gateway.ListTemplates(c.UserContext(), query)
	if err != nil {
		return toHTTPError(err)
	}

	items := page.Items
	if items == nil {
		items = []domain.Template{}
	}
	return c.Status(fiber.StatusOK).JSON(envelope{
		Success: true,
		Message: "Templates retrieved successfully",
		Data:    items,
		Meta: paginationMeta{
			Total:       page.Total,
			Limit:       page.Limit,
			Page:        page.Page,
			TotalPages:  page.TotalPages(),
			HasNext:     page.HasNext(),
			HasPrevious: page.HasPrevious(),
		},
	})
}

type circuitResponse struct {
	Dependency      string     `json:"dependency"`
	State           string     `json:"state"`
	FailureCount    uint       `json:"failure_count"`
	LastFailureTime *time.Time `json:"last_failure_time,omitempty"`
}

// ListCircuits reports the breaker state of every dependency that has failed at least once.
func (h *GatewayHandler) ListCircuits(c *fiber.Ctx) error {
	return respond(c, fiber.StatusOK, "Circuits retrieved successfully", toCircuitResponses(h.gateway.BreakerSnapshots()))
}

func toCircuitResponses(snapshots []circuitbreaker.Snapshot) []circuitResponse {
	circuits := make([]circuitResponse, 0, len(snapshots))
	for _, snap := range snapshots {
		item := circuitResponse{
			Dependency:   snap.Dependency,
			State:        string(snap.State),
			FailureCount: snap.FailureCount,
		}
		if !snap.LastFailureTime.IsZero() {
			last := snap.LastFailureTime.UTC()
			item.LastFailureTime = &last
		}
		circuits = append(circuits, item)
	}
	return circuits
}

// UpdateStatus handles the delivery status callback of one channel.
func (h *GatewayHandler) UpdateStatus(channel domain.Channel) fiber.Handler {
	label := strings.ToUpper(channel.String()[:1]) + channel.String()[1:]

	return func(c *fiber.Ctx) error {
		var req updateStatusRequest
		if err := parseBody(c, &req); err != nil {
			return toHTTPError(err)
		}

		update := domain.StatusUpdate{
			RequestID: strings.TrimSpace(req.NotificationID),
			Status:    req.Status,
			Error:     req.Error,
		}
		if req.Timestamp != nil && strings.TrimSpace(*req.Timestamp) != "" {
			ts, err := time.Parse(time.RFC3339, strings.TrimSpace(*req.Timestamp))
			if err != nil {
				return toHTTPError(fmt.Errorf("%w: timestamp must be RFC3339", domain.ErrValidation))
			}
			update.Timestamp = &ts
		}

		summary, err := h.gateway.UpdateDeliveryStatus(c.UserContext(), channel, update)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, label+" notification not found")
			}
			return toHTTPError(err)
		}

		return respond(c, fiber.StatusOK, label+" notification status updated successfully", summary)
	}
}
