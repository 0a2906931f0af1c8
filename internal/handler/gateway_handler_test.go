package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-platform/internal/circuitbreaker"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/observability"
	"github.com/kursadbilgin/notification-platform/internal/service"
	"go.uber.org/zap"
)

const testToken = "token-ada"

type stubGateway struct {
	sendFn         func(ctx context.Context, req domain.SendRequest) (string, error)
	createUserFn   func(ctx context.Context, in domain.NewUser) (service.Registration, error)
	loginFn        func(ctx context.Context, email string, password string) (domain.Session, error)
	listMineFn     func(ctx context.Context, userID string) (service.MyNotifications, error)
	preferencesFn  func(ctx context.Context, userID string, update domain.PreferencesUpdate) (domain.User, error)
	pushTokenFn    func(ctx context.Context, userID string, token string) (domain.User, error)
	templatesFn    func(ctx context.Context, query domain.TemplateQuery) (domain.Page[domain.Template], error)
	updateStatusFn func(ctx context.Context, channel domain.Channel, update domain.StatusUpdate) (domain.NotificationSummary, error)
	snapshots      []circuitbreaker.Snapshot
}

func (s *stubGateway) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	switch token {
	case testToken:
		return domain.Principal{UserID: "user-1", Email: "ada@example.com"}, nil
	case "auth-down":
		return domain.Principal{}, fmt.Errorf("%w: auth.validate_token: timeout", domain.ErrServiceUnavailable)
	}
	return domain.Principal{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthorized)
}

func (s *stubGateway) SendNotification(ctx context.Context, req domain.SendRequest) (string, error) {
	if s.sendFn == nil {
		return "", errors.New("not implemented")
	}
	return s.sendFn(ctx, req)
}

func (s *stubGateway) CreateUser(ctx context.Context, in domain.NewUser) (service.Registration, error) {
	if s.createUserFn == nil {
		return service.Registration{}, errors.New("not implemented")
	}
	return s.createUserFn(ctx, in)
}

func (s *stubGateway) Login(ctx context.Context, email string, password string) (domain.Session, error) {
	if s.loginFn == nil {
		return domain.Session{}, errors.New("not implemented")
	}
	return s.loginFn(ctx, email, password)
}

func (s *stubGateway) ListMyNotifications(ctx context.Context, userID string) (service.MyNotifications, error) {
	if s.listMineFn == nil {
		return service.MyNotifications{}, errors.New("not implemented")
	}
	return s.listMineFn(ctx, userID)
}

func (s *stubGateway) UpdatePreferences(ctx context.Context, userID string, update domain.PreferencesUpdate) (domain.User, error) {
	if s.preferencesFn == nil {
		return domain.User{}, errors.New("not implemented")
	}
	return s.preferencesFn(ctx, userID, update)
}

func (s *stubGateway) UpdatePushToken(ctx context.Context, userID string, token string) (domain.User, error) {
	if s.pushTokenFn == nil {
		return domain.User{}, errors.New("not implemented")
	}
	return s.pushTokenFn(ctx, userID, token)
}

func (s *stubGateway) ListTemplates(ctx context.Context, query domain.TemplateQuery) (domain.Page[domain.Template], error) {
	if s.templatesFn == nil {
		return domain.Page[domain.Template]{}, errors.New("not implemented")
	}
	return s.templatesFn(ctx, query)
}

func (s *stubGateway) UpdateDeliveryStatus(ctx context.Context, channel domain.Channel, update domain.StatusUpdate) (domain.NotificationSummary, error) {
	if s.updateStatusFn == nil {
		return domain.NotificationSummary{}, errors.New("not implemented")
	}
	return s.updateStatusFn(ctx, channel, update)
}

func (s *stubGateway) BreakerSnapshots() []circuitbreaker.Snapshot {
	return s.snapshots
}

func newGatewayTestApp(t *testing.T, gw Gateway) *fiber.App {
	t.Helper()

	app := NewApp(zap.NewNop(), nil)
	if err := RegisterGatewayRoutes(app, gw); err != nil {
		t.Fatalf("RegisterGatewayRoutes() error = %v", err)
	}
	return app
}

func performRequest(t *testing.T, app *fiber.App, method string, path string, body string, token string) (*http.Response, []byte) {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	_ = resp.Body.Close()

	return resp, respBody
}

func decodeBody(t *testing.T, body []byte) map[string]any {
	t.Helper()

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		t.Fatalf("json unmarshal error = %v, body=%s", err, string(body))
	}
	return parsed
}

const validSendBody = `{"notification_type":"email","user_id":"user-1","template_code":"order-shipped","variables":{"name":"Ada","link":"https://example.com/o/1","meta":{"order_id":"o-1"}},"priority":3}`

func TestGatewayRoutes_SendNotification(t *testing.T) {
	t.Parallel()

	var got domain.SendRequest
	gw := &stubGateway{
		sendFn: func(ctx context.Context, req domain.SendRequest) (string, error) {
			got = req
			return "req-01", nil
		},
	}
	app := newGatewayTestApp(t, gw)

	resp, body := performRequest(t, app, http.MethodPost, "/api/v1/notifications", validSendBody, testToken)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}

	parsed := decodeBody(t, body)
	if parsed["success"] != true || parsed["message"] != "Notification queued successfully" {
		t.Fatalf("envelope = %v", parsed)
	}
	data, _ := parsed["data"].(map[string]any)
	if data["request_id"] != "req-01" {
		t.Fatalf("data = %v", parsed["data"])
	}

	if got.Channel != domain.ChannelEmail || got.TemplateName != "order-shipped" || got.Priority != 3 {
		t.Fatalf("send request = %+v", got)
	}
	if got.Variables.Name != "Ada" || got.Variables.Meta["order_id"] != "o-1" {
		t.Fatalf("variables = %+v", got.Variables)
	}
}

func TestGatewayRoutes_SendNotificationAuth(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{
		sendFn: func(ctx context.Context, req domain.SendRequest) (string, error) {
			t.Fatal("send must not run without a valid token")
			return "", nil
		},
	}
	app := newGatewayTestApp(t, gw)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{name: "missing token", token: "", status: fiber.StatusUnauthorized},
		{name: "invalid token", token: "forged", status: fiber.StatusUnauthorized},
		{name: "auth service down", token: "auth-down", status: fiber.StatusServiceUnavailable},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			resp, body := performRequest(t, app, http.MethodPost, "/api/v1/notifications", validSendBody, tt.token)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tt.status, string(body))
			}
			if parsed := decodeBody(t, body); parsed["success"] != false {
				t.Fatalf("envelope = %v", parsed)
			}
		})
	}
}

func TestGatewayRoutes_SendNotificationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		err         error
		status      int
		wantMessage string
	}{
		{
			name:   "invalid channel",
			body:   `{"notification_type":"sms","user_id":"user-1","template_code":"t"}`,
			status: fiber.StatusBadRequest,
		},
		{
			name:   "malformed json",
			body:   `{"notification_type":`,
			status: fiber.StatusBadRequest,
		},
		{
			name:        "user not found",
			body:        validSendBody,
			err:         fmt.Errorf("%w: User not found", domain.ErrNotFound),
			status:      fiber.StatusNotFound,
			wantMessage: "User not found",
		},
		{
			name:        "circuit open",
			body:        validSendBody,
			err:         fmt.Errorf("%w: User service is temporarily unavailable", domain.ErrServiceUnavailable),
			status:      fiber.StatusServiceUnavailable,
			wantMessage: "User service is temporarily unavailable",
		},
		{
			name:        "unclassified",
			body:        validSendBody,
			err:         errors.New("decode user: unexpected payload"),
			status:      fiber.StatusInternalServerError,
			wantMessage: "Internal server error",
		},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gw := &stubGateway{
				sendFn: func(ctx context.Context, req domain.SendRequest) (string, error) {
					if tt.err == nil {
						t.Fatal("send must not run for invalid bodies")
					}
					return "", tt.err
				},
			}
			app := newGatewayTestApp(t, gw)

			resp, body := performRequest(t, app, http.MethodPost, "/api/v1/notifications", tt.body, testToken)
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d, body=%s", resp.StatusCode, tt.status, string(body))
			}
			parsed := decodeBody(t, body)
			if parsed["success"] != false {
				t.Fatalf("envelope = %v", parsed)
			}
			if tt.wantMessage != "" && parsed["message"] != tt.wantMessage {
				t.Fatalf("message = %v, want %q", parsed["message"], tt.wantMessage)
			}
		})
	}
}

func TestGatewayRoutes_CreateUser(t *testing.T) {
	t.Parallel()

	var got domain.NewUser
	gw := &stubGateway{
		createUserFn: func(ctx context.Context, in domain.NewUser) (service.Registration, error) {
			got = in
			return service.Registration{
				User:    domain.User{ID: "user-9", Email: in.Email},
				Session: domain.Session{Token: "tok-9", UserID: "user-9"},
			}, nil
		},
	}
	app := newGatewayTestApp(t, gw)

	body := `{"name":"Ada","email":"ada@example.com","password":"pw","push_token":"","preferences":{"push":false}}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/api/v1/users", body, "")
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(respBody))
	}
	if got.PushToken != nil {
		t.Fatal("empty push token should be dropped")
	}
	if !got.Preferences.EmailNotifications || got.Preferences.PushNotifications {
		t.Fatalf("preferences = %+v, want email on push off", got.Preferences)
	}

	data, _ := decodeBody(t, respBody)["data"].(map[string]any)
	if data["token"] != "tok-9" {
		t.Fatalf("data = %v", data)
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/api/v1/users", `{"name":"Ada","email":"not-an-email","password":"pw"}`, "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid email", resp.StatusCode)
	}
}

func TestGatewayRoutes_CreateUserConflict(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{
		createUserFn: func(ctx context.Context, in domain.NewUser) (service.Registration, error) {
			return service.Registration{}, fmt.Errorf("%w: auth.register: email already registered", domain.ErrConflict)
		},
	}
	app := newGatewayTestApp(t, gw)

	resp, body := performRequest(t, app, http.MethodPost, "/api/v1/users", `{"name":"Ada","email":"ada@example.com","password":"pw"}`, "")
	if resp.StatusCode != fiber.StatusConflict {
		t.Fatalf("status = %d, want 409, body=%s", resp.StatusCode, string(body))
	}
}

func TestGatewayRoutes_Login(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{
		loginFn: func(ctx context.Context, email string, password string) (domain.Session, error) {
			if password != "right" {
				return domain.Session{}, errors.New("auth.login: invalid credentials")
			}
			return domain.Session{Token: "tok-1", UserID: "user-1"}, nil
		},
	}
	app := newGatewayTestApp(t, gw)

	resp, body := performRequest(t, app, http.MethodPost, "/api/v1/auth/login", `{"email":"ada@example.com","password":"right"}`, "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	parsed := decodeBody(t, body)
	if parsed["token"] != "tok-1" || parsed["user_id"] != "user-1" {
		t.Fatalf("login body = %v", parsed)
	}

	resp, body = performRequest(t, app, http.MethodPost, "/api/v1/auth/login", `{"email":"ada@example.com","password":"wrong"}`, "")
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	if decodeBody(t, body)["message"] != "Invalid credentials" {
		t.Fatalf("body = %s", string(body))
	}
}

func TestGatewayRoutes_ListMyNotifications(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{
		listMineFn: func(ctx context.Context, userID string) (service.MyNotifications, error) {
			if userID != "user-1" {
				t.Errorf("user id = %q, want the token's user", userID)
			}
			return service.MyNotifications{
				Email: []domain.NotificationSummary{{RequestID: "e1", Status: domain.StatusSent}},
				Push:  []domain.NotificationSummary{},
			}, nil
		},
	}
	app := newGatewayTestApp(t, gw)

	resp, body := performRequest(t, app, http.MethodGet, "/api/v1/notifications/me", "", testToken)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	data, _ := decodeBody(t, body)["data"].(map[string]any)
	email, _ := data["email"].([]any)
	push, ok := data["push"].([]any)
	if len(email) != 1 || !ok || len(push) != 0 {
		t.Fatalf("data = %v", data)
	}
}

func TestGatewayRoutes_UpdatePreferencesAndPushToken(t *testing.T) {
	t.Parallel()

	var gotUpdate domain.PreferencesUpdate
	var gotToken string
	gw := &stubGateway{
		preferencesFn: func(ctx context.Context, userID string, update domain.PreferencesUpdate) (domain.User, error) {
			gotUpdate = update
			return domain.User{ID: userID}, nil
		},
		pushTokenFn: func(ctx context.Context, userID string, token string) (domain.User, error) {
			gotToken = token
			if token == "web-push-token-1" {
				return domain.User{}, fmt.Errorf("%w: %w: legacy token", domain.ErrValidation, domain.ErrInvalidTarget)
			}
			return domain.User{ID: userID}, nil
		},
	}
	app := newGatewayTestApp(t, gw)

	resp, body := performRequest(t, app, http.MethodPut, "/api/v1/users/preferences", `{"push":false}`, testToken)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("preferences status = %d, body=%s", resp.StatusCode, string(body))
	}
	if gotUpdate.Push == nil || *gotUpdate.Push || gotUpdate.Email != nil {
		t.Fatalf("update = %+v", gotUpdate)
	}

	resp, _ = performRequest(t, app, http.MethodPut, "/api/v1/users/push-token", `{"push_token":""}`, testToken)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("empty push token status = %d, want 400", resp.StatusCode)
	}

	resp, _ = performRequest(t, app, http.MethodPut, "/api/v1/users/push-token", `{"push_token":"web-push-token-1"}`, testToken)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("legacy push token status = %d, want 400", resp.StatusCode)
	}
	if gotToken != "web-push-token-1" {
		t.Fatalf("token = %q", gotToken)
	}

	resp, _ = performRequest(t, app, http.MethodPut, "/api/v1/users/preferences", `{"push":false}`, "")
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", resp.StatusCode)
	}
}

func TestGatewayRoutes_ListTemplates(t *testing.T) {
	t.Parallel()

	var got domain.TemplateQuery
	gw := &stubGateway{
		templatesFn: func(ctx context.Context, query domain.TemplateQuery) (domain.Page[domain.Template], error) {
			got = query
			if query.Limit > 100 {
				return domain.Page[domain.Template]{}, fmt.Errorf("%w: limit must be between 1 and 100", domain.ErrValidation)
			}
			return domain.Page[domain.Template]{
				Items: []domain.Template{{Name: "welcome-email", Type: domain.ChannelEmail}},
				Total: 21,
				Page:  query.Page,
				Limit: query.Limit,
			}, nil
		},
	}
	app := newGatewayTestApp(t, gw)

	for _, token := range []string{"", "forged"} {
		resp, _ := performRequest(t, app, http.MethodGet, "/api/v1/templates", "", token)
		if resp.StatusCode != fiber.StatusUnauthorized {
			t.Fatalf("token %q status = %d, want 401", token, resp.StatusCode)
		}
	}
	if got != (domain.TemplateQuery{}) {
		t.Fatalf("template catalog called without a valid token: %+v", got)
	}

	resp, body := performRequest(t, app, http.MethodGet, "/api/v1/templates?page=2&type=EMAIL", "", testToken)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if got.Page != 2 || got.Limit != 10 || got.Type == nil || *got.Type != domain.ChannelEmail {
		t.Fatalf("query = %+v", got)
	}

	meta, _ := decodeBody(t, body)["meta"].(map[string]any)
	if meta["total_pages"] != float64(3) || meta["has_next"] != true || meta["has_previous"] != true {
		t.Fatalf("meta = %v", meta)
	}

	for _, path := range []string{"/api/v1/templates?page=0", "/api/v1/templates?limit=0", "/api/v1/templates?limit=101"} {
		resp, _ := performRequest(t, app, http.MethodGet, path, "", testToken)
		if resp.StatusCode != fiber.StatusBadRequest {
			t.Fatalf("%s status = %d, want 400", path, resp.StatusCode)
		}
	}
}

func TestGatewayRoutes_StatusCallbacks(t *testing.T) {
	t.Parallel()

	var gotChannel domain.Channel
	var gotUpdate domain.StatusUpdate
	gw := &stubGateway{
		updateStatusFn: func(ctx context.Context, channel domain.Channel, update domain.StatusUpdate) (domain.NotificationSummary, error) {
			gotChannel, gotUpdate = channel, update
			if update.RequestID == "missing" {
				return domain.NotificationSummary{}, fmt.Errorf("%w: delivery log missing", domain.ErrNotFound)
			}
			return domain.NotificationSummary{RequestID: update.RequestID, Status: domain.StatusSent}, nil
		},
	}
	app := newGatewayTestApp(t, gw)

	resp, body := performRequest(t, app, http.MethodPost, "/api/v1/push/status",
		`{"notification_id":"r1","status":"delivered","timestamp":"2026-05-01T09:00:00Z"}`, "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if gotChannel != domain.ChannelPush || gotUpdate.RequestID != "r1" || gotUpdate.Timestamp == nil {
		t.Fatalf("channel = %s update = %+v", gotChannel, gotUpdate)
	}
	if decodeBody(t, body)["message"] != "Push notification status updated successfully" {
		t.Fatalf("body = %s", string(body))
	}

	resp, body = performRequest(t, app, http.MethodPost, "/api/v1/email/status", `{"notification_id":"missing","status":"failed"}`, "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if decodeBody(t, body)["message"] != "Email notification not found" {
		t.Fatalf("body = %s", string(body))
	}

	resp, _ = performRequest(t, app, http.MethodPost, "/api/v1/email/status", `{"notification_id":"r1","status":"bounced"}`, "")
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for unknown status", resp.StatusCode)
	}
}

func TestGatewayRoutes_ListCircuits(t *testing.T) {
	t.Parallel()

	failedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	app := newGatewayTestApp(t, &stubGateway{snapshots: []circuitbreaker.Snapshot{
		{Dependency: "user_service", State: circuitbreaker.StateOpen, FailureCount: 5, LastFailureTime: failedAt},
	}})

	resp, body := performRequest(t, app, http.MethodGet, "/api/v1/circuits", "", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %s", resp.StatusCode, body)
	}

	data := decodeBody(t, body)["data"].([]any)
	if len(data) != 1 {
		t.Fatalf("circuits = %v, want one", data)
	}
	circuit := data[0].(map[string]any)
	if circuit["dependency"] != "user_service" || circuit["state"] != "open" || circuit["failure_count"] != float64(5) {
		t.Fatalf("circuit = %v", circuit)
	}
	if circuit["last_failure_time"] != "2026-03-01T12:00:00Z" {
		t.Fatalf("last_failure_time = %v", circuit["last_failure_time"])
	}
}

func TestGatewayRoutes_ListCircuitsEmpty(t *testing.T) {
	t.Parallel()

	app := newGatewayTestApp(t, &stubGateway{})
	_, body := performRequest(t, app, http.MethodGet, "/api/v1/circuits", "", "")

	data, ok := decodeBody(t, body)["data"].([]any)
	if !ok || len(data) != 0 {
		t.Fatalf("data = %v, want empty list", decodeBody(t, body)["data"])
	}
}

func TestNewAppServesMetrics(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics()
	app := NewApp(zap.NewNop(), metrics)
	RegisterHealthRoutes(app, &stubHealth{})

	resp, _ := performRequest(t, app, http.MethodGet, "/livez", "", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("livez status = %d", resp.StatusCode)
	}
	if resp.Header.Get(observability.HeaderCorrelationID) == "" {
		t.Fatal("correlation id header should be set")
	}

	resp, body := performRequest(t, app, http.MethodGet, "/metrics", "", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("http_requests_total")) {
		t.Fatalf("metrics body missing http_requests_total: %s", string(body))
	}
}
