package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-platform/internal/circuitbreaker"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/observability"
	"github.com/kursadbilgin/notification-platform/internal/queue"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Breaker dependency names used by the send flow.
const (
	DependencyUserService     = "user_service"
	DependencyTemplateService = "template_service"
)

const (
	defaultLanguage      = "en"
	defaultTemplateLimit = 10
	maxTemplateLimit     = 100
	publishTimeout       = 5 * time.Second
	welcomeTimeout       = 30 * time.Second
)

type UserDirectory interface {
	GetByID(ctx context.Context, userID string) (domain.User, error)
	Create(ctx context.Context, in domain.NewUser) (domain.User, error)
	Update(ctx context.Context, userID string, fields map[string]any) (domain.User, error)
	Delete(ctx context.Context, userID string) error
}

type TemplateCatalog interface {
	GetByName(ctx context.Context, name string, channel domain.Channel, language string) (domain.Template, error)
	List(ctx context.Context, query domain.TemplateQuery) (domain.Page[domain.Template], error)
}

type Authenticator interface {
	Register(ctx context.Context, userID string, in domain.NewUser) (domain.Session, error)
	Login(ctx context.Context, email string, password string) (domain.Session, error)
	ValidateToken(ctx context.Context, token string) (domain.Principal, error)
}

// DeliveryStatusStore reaches the status side channel of the delivery workers.
type DeliveryStatusStore interface {
	UpdateStatus(ctx context.Context, channel domain.Channel, update domain.StatusUpdate) (domain.NotificationSummary, error)
	ListByUser(ctx context.Context, channel domain.Channel, userID string) ([]domain.NotificationSummary, error)
}

// GatewayDeps wires a GatewayService. Every field except Breaker is required.
type GatewayDeps struct {
	Users           UserDirectory
	Templates       TemplateCatalog
	Auth            Authenticator
	Deliveries      DeliveryStatusStore
	Publisher       queue.Publisher
	Breaker         *circuitbreaker.Breaker
	DefaultLanguage string
}

// Registration is the result of a successful create-user flow.
type Registration struct {
	User    domain.User
	Session domain.Session
}

// MyNotifications is a user's delivery history per channel, newest first.
type MyNotifications struct {
	Email []domain.NotificationSummary `json:"email"`
	Push  []domain.NotificationSummary `json:"push"`
}

// GatewayService orchestrates the user-facing flows over the downstream services.
type GatewayService struct {
	users           UserDirectory
	templates       TemplateCatalog
	auth            Authenticator
	deliveries      DeliveryStatusStore
	publisher       queue.Publisher
	breaker         *circuitbreaker.Breaker
	defaultLanguage string
	logger          *zap.Logger
	metrics         *observability.Metrics
	now             func() time.Time
	newRequestID    func() string
	async           func(fn func())
}

func NewGatewayService(deps GatewayDeps, logger *zap.Logger) (*GatewayService, error) {
	switch {
	case deps.Users == nil:
		return nil, fmt.Errorf("user directory is required")
	case deps.Templates == nil:
		return nil, fmt.Errorf("template catalog is required")
	case deps.Auth == nil:
		return nil, fmt.Errorf("authenticator is required")
	case deps.Deliveries == nil:
		return nil, fmt.Errorf("delivery status store is required")
	case deps.Publisher == nil:
		return nil, fmt.Errorf("publisher is required")
	}
	if deps.Breaker == nil {
		deps.Breaker = circuitbreaker.New(circuitbreaker.DefaultConfig())
	}
	if strings.TrimSpace(deps.DefaultLanguage) == "" {
		deps.DefaultLanguage = defaultLanguage
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &GatewayService{
		users:           deps.Users,
		templates:       deps.Templates,
		auth:            deps.Auth,
		deliveries:      deps.Deliveries,
		publisher:       deps.Publisher,
		breaker:         deps.Breaker,
		defaultLanguage: deps.DefaultLanguage,
		logger:          logger,
		now:             time.Now,
		newRequestID:    func() string { return ulid.Make().String() },
		async:           func(fn func()) { go fn() },
	}, nil
}

func (s *GatewayService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SendNotification resolves the user and template behind their breakers, then
// enqueues the channel event and returns its request id.
func (s *GatewayService) SendNotification(ctx context.Context, req domain.SendRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	var user domain.User
	err := s.guard(DependencyUserService, func() error {
		var err error
		user, err = s.users.GetByID(ctx, req.UserID)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: User not found", domain.ErrNotFound)
		}
		return "", err
	}

	language := strings.TrimSpace(req.Language)
	if language == "" {
		language = s.defaultLanguage
	}

	var tmpl domain.Template
	err = s.guard(DependencyTemplateService, func() error {
		var err error
		tmpl, err = s.templates.GetByName(ctx, req.TemplateName, req.Channel, language)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("%w: Template not found", domain.ErrNotFound)
		}
		return "", err
	}

	requestID := strings.TrimSpace(req.RequestID)
	if requestID == "" {
		requestID = s.newRequestID()
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	s.publish(ctx, domain.Notification{
		RequestID: requestID,
		Channel:   req.Channel,
		User:      user,
		Template:  tmpl,
		Variables: req.Variables.Flatten(),
		Priority:  req.Priority,
		Metadata:  metadata,
		CreatedAt: s.now().UTC(),
	})
	return requestID, nil
}

// guard runs call behind the dependency breaker. Only connectivity failures
// count against the circuit; business rejections close it.
func (s *GatewayService) guard(dependency string, call func() error) error {
	if s.breaker.IsOpen(dependency) {
		return fmt.Errorf("%w: %s is temporarily unavailable", domain.ErrServiceUnavailable, dependencyLabel(dependency))
	}

	err := call()
	if errors.Is(err, domain.ErrServiceUnavailable) {
		s.breaker.RecordFailure(dependency)
		s.logger.Warn("dependency call failed",
			zap.String("dependency", dependency),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s is temporarily unavailable", domain.ErrServiceUnavailable, dependencyLabel(dependency))
	}
	s.breaker.RecordSuccess(dependency)
	return err
}

// publish hands the event to the broker. Failures are logged, never returned.
func (s *GatewayService) publish(ctx context.Context, n domain.Notification) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	channelName := n.Channel.String()
	if err := s.publisher.Publish(pubCtx, queue.QueueName(n.Channel), queue.NewDeliveryMessage(n)); err != nil {
		s.metrics.IncNotificationQueued(channelName, "error")
		observability.WithContextLogger(s.logger, ctx).Error("failed to publish notification",
			zap.String("requestId", n.RequestID),
			zap.String("channel", channelName),
			zap.Error(err),
		)
		return
	}

	s.metrics.IncNotificationQueued(channelName, "ok")
	observability.WithContextLogger(s.logger, ctx).Info("notification queued",
		zap.String("requestId", n.RequestID),
		zap.String("channel", channelName),
		zap.String("userId", n.User.ID),
	)
}

// CreateUser creates the profile, then its credentials. A credential failure
// deletes the profile again and returns the credential error.
func (s *GatewayService) CreateUser(ctx context.Context, in domain.NewUser) (Registration, error) {
	if strings.TrimSpace(in.Email) == "" {
		return Registration{}, fmt.Errorf("%w: email is required", domain.ErrValidation)
	}
	if in.Password == "" {
		return Registration{}, fmt.Errorf("%w: password is required", domain.ErrValidation)
	}

	reservation, err := reserveProfile(ctx, s.users, in)
	if err != nil {
		return Registration{}, err
	}

	session, err := s.auth.Register(ctx, reservation.UserID(), in)
	if err != nil {
		if rollbackErr := reservation.Compensate(ctx); rollbackErr != nil {
			s.logger.Error("failed to roll back user profile",
				zap.String("userId", reservation.UserID()),
				zap.NamedError("cause", err),
				zap.Error(rollbackErr),
			)
		} else {
			s.logger.Warn("user profile rolled back after credential failure",
				zap.String("userId", reservation.UserID()),
				zap.Error(err),
			)
		}
		return Registration{}, err
	}

	user := reservation.Confirm()
	if session.UserID == "" {
		session.UserID = user.ID
	}

	welcomeCtx := context.WithoutCancel(ctx)
	s.async(func() { s.sendWelcome(welcomeCtx, user.ID) })

	return Registration{User: user, Session: session}, nil
}

// sendWelcome enqueues a welcome event on every channel the user accepts.
func (s *GatewayService) sendWelcome(ctx context.Context, userID string) {
	ctx, cancel := context.WithTimeout(ctx, welcomeTimeout)
	defer cancel()

	logger := s.logger.With(zap.String("userId", userID))
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		logger.Warn("welcome notifications skipped", zap.Error(err))
		return
	}

	language := user.Preferences.Language
	if language == "" {
		language = s.defaultLanguage
	}

	for _, channel := range domain.Channels() {
		if !user.Allows(channel) {
			continue
		}

		name := domain.WelcomeTemplateName(channel)
		tmpl, err := s.templates.GetByName(ctx, name, channel, language)
		if err != nil {
			logger.Warn("welcome template unavailable",
				zap.String("template", name),
				zap.Error(err),
			)
			continue
		}

		s.publish(ctx, domain.Notification{
			RequestID: s.newRequestID(),
			Channel:   channel,
			User:      user,
			Template:  tmpl,
			Variables: domain.UserData{Name: user.Name}.Flatten(),
			Metadata:  map[string]any{"source": "user_registration"},
			CreatedAt: s.now().UTC(),
		})
	}
}

func (s *GatewayService) Login(ctx context.Context, email string, password string) (domain.Session, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return domain.Session{}, fmt.Errorf("%w: email and password are required", domain.ErrValidation)
	}
	return s.auth.Login(ctx, email, password)
}

// Authenticate resolves a bearer token. Anything but an outage is unauthorized.
func (s *GatewayService) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	if strings.TrimSpace(token) == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
	}

	principal, err := s.auth.ValidateToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrServiceUnavailable) || errors.Is(err, domain.ErrUnauthorized) {
			return domain.Principal{}, err
		}
		return domain.Principal{}, fmt.Errorf("%w: %w", domain.ErrUnauthorized, err)
	}
	return principal, nil
}

// ListMyNotifications merges the email and push history of one user.
func (s *GatewayService) ListMyNotifications(ctx context.Context, userID string) (MyNotifications, error) {
	out := MyNotifications{
		Email: []domain.NotificationSummary{},
		Push:  []domain.NotificationSummary{},
	}

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := s.listChannel(groupCtx, domain.ChannelEmail, userID)
		out.Email = items
		return err
	})
	g.Go(func() error {
		items, err := s.listChannel(groupCtx, domain.ChannelPush, userID)
		out.Push = items
		return err
	})
	if err := g.Wait(); err != nil {
		return MyNotifications{}, err
	}
	return out, nil
}

func (s *GatewayService) listChannel(ctx context.Context, channel domain.Channel, userID string) ([]domain.NotificationSummary, error) {
	items, err := s.deliveries.ListByUser(ctx, channel, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return []domain.NotificationSummary{}, nil
		}
		return nil, fmt.Errorf("failed to list %s notifications: %w", channel, err)
	}
	if items == nil {
		items = []domain.NotificationSummary{}
	}
	return items, nil
}

func (s *GatewayService) UpdatePreferences(ctx context.Context, userID string, update domain.PreferencesUpdate) (domain.User, error) {
	if update.IsEmpty() {
		return domain.User{}, fmt.Errorf("%w: at least one preference is required", domain.ErrValidation)
	}

	prefs := make(map[string]any, 3)
	if update.Email != nil {
		prefs["email_notifications"] = *update.Email
	}
	if update.Push != nil {
		prefs["push_notifications"] = *update.Push
	}
	if update.Language != nil {
		prefs["language"] = strings.TrimSpace(*update.Language)
	}

	return s.users.Update(ctx, userID, map[string]any{"preferences": prefs})
}

// UpdatePushToken stores a web push subscription. Tokens the push worker
// would reject are refused here.
func (s *GatewayService) UpdatePushToken(ctx context.Context, userID string, token string) (domain.User, error) {
	if _, err := domain.ParsePushSubscription(token); err != nil {
		return domain.User{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return s.users.Update(ctx, userID, map[string]any{"push_token": strings.TrimSpace(token)})
}

func (s *GatewayService) ListTemplates(ctx context.Context, query domain.TemplateQuery) (domain.Page[domain.Template], error) {
	if query.Page < 1 {
		query.Page = 1
	}
	if query.Limit == 0 {
		query.Limit = defaultTemplateLimit
	}
	if query.Limit < 1 || query.Limit > maxTemplateLimit {
		return domain.Page[domain.Template]{}, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, maxTemplateLimit)
	}
	if query.Type != nil && !query.Type.IsValid() {
		return domain.Page[domain.Template]{}, fmt.Errorf("%w: invalid template type %q", domain.ErrValidation, *query.Type)
	}
	if strings.TrimSpace(query.Language) == "" {
		query.Language = s.defaultLanguage
	}

	return s.templates.List(ctx, query)
}

// UpdateDeliveryStatus forwards a status callback to the channel worker.
func (s *GatewayService) UpdateDeliveryStatus(ctx context.Context, channel domain.Channel, update domain.StatusUpdate) (domain.NotificationSummary, error) {
	if !channel.IsValid() {
		return domain.NotificationSummary{}, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}
	if strings.TrimSpace(update.RequestID) == "" {
		return domain.NotificationSummary{}, fmt.Errorf("%w: request_id is required", domain.ErrValidation)
	}

	status, err := domain.ParseDeliveryStatusFromString(update.Status)
	if err != nil {
		return domain.NotificationSummary{}, err
	}
	update.Status = status.String()
	if update.Timestamp == nil {
		ts := s.now().UTC()
		update.Timestamp = &ts
	}

	return s.deliveries.UpdateStatus(ctx, channel, update)
}

// BreakerSnapshots exposes the dependency circuits for diagnostics.
func (s *GatewayService) BreakerSnapshots() []circuitbreaker.Snapshot {
	return s.breaker.Snapshots()
}

func dependencyLabel(dependency string) string {
	switch dependency {
	case DependencyUserService:
		return "User service"
	case DependencyTemplateService:
		return "Template service"
	}
	return dependency
}
