package oauth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ZZSZ-YCT/customSystem/internal/auth"
)

// CreateRequest carries the caller-supplied app fields.
type CreateRequest struct {
	AppName     string
	Developer   string
	CallbackURL string
}

// Service applies authorisation and validation around a Store.
type Service struct {
	store  Store
	events auth.EventRecorder
	now    func() time.Time
}

// NewService creates a Service. events may be nil.
func NewService(store Store, events auth.EventRecorder) *Service {
	if events == nil {
		events = auth.EventRecorders(nil)
	}
	return &Service{store: store, events: events, now: time.Now}
}

// CreateApp registers an app on behalf of operator, who must be a superAdmin.
func (s *Service) CreateApp(ctx context.Context, operator *auth.Identity, req CreateRequest) (*App, error) {
	if err := requireSuperAdmin(operator); err != nil {
		return nil, err
	}

	req.AppName = strings.TrimSpace(req.AppName)
	req.Developer = strings.TrimSpace(req.Developer)
	req.CallbackURL = strings.TrimSpace(req.CallbackURL)
	if err := validate(req); err != nil {
		s.record(ctx, operator.Username, req.AppName, err)
		return nil, err
	}

	app := &App{
		ID:          uuid.NewString(),
		AppName:     req.AppName,
		Developer:   req.Developer,
		CallbackURL: req.CallbackURL,
		CreatedBy:   operator.Username,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, app); err != nil {
		s.record(ctx, operator.Username, req.AppName, err)
		return nil, err
	}

	s.record(ctx, operator.Username, app.AppName, nil)
	return app, nil
}

// ListApps returns every registered app. operator must be a superAdmin.
func (s *Service) ListApps(ctx context.Context, operator *auth.Identity) ([]App, error) {
	if err := requireSuperAdmin(operator); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

func (s *Service) record(ctx context.Context, username, appName string, err error) {
	s.events.Record(ctx, auth.Event{
		Type:       EventAppCreated,
		Username:   username,
		Target:     appName,
		RemoteAddr: auth.RemoteAddrFromContext(ctx),
		Err:        err,
		Time:       s.now().UTC(),
	})
}

func requireSuperAdmin(operator *auth.Identity) error {
	if operator == nil || operator.Role != auth.RoleSuperAdmin {
		return auth.ErrInsufficientPermissions
	}
	return nil
}

func validate(req CreateRequest) error {
	switch {
	case req.AppName == "" || utf8.RuneCountInString(req.AppName) > maxAppNameLength:
		return fmt.Errorf("%w: app name must be 1-%d characters", ErrInvalidApp, maxAppNameLength)
	case req.Developer == "" || utf8.RuneCountInString(req.Developer) > maxDeveloperLength:
		return fmt.Errorf("%w: developer must be 1-%d characters", ErrInvalidApp, maxDeveloperLength)
	case len(req.CallbackURL) > maxCallbackLength:
		return fmt.Errorf("%w: callback url too long", ErrInvalidApp)
	}

	u, err := url.Parse(req.CallbackURL)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: callback url must be an absolute http(s) url", ErrInvalidApp)
	}
	if u.Fragment != "" {
		return fmt.Errorf("%w: callback url must not contain a fragment", ErrInvalidApp)
	}
	return nil
}
