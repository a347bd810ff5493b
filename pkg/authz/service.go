package authz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/backoffice/pkg/authz/policy"
	"github.com/iota-uz/backoffice/pkg/types"
)

// Service provides helpers for enforcing authorization decisions.
type Service struct {
	cfg      Config
	enforcer *casbin.Enforcer
	logger   *logrus.Entry
	mu       sync.RWMutex
}

// NewService constructs a Service with the provided config.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.normalized()

	var logger *logrus.Entry
	if cfg.Logger != nil {
		logger = cfg.Logger.WithField("component", "authz")
	} else {
		logger = logrus.WithField("component", "authz")
	}

	m, err := model.NewModelFromString(policy.Model)
	if err != nil {
		return nil, fmt.Errorf("authz: failed to parse model: %w", err)
	}
	var enf *casbin.Enforcer
	if cfg.PolicyPath != "" {
		enf, err = casbin.NewEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		enf, err = casbin.NewEnforcer(m, stringadapter.NewAdapter(policy.Default))
	}
	if err != nil {
		return nil, fmt.Errorf("authz: failed to initialize enforcer: %w", err)
	}
	if err := enf.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("authz: failed to load policies: %w", err)
	}

	return &Service{
		cfg:      cfg,
		enforcer: enf,
		logger:   logger,
	}, nil
}

// Authorize returns an error if the request is denied.
func (s *Service) Authorize(ctx context.Context, req Request) error {
	allowed, err := s.Check(ctx, req)
	if err != nil {
		return err
	}
	if !allowed {
		s.logger.WithContext(ctx).WithFields(logrus.Fields{
			"subject": req.Subject,
			"object":  req.Object,
			"action":  req.Action,
		}).Warn("authz denied request")
		return forbiddenError(req)
	}
	return nil
}

// Check evaluates a request without returning an authorization error.
func (s *Service) Check(ctx context.Context, req Request) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := time.Now()
	res, err := s.enforcer.Enforce(req.Subject, req.Object, req.Action)
	if err != nil {
		return false, fmt.Errorf("authz: enforce failed: %w", err)
	}
	recordDecision(req, res, time.Since(start))
	return res, nil
}

// Can reports whether role may perform action on object. Evaluation errors deny.
func (s *Service) Can(ctx context.Context, role types.Role, object, action string) bool {
	allowed, err := s.Check(ctx, RoleRequest(role, object, action))
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Error("authz check failed")
		return false
	}
	return allowed
}

// IsElevated reports whether role bypasses the edit grant workflow.
func (s *Service) IsElevated(ctx context.Context, role types.Role) bool {
	return s.Can(ctx, role, ObjectResources, ActionBypass)
}

// ReloadPolicy reloads policy data from its source.
func (s *Service) ReloadPolicy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("authz: reload policy failed: %w", err)
	}
	s.logger.WithContext(ctx).Info("authz policy reloaded")
	return nil
}

var (
	defaultServiceOnce sync.Once
	defaultService     *Service
	defaultServiceErr  error
)

// Use returns a singleton Service configured via environment variables.
func Use() *Service {
	defaultServiceOnce.Do(func() {
		defaultService, defaultServiceErr = NewService(DefaultConfig())
	})
	if defaultServiceErr != nil {
		panic(defaultServiceErr)
	}
	return defaultService
}
