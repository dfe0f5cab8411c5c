package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	generateRetries    = 6
	defaultHookTimeout = 2 * time.Second
	defaultScanLimit   = 50
)

// Options carries the optional collaborators of a Service.
type Options struct {
	BaseURL     string
	Templates   Templates
	Permission  PermissionFunc
	Hook        OverrideHook
	HookTimeout time.Duration
	Logger      logrus.FieldLogger
}

// Service implements minting, validation, resolution and scan recording of
// QR links. It keeps no state beyond its collaborators and is safe for
// concurrent use.
type Service struct {
	store       Store
	targets     Targets
	gen         TokenGenerator
	templates   Templates
	canGenerate PermissionFunc
	hook        OverrideHook
	hookTimeout time.Duration
	baseURL     string
	log         logrus.FieldLogger
	nowFunc     func() time.Time
}

func NewService(store Store, targets Targets, gen TokenGenerator, opts Options) *Service {
	s := &Service{
		store:       store,
		targets:     targets,
		gen:         gen,
		templates:   opts.Templates,
		canGenerate: opts.Permission,
		hook:        opts.Hook,
		hookTimeout: opts.HookTimeout,
		baseURL:     strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		log:         opts.Logger,
		nowFunc:     time.Now,
	}
	if s.hookTimeout <= 0 {
		s.hookTimeout = defaultHookTimeout
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s
}

// SetClock replaces the time source. Intended for tests and tooling.
func (s *Service) SetClock(now func() time.Time) { s.nowFunc = now }

// BaseURL returns the configured application base URL.
func (s *Service) BaseURL() string { return s.baseURL }

// Link returns a record by id regardless of its status.
func (s *Service) Link(ctx context.Context, id string) (*LinkRecord, error) {
	l, err := s.store.GetByID(ctx, id)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, internalErr("get link", err)
	}
	return l, nil
}

// Scans lists the newest scan log entries of a link.
func (s *Service) Scans(ctx context.Context, id string, limit int) ([]*ScanLogEntry, error) {
	if _, err := s.Link(ctx, id); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = defaultScanLimit
	}
	entries, err := s.store.ListScans(ctx, id, limit)
	if err != nil {
		return nil, internalErr("list scans", err)
	}
	return entries, nil
}

func internalErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
