package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/syntrixbase/kinsync/internal/config"
	"github.com/syntrixbase/kinsync/internal/live"
	"github.com/syntrixbase/kinsync/internal/logging"
	"github.com/syntrixbase/kinsync/internal/persist"
	"github.com/syntrixbase/kinsync/internal/queue"
	"github.com/syntrixbase/kinsync/internal/request"
	"github.com/syntrixbase/kinsync/pkg/model"
)

// openPersister is a variable to allow mocking in tests.
var openPersister = persist.Open

// Options configures a SyncContext.
type Options struct {
	AppKey string
	// Storage lists persister kinds in order of preference.
	Storage    []string
	StorageDir string
	Client     *request.Client
	Live       *live.Service
	Logger     *slog.Logger
}

// SyncContext owns what the repositories share: one keyed queue for every
// collection, the opened persister and the REST client.
type SyncContext struct {
	opts   Options
	logger *slog.Logger
	queue  *queue.Queue

	mu        sync.Mutex
	persister persist.Persister
	storage   string
	offline   *Offline
	network   *Network
	closed    bool
}

func NewSyncContext(opts Options) *SyncContext {
	logger := logging.Component(opts.Logger, "sync")
	return &SyncContext{
		opts:   opts,
		logger: logger,
		queue:  queue.New(queue.WithLogger(opts.Logger)),
	}
}

// FromConfig wires a SyncContext from loaded configuration. The live service
// is attached only when enabled.
func FromConfig(cfg *config.Config, sessions request.SessionStore, logger *slog.Logger) (*SyncContext, error) {
	client := request.NewClientFromConfig(cfg.App, cfg.HTTP, sessions, logger)

	opts := Options{
		AppKey:     cfg.App.AppKey,
		Storage:    cfg.Storage.Precedence,
		StorageDir: cfg.Storage.Path,
		Client:     client,
		Logger:     logger,
	}
	if cfg.Live.Enabled {
		svc, err := live.Open(cfg.Live, logger)
		if err != nil {
			return nil, err
		}
		opts.Live = svc
	}
	return NewSyncContext(opts), nil
}

// Init opens the first storage kind from Options.Storage that opens.
func (s *SyncContext) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return queue.ErrClosed
	}
	if s.persister != nil {
		return nil
	}
	if s.opts.AppKey == "" {
		return model.NewError(model.ErrMissingConfiguration, "app key is required")
	}
	if strings.Contains(s.opts.AppKey, ".") {
		// "." separates the app key from the collection in storage keys
		return model.Errorf(model.ErrInvalidIdentifier, "app key %q must not contain a dot", s.opts.AppKey)
	}

	var errs []error
	for _, kind := range s.opts.Storage {
		if err := ctx.Err(); err != nil {
			return model.WrapError(err)
		}
		p, err := openPersister(kind, persist.Config{Dir: s.opts.StorageDir, Logger: s.opts.Logger})
		if err != nil {
			s.logger.Warn("storage unavailable, trying next", "kind", kind, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", kind, err))
			continue
		}
		s.persister = p
		s.storage = kind
		s.logger.Info("storage opened", "kind", kind, "app_key", s.opts.AppKey)
		return nil
	}
	if len(errs) == 0 {
		return model.NewError(model.ErrMissingConfiguration, "no storage configured")
	}
	return errors.Join(append([]error{model.NewError(model.ErrMissingConfiguration, "no storage could be opened")}, errs...)...)
}

// Storage names the opened persister kind, or "" before Init.
func (s *SyncContext) Storage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storage
}

func (s *SyncContext) Queue() *queue.Queue { return s.queue }

// Repository returns the repository for kind. Offline requires Init, Network
// requires a client.
func (s *SyncContext) Repository(kind Kind) (Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, queue.ErrClosed
	}
	switch kind {
	case KindNetwork:
		if s.opts.Client == nil {
			return nil, model.NewError(model.ErrMissingConfiguration, "network repository needs a request client")
		}
		if s.network == nil {
			s.network = NewNetwork(s.opts.Client, s.opts.AppKey, s.opts.Logger)
		}
		return s.network, nil
	case KindOffline:
		if s.persister == nil {
			return nil, model.NewError(model.ErrMissingConfiguration, "sync context is not initialized")
		}
		if s.offline == nil {
			opts := []OfflineOption{WithLogger(s.opts.Logger)}
			if s.opts.Live != nil {
				opts = append(opts, WithNotifier(s.opts.Live))
			}
			s.offline = NewOffline(s.queue, s.persister, s.opts.AppKey, opts...)
		}
		return s.offline, nil
	}
	return nil, model.Errorf(model.ErrMissingConfiguration, "unknown repository kind %q", kind)
}

// Offline is Repository(KindOffline) with the concrete type, which also
// offers Clear.
func (s *SyncContext) Offline() (*Offline, error) {
	repo, err := s.Repository(KindOffline)
	if err != nil {
		return nil, err
	}
	return repo.(*Offline), nil
}

// Close drains the queue, then closes the persister and the live service.
func (s *SyncContext) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	errs := []error{s.queue.Close()}
	if s.persister != nil {
		errs = append(errs, s.persister.Close())
	}
	if s.opts.Live != nil {
		errs = append(errs, s.opts.Live.Close())
	}
	return errors.Join(errs...)
}
