// Package supervisor owns the process-global RuntimeConfig and the
// lifecycle of the cloud queue poller built from it. It is the one place
// allowed to mutate RuntimeConfig; every other component reads an
// immutable snapshot, and can restart the poller when the config changes
// at runtime.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/printbridge/agent/internal/cloudqueue"
	"github.com/printbridge/agent/internal/configstore"
	"github.com/printbridge/agent/internal/model"
)

// StoreFactory builds the DocumentStore backing a poller for a given cloud
// project id. Exposed as a function so tests can substitute a fake store
// without touching Firestore.
type StoreFactory func(ctx context.Context, projectID string) (cloudqueue.DocumentStore, error)

// Supervisor owns RuntimeConfig and the current cloud poller, if any.
type Supervisor struct {
	log          zerolog.Logger
	newStore     StoreFactory
	pollInterval time.Duration

	mu     sync.Mutex
	config model.RuntimeConfig
	poller *cloudqueue.Poller
}

// New builds a Supervisor seeded from the persisted config document plus a
// freshly derived device id (hostname plus the startup time in
// milliseconds).
func New(newStore StoreFactory, log zerolog.Logger) *Supervisor {
	stored := configstore.Load()
	cfg := model.RuntimeConfig{
		RestaurantID:   stored.RestaurantID,
		DeviceName:     stored.DeviceName,
		CloudProjectID: stored.FirebaseProject,
		DeviceID:       deviceID(),
	}
	return &Supervisor{
		log:          log.With().Str("component", "supervisor").Logger(),
		newStore:     newStore,
		pollInterval: cloudqueue.DefaultPollInterval,
		config:       cfg,
	}
}

func deviceID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "printbridge"
	}
	return fmt.Sprintf("%s-%d", host, time.Now().UnixMilli())
}

// Snapshot returns an immutable copy of the current RuntimeConfig.
func (s *Supervisor) Snapshot() model.RuntimeConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config.Snapshot()
}

// Start brings up the cloud poller if the loaded config already enables it
// (cloud is active whenever RestaurantID is non-empty).
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	cfg := s.config
	s.mu.Unlock()

	if cfg.CloudEnabled() {
		s.startPoller(ctx, cfg)
	}
}

// SetRestaurantID persists a new restaurant id and, optionally, a new
// device name, then restarts the cloud poller to match: stop whatever
// poller is running, then start a new one only if the new id is
// non-empty. deviceName leaves the existing name untouched when empty.
func (s *Supervisor) SetRestaurantID(ctx context.Context, restaurantID, deviceName string) error {
	s.mu.Lock()
	s.config.RestaurantID = restaurantID
	if deviceName != "" {
		s.config.DeviceName = deviceName
	}
	cfg := s.config
	s.mu.Unlock()

	if err := configstore.Save(model.StoredConfig{
		RestaurantID:    cfg.RestaurantID,
		DeviceName:      cfg.DeviceName,
		FirebaseProject: cfg.CloudProjectID,
	}); err != nil {
		return err
	}

	return s.RestartCloud(ctx)
}

// RestartCloud stops any running poller, then starts a new one only if the
// current config enables cloud. Safe to call when no poller is running.
func (s *Supervisor) RestartCloud(ctx context.Context) error {
	s.mu.Lock()
	poller := s.poller
	s.poller = nil
	cfg := s.config
	s.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}

	if !cfg.CloudEnabled() {
		return nil
	}
	return s.startPollerErr(ctx, cfg)
}

func (s *Supervisor) startPoller(ctx context.Context, cfg model.RuntimeConfig) {
	if err := s.startPollerErr(ctx, cfg); err != nil {
		s.log.Warn().Err(err).Msg("failed to start cloud poller")
	}
}

func (s *Supervisor) startPollerErr(ctx context.Context, cfg model.RuntimeConfig) error {
	if s.newStore == nil {
		return fmt.Errorf("cloud poller requested but no store factory configured")
	}
	store, err := s.newStore(ctx, cfg.CloudProjectID)
	if err != nil {
		return fmt.Errorf("build document store: %w", err)
	}

	poller := cloudqueue.NewPoller(store, cfg.RestaurantID, cfg.DeviceID, cfg.DeviceName, s.log)
	poller.Start(s.pollInterval)

	s.mu.Lock()
	s.poller = poller
	s.mu.Unlock()
	return nil
}

// Stop shuts down any running poller. Safe to call multiple times.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	poller := s.poller
	s.poller = nil
	s.mu.Unlock()

	if poller != nil {
		poller.Stop()
	}
}
