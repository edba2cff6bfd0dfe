package container

import (
	"fmt"
	"net/http"

	"go-cleanup-agent/internal/api"
	"go-cleanup-agent/internal/camera"
	"go-cleanup-agent/internal/config"
	"go-cleanup-agent/internal/evidence"
	"go-cleanup-agent/internal/location"
	"go-cleanup-agent/internal/logger"
	"go-cleanup-agent/internal/observer"
	"go-cleanup-agent/internal/transport"
)

// Container holds all application dependencies
type Container struct {
	config   *config.Config
	backend  *api.Client
	location location.Provider
	camera   camera.Source
	archiver evidence.Archiver
	events   *observer.Dispatcher
	handler  http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer() (*Container, error) {
	// Load configuration
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Build dependency graph
	backend := api.NewClient(cfg.APIBaseURL, cfg.APITimeout)

	var provider location.Provider
	if cfg.LocationURL != "" {
		provider = location.NewHTTPProvider(cfg.LocationURL, cfg.LocationTimeout)
	} else {
		logger.Warn("No LOCATION_URL configured; sessions require operator-supplied coordinates")
	}

	var source camera.Source
	if cfg.CameraURL != "" {
		source = camera.NewMJPEGSource(cfg.CameraURL)
	} else {
		logger.Warn("No CAMERA_URL configured; capture operations will be unavailable")
	}

	var archiver evidence.Archiver
	if cfg.EvidenceEnabled() {
		archiver, err = evidence.NewAzureArchiver(cfg.EvidenceAccount, cfg.EvidenceKey, cfg.EvidenceContainer)
		if err != nil {
			return nil, fmt.Errorf("failed to build evidence archiver: %w", err)
		}
	}

	events := observer.NewDispatcher()
	handler := transport.NewHandler(transport.Deps{
		Config:   cfg,
		Backend:  backend,
		Location: provider,
		Camera:   source,
		Archiver: archiver,
		Events:   events,
	})

	return &Container{
		config:   cfg,
		backend:  backend,
		location: provider,
		camera:   source,
		archiver: archiver,
		events:   events,
		handler:  handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Events returns the workflow event dispatcher, for registering extra
// observers before serving.
func (c *Container) Events() *observer.Dispatcher {
	return c.events
}
