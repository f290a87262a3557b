package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"trueinterview/internal/api"
	"trueinterview/internal/config"
	"trueinterview/internal/database"
	"trueinterview/internal/hub"
	"trueinterview/internal/room"
	"trueinterview/internal/router"
	"trueinterview/internal/scheduler"
	"trueinterview/internal/session"
	"trueinterview/internal/websocket"
)

// ErrNotStarted is returned by Stop before Start succeeded
var ErrNotStarted = errors.New("application not started")

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	store      *room.Store
	registry   *websocket.Registry
	router     *router.Router
	gateway    *session.Gateway
	hub        *hub.Hub
	apiServer  *api.Server
	httpServer *http.Server

	mu       sync.Mutex
	listener net.Listener
	serveErr chan error
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Archive → Store → Registry → Router → Gateway → Reaper → Hub → WebSocket → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// STEP 1: Room archive (applies embedded migrations)
	dbManager, err := database.NewManager(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}

	// STEP 2: In-memory rooms and live connections
	store := room.NewStore()
	registry := websocket.NewRegistry()

	// STEP 3: Fan-out and lifecycle
	rt := router.NewRouter(store, registry, router.Options{
		EditorIdleTimeout: cfg.Rooms.EditorIdleTimeout,
		RateLimit:         cfg.Rooms.RateLimit,
		RateWindow:        cfg.Rooms.RateWindow,
	})
	gw := session.NewGateway(store, rt, dbManager, session.Options{
		GracePeriod:           cfg.Rooms.GracePeriod,
		MaxRoomAge:            cfg.Rooms.MaxAge,
		MaxIdle:               cfg.Rooms.MaxIdle,
		InterviewerAutoCreate: cfg.Rooms.InterviewerAutoCreate,
	})

	// STEP 4: Backstop sweeps and the event hub
	reaper := scheduler.NewReaper(cfg.Rooms.ReapInterval, gw.SweepIdle, rt.CleanupLimiter)
	messageHub := hub.NewHub(gw, rt, reaper)

	// STEP 5: Transport and side channel on one gin engine
	wsHandler := websocket.NewHandler(registry, messageHub, websocket.Options{
		ReadLimit:      cfg.WebSocket.ReadLimit,
		SendBuffer:     cfg.WebSocket.SendBuffer,
		WriteTimeout:   cfg.WebSocket.WriteTimeout,
		PongWait:       cfg.WebSocket.PongWait,
		PingInterval:   cfg.WebSocket.PingInterval,
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	})

	gin.SetMode(cfg.HTTP.Mode)
	apiServer := api.NewServer(gw, rt, dbManager, registry, wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		dbManager:  dbManager,
		store:      store,
		registry:   registry,
		router:     rt,
		gateway:    gw,
		hub:        messageHub,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start begins application execution
// Hub starts first to handle events, then the listener accepts connections
func (app *Application) Start(ctx context.Context) error {
	if err := app.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}

	app.mu.Lock()
	app.listener = listener
	app.serveErr = make(chan error, 1)
	app.mu.Unlock()

	go func(errCh chan<- error) {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Error("HTTP server error")
			errCh <- err
		}
		close(errCh)
	}(app.serveErr)

	logrus.WithField("addr", listener.Addr().String()).Info("Interview coordinator started")
	return nil
}

// Done is closed when the HTTP server stops; it carries the serve error if any
func (app *Application) Done() <-chan error {
	app.mu.Lock()
	defer app.mu.Unlock()
	return app.serveErr
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → Hub → Rooms → Connections → Archive
func (app *Application) Stop(ctx context.Context) error {
	app.mu.Lock()
	started := app.listener != nil
	app.mu.Unlock()
	if !started {
		return ErrNotStarted
	}

	logrus.Info("Shutting down interview coordinator")

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("HTTP server shutdown error")
	}

	// STEP 2: Stop event processing and sweeps
	if err := app.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		logrus.WithError(err).Warn("Message hub shutdown error")
	}

	// STEP 3: End every live room, then drop the sockets
	app.gateway.Shutdown()
	app.router.Stop()
	app.registry.CloseAll()

	// STEP 4: Flush the archive within the shutdown deadline, then close it.
	// Close still drains whatever a timed-out flush left queued.
	if err := app.dbManager.Sync(ctx); err != nil {
		logrus.WithError(err).WithField("archive", app.dbManager.GetStats()).Warn("Archive flush incomplete")
	}
	if err := app.dbManager.Close(); err != nil {
		logrus.WithError(err).Warn("Database shutdown error")
	}

	logrus.Info("Interview coordinator shutdown complete")
	return nil
}

// Addr returns the bound listener address, or the configured one before Start
func (app *Application) Addr() string {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Handler exposes the HTTP handler for in-process tests
func (app *Application) Handler() http.Handler {
	return app.apiServer
}
