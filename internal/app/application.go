package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"attendancehub/internal/api"
	"attendancehub/internal/config"
	"attendancehub/internal/coordinator"
	"attendancehub/internal/database"
	"attendancehub/internal/events"
	"attendancehub/internal/hub"
	"attendancehub/internal/ledger"
	"attendancehub/internal/mail"
	"attendancehub/internal/notify"
	"attendancehub/internal/router"
	"attendancehub/internal/scheduler"
	"attendancehub/internal/sweeper"
	"attendancehub/internal/websocket"
)

// Application owns every long-lived component.
type Application struct {
	config      *config.Config
	store       *database.Manager
	registry    *websocket.Registry
	router      *router.Router
	hub         *hub.Hub
	scheduler   *scheduler.Scheduler
	ledger      *ledger.Ledger
	mailQueue   *mail.Queue
	mailer      mail.Mailer
	events      events.Publisher
	coordinator *coordinator.Coordinator
	sweeper     *sweeper.Sweeper
	apiServer   *api.Server
	httpServer  *http.Server
	listener    net.Listener
}

// NewApplication opens and migrates the store and builds the components in
// dependency order: store, registry, router, hub, scheduler, ledger, mail,
// events, coordinator, API.
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := database.NewManager(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}
	applied, err := store.Migrate()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.WithField("applied", applied).Info("database migrations applied")

	a := &Application{config: cfg, store: store}
	if err := a.build(); err != nil {
		store.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) build() error {
	cfg := a.config

	a.registry = websocket.NewRegistry()
	a.router = router.NewRouter(a.registry, a.store)
	a.hub = hub.NewHub(a.router)

	sched, err := scheduler.New(a.hub)
	if err != nil {
		return err
	}
	a.scheduler = sched

	a.ledger, err = ledger.New(a.store, cfg.Ledger.TTL)
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}

	switch cfg.Mail.Provider {
	case config.MailProviderSendGrid:
		sg := mail.NewSendGridMailer(cfg.Mail.SendGridAPIKey, cfg.Mail.FromName, cfg.Mail.FromEmail)
		a.mailQueue = mail.NewQueue(sg, cfg.Mail.QueueSize)
		a.mailer = a.mailQueue
	default:
		a.mailer = mail.NewLogMailer()
	}

	a.events = events.Nop{}
	if cfg.NATS.URL != "" {
		publisher, err := events.NewNATSPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
		if err != nil {
			a.closeMail()
			return fmt.Errorf("failed to connect to nats: %w", err)
		}
		a.events = publisher
	}

	a.coordinator = coordinator.New(coordinator.Dependencies{
		Registry:  a.registry,
		Store:     a.store,
		Ledger:    a.ledger,
		Scheduler: a.scheduler,
		Mailer:    a.mailer,
		Events:    a.events,
		Notifier:  notify.New(a.store, a.mailer),
	}, coordinator.Config{
		RecencyWindow:      cfg.Attendance.RecencyWindow,
		StudentEmailDomain: cfg.Mail.StudentDomain,
		ClearPhrase:        cfg.ClearPhrase,
	})
	a.coordinator.Register(a.router)

	a.sweeper = sweeper.New(a.store, cfg.Cleanup.PendingGrace)

	wsHandler := websocket.NewHandlerWithOptions(a.registry, a.hub, websocket.Options{
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		PingInterval: cfg.WebSocket.PingInterval,
		MaxFrameSize: cfg.WebSocket.MaxFrameSize,
	})
	a.apiServer = api.NewServer(a.store, a.ledger, a.registry, http.HandlerFunc(wsHandler.HandleWebSocket))

	a.httpServer = &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      a.apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	return nil
}

// Start runs the hub, registers the periodic jobs and begins serving HTTP.
func (a *Application) Start(ctx context.Context) error {
	log.WithField("addr", a.httpServer.Addr).Info("starting attendancehub")

	if err := a.hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start event hub: %w", err)
	}
	if err := a.scheduleJobs(); err != nil {
		a.hub.Stop()
		return err
	}
	a.scheduler.Start()

	listener, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		a.scheduler.Stop()
		a.hub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", a.httpServer.Addr, err)
	}
	a.listener = listener

	go func() {
		if err := a.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	log.WithField("addr", listener.Addr().String()).Info("attendancehub started")
	return nil
}

func (a *Application) scheduleJobs() error {
	cfg := a.config

	err := a.scheduler.Every(cfg.Ledger.SweepInterval, "ledger-sweep", func(ctx context.Context) {
		if _, err := a.ledger.Sweep(ctx); err != nil {
			log.WithError(err).Error("ongoing request sweep failed")
		}
	})
	if err != nil {
		return err
	}

	err = a.scheduler.Every(time.Minute, "rate-limiter-cleanup", func(ctx context.Context) {
		if n := a.router.RateLimiter().Cleanup(); n > 0 {
			log.WithField("removed", n).Debug("rate limiter entries removed")
		}
	})
	if err != nil {
		return err
	}

	return a.scheduler.ScheduleAt(time.Now().Add(cfg.Cleanup.Delay), "pending-student-sweep", a.sweeper.Task())
}

// Stop shuts down in reverse order: HTTP, connections, scheduler, hub, mail,
// events, store.
func (a *Application) Stop(ctx context.Context) error {
	log.Info("shutting down attendancehub")

	if err := a.httpServer.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}
	a.registry.CloseAll()

	if err := a.scheduler.Stop(); err != nil {
		log.WithError(err).Warn("scheduler shutdown error")
	}
	if err := a.hub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		log.WithError(err).Warn("event hub shutdown error")
	}

	a.closeMail()
	if err := a.events.Close(); err != nil {
		log.WithError(err).Warn("event publisher shutdown error")
	}
	if err := a.store.Close(); err != nil {
		log.WithError(err).Warn("database shutdown error")
	}

	log.Info("attendancehub shutdown complete")
	return nil
}

func (a *Application) closeMail() {
	if a.mailQueue == nil {
		return
	}
	if err := a.mailQueue.Close(); err != nil {
		log.WithError(err).Warn("mail queue shutdown error")
	}
}

// Addr returns the bound listen address once started, else the configured
// one.
func (a *Application) Addr() string {
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return a.httpServer.Addr
}

// Store exposes the entity store for seeding and inspection.
func (a *Application) Store() *database.Manager {
	return a.store
}

// Ledger exposes the ongoing request ledger.
func (a *Application) Ledger() *ledger.Ledger {
	return a.ledger
}

// Pending returns the names of scheduled jobs.
func (a *Application) Pending() []string {
	return a.scheduler.Pending()
}
