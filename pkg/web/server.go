// Package web serves the salon voice assistant's HTTP API and the browser
// status feed.
package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/salon-voice/pkg/hub"
	"github.com/teslashibe/salon-voice/pkg/protocol"
	"github.com/teslashibe/salon-voice/pkg/salon"
	"github.com/teslashibe/salon-voice/pkg/session"
	"github.com/teslashibe/salon-voice/pkg/ui"
)

// Config holds server configuration.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// StaticDir, when set, is served at "/".
	StaticDir string

	Logger *slog.Logger
}

// Server is the HTTP and websocket front end.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	orch     *session.Orchestrator
	store    salon.Store
	hub      *hub.Hub
	registry *ui.RemoteRegistry
}

// NewServer builds the routes. The hub must be running (see Start) before
// browsers connect.
func NewServer(cfg Config, orch *session.Orchestrator, store salon.Store, h *hub.Hub, registry *ui.RemoteRegistry) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		addr:     cfg.Addr,
		logger:   cfg.Logger.With("component", "web"),
		orch:     orch,
		store:    store,
		hub:      h,
		registry: registry,
	}

	h.OnConnect(s.clientConnected)
	h.OnMessage(s.clientMessage)
	h.OnDisconnect(func(c *hub.Client) { registry.ForgetClient(c.ID) })

	app := fiber.New(fiber.Config{
		AppName:               "Salon Voice",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	// API routes
	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/session/start", s.handleStart)
	api.Post("/session/stop", s.handleStop)
	api.Post("/gain", s.handleGain)
	api.Get("/services", s.handleServices)
	api.Get("/people", s.handlePeople)
	api.Get("/appointments", s.handleAppointments)
	api.Post("/appointments", s.handleCreateAppointment)
	api.Get("/elements", s.handleElements)
	api.Get("/metrics", s.handleMetrics)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(s.handleWS))

	s.app = app
	return s
}

// Start runs the hub and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", "addr", s.addr)
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.Shutdown(); err != nil {
			return err
		}
		return nil
	}
}

// PublishState broadcasts a session snapshot to every browser.
func (s *Server) PublishState(st session.State) {
	msg, err := statusMessage(st)
	if err != nil {
		s.logger.Error("encode status", "error", err)
		return
	}
	s.hub.Broadcast(msg)
}

// PublishAppointment broadcasts a newly created appointment.
func (s *Server) PublishAppointment(a salon.Appointment) {
	pm, err := protocol.NewAppointmentMessage(protocol.AppointmentData{
		ID:           a.ID.String(),
		CustomerName: a.CustomerName,
		ServiceName:  a.ServiceName,
		Date:         a.Date,
		Time:         a.Time,
	})
	if err != nil {
		s.logger.Error("encode appointment", "error", err)
		return
	}
	msg, err := hub.FromProtocol(pm)
	if err != nil {
		s.logger.Error("encode appointment", "error", err)
		return
	}
	s.hub.Broadcast(msg)
}

func statusMessage(st session.State) (hub.Message, error) {
	pm, err := protocol.NewStatusMessage(st.Status.String(), st.Speaking, st.Enabled, st.Message)
	if err != nil {
		return hub.Message{}, err
	}
	return hub.FromProtocol(pm)
}

// clientConnected sends the current status to a new browser.
func (s *Server) clientConnected(c *hub.Client) {
	msg, err := statusMessage(s.orch.State())
	if err != nil {
		s.logger.Error("encode status", "error", err)
		return
	}
	c.Send(msg)
}

// clientMessage feeds browser messages to the element registry.
func (s *Server) clientMessage(c *hub.Client, data []byte) {
	reply, err := s.registry.HandleMessage(c.ID, data)
	if err != nil {
		s.logger.Warn("bad browser message", "client_id", c.ID, "error", err)
		return
	}
	if reply == nil {
		return
	}
	msg, err := hub.FromProtocol(reply)
	if err != nil {
		s.logger.Error("encode reply", "error", err)
		return
	}
	c.Send(msg)
}

func (s *Server) handleWS(c *websocket.Conn) {
	hub.NewClient(s.hub, c).Run()
}
