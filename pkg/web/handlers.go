package web

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/salon-voice/pkg/metrics"
	"github.com/teslashibe/salon-voice/pkg/salon"
	"github.com/teslashibe/salon-voice/pkg/session"
)

// handleStatus returns the session snapshot
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.orch.State())
}

// handleStart opens a voice session, replacing any running one
func (s *Server) handleStart(c *fiber.Ctx) error {
	err := s.orch.Start(c.UserContext())
	switch {
	case err == nil:
		return c.Status(fiber.StatusAccepted).JSON(s.orch.State())
	case errors.Is(err, session.ErrDisabled):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": session.Reason(err),
		})
	case errors.Is(err, session.ErrStopped):
		// Stopped or replaced before it finished opening.
		return c.JSON(s.orch.State())
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": session.Reason(err),
			"state": s.orch.State(),
		})
	}
}

// handleStop ends the voice session
func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.orch.Stop(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(s.orch.State())
}

// GainRequest is the request body for changing the microphone gain
type GainRequest struct {
	Gain *float64 `json:"gain"`
}

// handleGain changes the microphone gain
func (s *Server) handleGain(c *fiber.Ctx) error {
	var req GainRequest
	if err := c.BodyParser(&req); err != nil || req.Gain == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be {\"gain\": <number>}",
		})
	}
	if *req.Gain < 0 || *req.Gain > 10 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "gain must be between 0 and 10",
		})
	}
	s.orch.SetGain(*req.Gain)
	return c.JSON(fiber.Map{"gain": *req.Gain})
}

// handleServices returns the catalog
func (s *Server) handleServices(c *fiber.Ctx) error {
	services, err := s.store.Services(c.UserContext())
	if err != nil {
		return s.internal(c, err)
	}
	return c.JSON(services)
}

// handlePeople returns staff and customers
func (s *Server) handlePeople(c *fiber.Ctx) error {
	people, err := s.store.People(c.UserContext())
	if err != nil {
		return s.internal(c, err)
	}
	return c.JSON(people)
}

// handleAppointments lists appointments, optionally for one date
func (s *Server) handleAppointments(c *fiber.Ctx) error {
	var (
		appts []salon.Appointment
		err   error
	)
	if date := c.Query("date"); date != "" {
		appts, err = s.store.AppointmentsAt(c.UserContext(), date, c.Query("time"))
	} else {
		appts, err = s.store.Appointments(c.UserContext())
	}
	if err != nil {
		return s.internal(c, err)
	}
	if appts == nil {
		appts = []salon.Appointment{}
	}
	return c.JSON(appts)
}

// handleCreateAppointment books an appointment from the manual form
func (s *Server) handleCreateAppointment(c *fiber.Ctx) error {
	var req salon.NewAppointment
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body",
		})
	}

	a, err := s.store.CreateAppointment(c.UserContext(), req)
	switch {
	case errors.Is(err, salon.ErrInvalidAppointment):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, salon.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return s.internal(c, err)
	}

	s.PublishAppointment(a)
	return c.Status(fiber.StatusCreated).JSON(a)
}

// handleElements returns the element IDs browsers have registered
func (s *Server) handleElements(c *fiber.Ctx) error {
	return c.JSON(s.registry.Elements())
}

// MetricsResponse is the body of /api/metrics
type MetricsResponse struct {
	Current *metrics.Session  `json:"current,omitempty"`
	Summary metrics.Summary   `json:"summary"`
	History []metrics.Session `json:"history"`
}

// handleMetrics returns session metrics
func (s *Server) handleMetrics(c *fiber.Ctx) error {
	m := s.orch.Metrics()
	resp := MetricsResponse{
		Summary: m.Summary(),
		History: m.History(),
	}
	if cur, ok := m.Current(); ok {
		resp.Current = &cur
	}
	return c.JSON(resp)
}

func (s *Server) internal(c *fiber.Ctx, err error) error {
	s.logger.Error("request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "internal error",
	})
}
