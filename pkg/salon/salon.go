// Package salon holds the application data the voice assistant reads and
// writes: the services catalog, the people directory, and appointments.
package salon

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Date and time layouts accepted for appointments.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("salon: not found")

	// ErrInvalidAppointment indicates a malformed appointment request.
	ErrInvalidAppointment = errors.New("salon: invalid appointment")
)

// Service is one bookable item of the catalog.
type Service struct {
	Name     string  `json:"name" yaml:"name"`
	Price    float64 `json:"price" yaml:"price"`
	Duration int     `json:"duration" yaml:"duration"` // minutes
}

// Role distinguishes staff from clients in the directory.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleEmployee Role = "employee"
)

// Person is a customer or employee.
type Person struct {
	Name   string `json:"name" yaml:"name"`
	Phone  string `json:"phone" yaml:"phone"`
	Role   Role   `json:"role" yaml:"role"`
	Active bool   `json:"active" yaml:"active"`
}

// Appointment is a booked service.
type Appointment struct {
	ID           uuid.UUID `json:"id"`
	CustomerName string    `json:"customerName"`
	ServiceName  string    `json:"serviceName"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewAppointment is the input to AppointmentStore.CreateAppointment.
type NewAppointment struct {
	CustomerName string `json:"customerName"`
	ServiceName  string `json:"serviceName"`
	Date         string `json:"date"`
	Time         string `json:"time"`
}

// Validate checks required fields and the date/time layouts.
func (n NewAppointment) Validate() error {
	if strings.TrimSpace(n.CustomerName) == "" {
		return fmt.Errorf("%w: customer name is required", ErrInvalidAppointment)
	}
	if strings.TrimSpace(n.ServiceName) == "" {
		return fmt.Errorf("%w: service name is required", ErrInvalidAppointment)
	}
	if _, err := time.Parse(DateLayout, n.Date); err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidAppointment, n.Date)
	}
	if _, err := time.Parse(TimeLayout, n.Time); err != nil {
		return fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidAppointment, n.Time)
	}
	return nil
}

// Catalog gives read access to services.
type Catalog interface {
	Services(ctx context.Context) ([]Service, error)
	// ServiceByName matches case-insensitively and returns ErrNotFound on miss.
	ServiceByName(ctx context.Context, name string) (Service, error)
}

// Directory gives read access to customers and employees.
type Directory interface {
	People(ctx context.Context) ([]Person, error)
}

// AppointmentStore persists appointments.
type AppointmentStore interface {
	CreateAppointment(ctx context.Context, n NewAppointment) (Appointment, error)
	Appointments(ctx context.Context) ([]Appointment, error)
	// AppointmentsAt lists the appointments booked for one date, and for
	// one time slot when clock is non-empty.
	AppointmentsAt(ctx context.Context, date, clock string) ([]Appointment, error)
}

// Store is the full set of collaborators.
type Store interface {
	Catalog
	Directory
	AppointmentStore
	Close() error
}

// DefaultServices is the catalog seeded into an empty store.
func DefaultServices() []Service {
	return []Service{
		{Name: "Corte Feminino", Price: 80, Duration: 60},
		{Name: "Corte Masculino", Price: 45, Duration: 30},
		{Name: "Escova", Price: 60, Duration: 45},
		{Name: "Coloração", Price: 150, Duration: 120},
		{Name: "Manicure", Price: 35, Duration: 40},
	}
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func newAppointment(n NewAppointment, canonicalService string) Appointment {
	return Appointment{
		ID:           uuid.New(),
		CustomerName: strings.TrimSpace(n.CustomerName),
		ServiceName:  canonicalService,
		Date:         n.Date,
		Time:         n.Time,
		CreatedAt:    time.Now().UTC(),
	}
}
