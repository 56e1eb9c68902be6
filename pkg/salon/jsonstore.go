package salon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// JSONStore implements Store using a JSON file for persistence.
type JSONStore struct {
	path string

	mu           sync.RWMutex
	services     []Service
	people       []Person
	appointments []Appointment
}

// storeData is the JSON structure for the store file.
type storeData struct {
	Version      int           `json:"version"`
	UpdatedAt    string        `json:"updated_at"`
	Services     []Service     `json:"services"`
	People       []Person      `json:"people"`
	Appointments []Appointment `json:"appointments"`
}

const currentVersion = 1

// NewJSONStore creates a store at the given path. If the file doesn't exist
// it is created with the default catalog.
func NewJSONStore(path string) (*JSONStore, error) {
	s := &JSONStore{path: path}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("failed to load store: %w", err)
		}
		return s, nil
	}

	s.services = DefaultServices()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.save(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *JSONStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var stored storeData
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("failed to parse JSON: %w", err)
	}

	s.services = stored.Services
	s.people = stored.People
	s.appointments = stored.Appointments
	return nil
}

// save writes the store to disk. Callers hold mu.
func (s *JSONStore) save() error {
	stored := storeData{
		Version:      currentVersion,
		UpdatedAt:    time.Now().Format(time.RFC3339),
		Services:     s.services,
		People:       s.people,
		Appointments: s.appointments,
	}

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	// Write to temp file first, then rename
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Services returns the catalog.
func (s *JSONStore) Services(ctx context.Context) ([]Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Service(nil), s.services...), nil
}

// ServiceByName finds a service case-insensitively.
func (s *JSONStore) ServiceByName(ctx context.Context, name string) (Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, svc := range s.services {
		if sameName(svc.Name, name) {
			return svc, nil
		}
	}
	return Service{}, fmt.Errorf("%w: service %q", ErrNotFound, name)
}

// PutService adds or replaces a service by name.
func (s *JSONStore) PutService(ctx context.Context, svc Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.services {
		if sameName(s.services[i].Name, svc.Name) {
			s.services[i] = svc
			return s.save()
		}
	}
	s.services = append(s.services, svc)
	return s.save()
}

// People returns the directory.
func (s *JSONStore) People(ctx context.Context) ([]Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Person(nil), s.people...), nil
}

// PutPerson adds or replaces a person by name and role.
func (s *JSONStore) PutPerson(ctx context.Context, p Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.people {
		if sameName(s.people[i].Name, p.Name) && s.people[i].Role == p.Role {
			s.people[i] = p
			return s.save()
		}
	}
	s.people = append(s.people, p)
	return s.save()
}

// CreateAppointment books a service. The service must exist.
func (s *JSONStore) CreateAppointment(ctx context.Context, n NewAppointment) (Appointment, error) {
	if err := n.Validate(); err != nil {
		return Appointment{}, err
	}
	svc, err := s.ServiceByName(ctx, n.ServiceName)
	if err != nil {
		return Appointment{}, err
	}

	a := newAppointment(n, svc.Name)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appointments = append(s.appointments, a)
	if err := s.save(); err != nil {
		s.appointments = s.appointments[:len(s.appointments)-1]
		return Appointment{}, err
	}
	return a, nil
}

// Appointments returns all appointments ordered by date and time.
func (s *JSONStore) Appointments(ctx context.Context) ([]Appointment, error) {
	s.mu.RLock()
	out := append([]Appointment(nil), s.appointments...)
	s.mu.RUnlock()
	sortAppointments(out)
	return out, nil
}

// AppointmentsAt filters appointments by date and optional time.
func (s *JSONStore) AppointmentsAt(ctx context.Context, date, clock string) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Appointment
	for _, a := range s.appointments {
		if a.Date == date && (clock == "" || a.Time == clock) {
			out = append(out, a)
		}
	}
	sortAppointments(out)
	return out, nil
}

// Close is a no-op; every write is already flushed.
func (s *JSONStore) Close() error { return nil }

func sortAppointments(a []Appointment) {
	sort.SliceStable(a, func(i, j int) bool {
		if a[i].Date != a[j].Date {
			return a[i].Date < a[j].Date
		}
		return a[i].Time < a[j].Time
	})
}

var _ Store = (*JSONStore)(nil)
