package salon

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// PGStore implements Store on Postgres.
type PGStore struct {
	pool   *pgxpool.Pool
	db     *sql.DB
	logger *slog.Logger
}

// NewPGStore connects, applies migrations, and seeds the default catalog
// when the services table is empty.
func NewPGStore(ctx context.Context, dsn string, logger *slog.Logger) (*PGStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PGStore{
		pool:   pool,
		db:     stdlib.OpenDBFromPool(pool),
		logger: logger.With("component", "salon.pg"),
	}

	if err := s.migrate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.seed(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *PGStore) migrate(ctx context.Context) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, s.db, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		s.logger.Info("migration applied", "source", r.Source.Path, "duration", r.Duration)
	}
	return nil
}

func (s *PGStore) seed(ctx context.Context) error {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM services`).Scan(&n); err != nil {
		return fmt.Errorf("count services: %w", err)
	}
	if n > 0 {
		return nil
	}
	for _, svc := range DefaultServices() {
		if err := s.PutService(ctx, svc); err != nil {
			return err
		}
	}
	s.logger.Info("seeded default catalog")
	return nil
}

// Services returns the catalog ordered by name.
func (s *PGStore) Services(ctx context.Context) ([]Service, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, price, duration FROM services ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	return pgx.CollectRows(rows, scanService)
}

// ServiceByName finds a service case-insensitively.
func (s *PGStore) ServiceByName(ctx context.Context, name string) (Service, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, price, duration FROM services WHERE lower(name) = lower($1)`,
		strings.TrimSpace(name))
	if err != nil {
		return Service{}, fmt.Errorf("query service: %w", err)
	}
	svc, err := pgx.CollectExactlyOneRow(rows, scanService)
	if errors.Is(err, pgx.ErrNoRows) {
		return Service{}, fmt.Errorf("%w: service %q", ErrNotFound, name)
	}
	return svc, err
}

func scanService(row pgx.CollectableRow) (Service, error) {
	var svc Service
	err := row.Scan(&svc.Name, &svc.Price, &svc.Duration)
	return svc, err
}

// PutService inserts or updates a service.
func (s *PGStore) PutService(ctx context.Context, svc Service) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO services (name, price, duration) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET price = EXCLUDED.price, duration = EXCLUDED.duration`,
		svc.Name, svc.Price, svc.Duration)
	if err != nil {
		return fmt.Errorf("upsert service: %w", err)
	}
	return nil
}

// People returns the directory.
func (s *PGStore) People(ctx context.Context) ([]Person, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, phone, role, active FROM people ORDER BY role, name`)
	if err != nil {
		return nil, fmt.Errorf("query people: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Person, error) {
		var p Person
		var role string
		err := row.Scan(&p.Name, &p.Phone, &role, &p.Active)
		p.Role = Role(role)
		return p, err
	})
}

// PutPerson inserts or updates a person.
func (s *PGStore) PutPerson(ctx context.Context, p Person) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO people (name, role, phone, active) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (name, role) DO UPDATE SET phone = EXCLUDED.phone, active = EXCLUDED.active`,
		p.Name, string(p.Role), p.Phone, p.Active)
	if err != nil {
		return fmt.Errorf("upsert person: %w", err)
	}
	return nil
}

// CreateAppointment books a service. The service must exist.
func (s *PGStore) CreateAppointment(ctx context.Context, n NewAppointment) (Appointment, error) {
	if err := n.Validate(); err != nil {
		return Appointment{}, err
	}
	svc, err := s.ServiceByName(ctx, n.ServiceName)
	if err != nil {
		return Appointment{}, err
	}

	a := newAppointment(n, svc.Name)
	_, err = s.pool.Exec(ctx,
		`INSERT INTO appointments (id, customer_name, service_name, date, time, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID.String(), a.CustomerName, a.ServiceName, a.Date, a.Time, a.CreatedAt)
	if err != nil {
		return Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}
	return a, nil
}

// Appointments returns all appointments ordered by date and time.
func (s *PGStore) Appointments(ctx context.Context) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, customer_name, service_name, date, time, created_at
		 FROM appointments ORDER BY date, time`)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	return pgx.CollectRows(rows, scanAppointment)
}

// AppointmentsAt filters appointments by date and optional time.
func (s *PGStore) AppointmentsAt(ctx context.Context, date, clock string) ([]Appointment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, customer_name, service_name, date, time, created_at
		 FROM appointments
		 WHERE date = $1 AND ($2 = '' OR time = $2)
		 ORDER BY time`,
		date, clock)
	if err != nil {
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	return pgx.CollectRows(rows, scanAppointment)
}

func scanAppointment(row pgx.CollectableRow) (Appointment, error) {
	var a Appointment
	var id string
	if err := row.Scan(&id, &a.CustomerName, &a.ServiceName, &a.Date, &a.Time, &a.CreatedAt); err != nil {
		return a, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return a, fmt.Errorf("appointment id %q: %w", id, err)
	}
	a.ID = parsed
	return a, nil
}

// Close releases the pool.
func (s *PGStore) Close() error {
	if s.db != nil {
		_ = s.db.Close()
	}
	s.pool.Close()
	return nil
}

var _ Store = (*PGStore)(nil)
