package registry

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Registration is a persisted broker registration. Registrations survive
// restarts: on startup the registry reconnects every persisted endpoint.
type Registration struct {
	// Name is the device identifier, unique across the registry.
	Name string

	// Endpoint is the normalised broker URI (tcp://host:port form).
	Endpoint string

	// CreatedAt records when the registration was first made.
	CreatedAt time.Time
}

// Repository defines the interface for registration persistence.
// This abstraction allows for different implementations (SQLite, memory)
// and enables unit testing without database dependencies.
type Repository interface {
	// List retrieves all registrations in creation order.
	List(ctx context.Context) ([]Registration, error)

	// Create inserts a new registration.
	// Returns ErrAlreadyRegistered if the name is already taken.
	Create(ctx context.Context, reg Registration) error

	// Delete removes a registration by name.
	// Returns ErrNotFound if no such registration exists.
	Delete(ctx context.Context, name string) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection with the
// broker_registrations migration applied.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// List retrieves all registrations in creation order.
func (r *SQLiteRepository) List(ctx context.Context) ([]Registration, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT name, endpoint, created_at FROM broker_registrations ORDER BY created_at, name",
	)
	if err != nil {
		return nil, fmt.Errorf("querying registrations: %w", err)
	}
	defer rows.Close()

	var regs []Registration
	for rows.Next() {
		var reg Registration
		var createdAt string
		if err := rows.Scan(&reg.Name, &reg.Endpoint, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning registration row: %w", err)
		}
		// Parse timestamp - ignore error as format is controlled by us
		reg.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // Format is controlled
		regs = append(regs, reg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating registrations: %w", err)
	}
	return regs, nil
}

// Create inserts a new registration.
func (r *SQLiteRepository) Create(ctx context.Context, reg Registration) error {
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO broker_registrations (name, endpoint, created_at) VALUES (?, ?, ?)",
		reg.Name,
		reg.Endpoint,
		reg.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrAlreadyRegistered
		}
		return fmt.Errorf("inserting registration: %w", err)
	}
	return nil
}

// Delete removes a registration by name.
func (r *SQLiteRepository) Delete(ctx context.Context, name string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM broker_registrations WHERE name = ?", name,
	)
	if err != nil {
		return fmt.Errorf("deleting registration: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deleted rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
