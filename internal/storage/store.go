package storage

import (
	"context"

	"example.com/abtest/internal/domain"
)

// Store is the persistence port shared by the assignment, recording and
// reporting services. Inserts that collide with an existing unique key report
// the existing state instead of failing.
type Store interface {
	// FindAssignment returns domain.ErrNotFound when the token has no assignment.
	FindAssignment(ctx context.Context, userToken string) (domain.Assignment, error)
	// InsertAssignmentIfAbsent returns the assignment visible after the call and
	// whether this call created it.
	InsertAssignmentIfAbsent(ctx context.Context, a domain.Assignment) (domain.Assignment, bool, error)

	// InsertEvent reports false when ev.DedupKey is set and already stored.
	InsertEvent(ctx context.Context, ev domain.Event) (bool, error)
	// ListEvents returns every event, oldest first.
	ListEvents(ctx context.Context) ([]domain.Event, error)

	InsertEnrollmentIfAbsent(ctx context.Context, en domain.Enrollment) (domain.Enrollment, bool, error)
	// ListEnrollments returns every enrollment, oldest first.
	ListEnrollments(ctx context.Context) ([]domain.Enrollment, error)

	Ready(ctx context.Context) error
	Close(ctx context.Context) error
}

// Drivers selectable through STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)
