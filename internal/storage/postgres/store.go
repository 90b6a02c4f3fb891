package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"example.com/abtest/internal/domain"
	"example.com/abtest/internal/storage"
)

// Store implements storage.Store. Uniqueness is enforced by the schema and
// every insert uses ON CONFLICT DO NOTHING, so concurrent first writers
// resolve to a single row.
type Store struct {
	db *DB
}

func NewStore(db *DB) *Store { return &Store{db: db} }

func (s *Store) FindAssignment(ctx context.Context, userToken string) (domain.Assignment, error) {
	var a domain.Assignment
	var variant string
	err := s.db.Pool.QueryRow(ctx,
		`SELECT user_token, variant, created_at FROM assignments WHERE user_token = $1`, userToken,
	).Scan(&a.UserToken, &variant, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Assignment{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Assignment{}, persistErr("find assignment", err)
	}
	a.Variant = domain.Variant(variant)
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func (s *Store) InsertAssignmentIfAbsent(ctx context.Context, a domain.Assignment) (domain.Assignment, bool, error) {
	ct, err := s.db.Pool.Exec(ctx,
		`INSERT INTO assignments (user_token, variant, created_at) VALUES ($1, $2, $3) ON CONFLICT (user_token) DO NOTHING`,
		a.UserToken, string(a.Variant), a.CreatedAt,
	)
	if err != nil {
		return domain.Assignment{}, false, persistErr("insert assignment", err)
	}
	if ct.RowsAffected() == 1 {
		return a, true, nil
	}
	existing, err := s.FindAssignment(ctx, a.UserToken)
	if err != nil {
		return domain.Assignment{}, false, err
	}
	return existing, false, nil
}

func (s *Store) InsertEvent(ctx context.Context, ev domain.Event) (bool, error) {
	var extra, sessionID, dedupKey any
	if len(ev.Extra) > 0 {
		extra = string(ev.Extra)
	}
	if ev.SessionID != "" {
		sessionID = ev.SessionID
	}
	if ev.DedupKey != "" {
		dedupKey = ev.DedupKey
	}
	ct, err := s.db.Pool.Exec(ctx,
		`INSERT INTO events (user_token, session_id, variant, course_id, kind, extra, ts, dedup_key)
VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)
ON CONFLICT DO NOTHING`,
		ev.UserToken, sessionID, string(ev.Variant), ev.CourseID, ev.Kind, extra, ev.Timestamp, dedupKey,
	)
	if err != nil {
		return false, persistErr("insert event", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Store) InsertEnrollmentIfAbsent(ctx context.Context, en domain.Enrollment) (domain.Enrollment, bool, error) {
	ct, err := s.db.Pool.Exec(ctx,
		`INSERT INTO enrollments (user_token, variant, course_id, enrolled_at) VALUES ($1, $2, $3, $4)
ON CONFLICT ON CONSTRAINT enrollments_user_course_uq DO NOTHING`,
		en.UserToken, string(en.Variant), en.CourseID, en.EnrolledAt,
	)
	if err != nil {
		return domain.Enrollment{}, false, persistErr("insert enrollment", err)
	}
	if ct.RowsAffected() == 1 {
		return en, true, nil
	}

	var existing domain.Enrollment
	var variant string
	err = s.db.Pool.QueryRow(ctx,
		`SELECT user_token, variant, course_id, enrolled_at FROM enrollments WHERE user_token = $1 AND course_id = $2`,
		en.UserToken, en.CourseID,
	).Scan(&existing.UserToken, &variant, &existing.CourseID, &existing.EnrolledAt)
	if err != nil {
		return domain.Enrollment{}, false, persistErr("find enrollment", err)
	}
	existing.Variant = domain.Variant(variant)
	existing.EnrolledAt = existing.EnrolledAt.UTC()
	return existing, false, nil
}

func (s *Store) Ready(ctx context.Context) error { return s.db.Ready(ctx) }

func (s *Store) Close(ctx context.Context) error { return s.db.Close(ctx) }

var _ storage.Store = (*Store)(nil)
