package postgres

import (
	"context"

	"example.com/abtest/internal/domain"
)

func (s *Store) ListEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT user_token, session_id, variant, course_id, kind, extra, ts
FROM events
ORDER BY ts ASC, id ASC`)
	if err != nil {
		return nil, persistErr("list events", err)
	}
	defer rows.Close()

	out := make([]domain.Event, 0)
	for rows.Next() {
		var ev domain.Event
		var sessionID *string
		var variant string
		var extra []byte
		if err := rows.Scan(&ev.UserToken, &sessionID, &variant, &ev.CourseID, &ev.Kind, &extra, &ev.Timestamp); err != nil {
			return nil, persistErr("scan event", err)
		}
		if sessionID != nil {
			ev.SessionID = *sessionID
		}
		ev.Variant = domain.Variant(variant)
		ev.Extra = extra
		ev.Timestamp = ev.Timestamp.UTC()
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list events", err)
	}
	return out, nil
}

func (s *Store) ListEnrollments(ctx context.Context) ([]domain.Enrollment, error) {
	rows, err := s.db.Pool.Query(ctx, `
SELECT user_token, variant, course_id, enrolled_at
FROM enrollments
ORDER BY enrolled_at ASC, id ASC`)
	if err != nil {
		return nil, persistErr("list enrollments", err)
	}
	defer rows.Close()

	out := make([]domain.Enrollment, 0)
	for rows.Next() {
		var en domain.Enrollment
		var variant string
		if err := rows.Scan(&en.UserToken, &variant, &en.CourseID, &en.EnrolledAt); err != nil {
			return nil, persistErr("scan enrollment", err)
		}
		en.Variant = domain.Variant(variant)
		en.EnrolledAt = en.EnrolledAt.UTC()
		out = append(out, en)
	}
	if err := rows.Err(); err != nil {
		return nil, persistErr("list enrollments", err)
	}
	return out, nil
}
