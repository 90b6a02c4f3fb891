// Package memory is a process-local Store used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"example.com/abtest/internal/domain"
	"example.com/abtest/internal/storage"
)

type enrollmentKey struct {
	userToken string
	courseID  string
}

type Store struct {
	mu          sync.RWMutex
	assignments map[string]domain.Assignment
	events      []domain.Event
	dedupKeys   map[string]struct{}
	enrollments []domain.Enrollment
	enrolled    map[enrollmentKey]int
}

func New() *Store {
	return &Store{
		assignments: make(map[string]domain.Assignment),
		dedupKeys:   make(map[string]struct{}),
		enrolled:    make(map[enrollmentKey]int),
	}
}

func (s *Store) FindAssignment(_ context.Context, userToken string) (domain.Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[userToken]
	if !ok {
		return domain.Assignment{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *Store) InsertAssignmentIfAbsent(_ context.Context, a domain.Assignment) (domain.Assignment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.assignments[a.UserToken]; ok {
		return existing, false, nil
	}
	s.assignments[a.UserToken] = a
	return a, true, nil
}

func (s *Store) InsertEvent(_ context.Context, ev domain.Event) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.DedupKey != "" {
		if _, dup := s.dedupKeys[ev.DedupKey]; dup {
			return false, nil
		}
		s.dedupKeys[ev.DedupKey] = struct{}{}
	}
	s.events = append(s.events, ev)
	return true, nil
}

func (s *Store) ListEvents(_ context.Context) ([]domain.Event, error) {
	s.mu.RLock()
	out := make([]domain.Event, len(s.events))
	copy(out, s.events)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *Store) InsertEnrollmentIfAbsent(_ context.Context, en domain.Enrollment) (domain.Enrollment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := enrollmentKey{en.UserToken, en.CourseID}
	if idx, ok := s.enrolled[k]; ok {
		return s.enrollments[idx], false, nil
	}
	s.enrolled[k] = len(s.enrollments)
	s.enrollments = append(s.enrollments, en)
	return en, true, nil
}

func (s *Store) ListEnrollments(_ context.Context) ([]domain.Enrollment, error) {
	s.mu.RLock()
	out := make([]domain.Enrollment, len(s.enrollments))
	copy(out, s.enrollments)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].EnrolledAt.Before(out[j].EnrolledAt) })
	return out, nil
}

func (s *Store) Ready(context.Context) error { return nil }

func (s *Store) Close(context.Context) error { return nil }

var _ storage.Store = (*Store)(nil)
