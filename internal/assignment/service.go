package assignment

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"example.com/abtest/internal/dispatch"
	"example.com/abtest/internal/domain"
)

// Store is the part of the storage port the assignment service needs.
type Store interface {
	FindAssignment(ctx context.Context, userToken string) (domain.Assignment, error)
	InsertAssignmentIfAbsent(ctx context.Context, a domain.Assignment) (domain.Assignment, bool, error)
}

// Cache is an optional read-through layer. Errors from it are logged and the
// store is consulted instead.
type Cache interface {
	Get(ctx context.Context, userToken string) (domain.Variant, bool, error)
	Set(ctx context.Context, userToken string, v domain.Variant) error
}

// Picker draws a variant for a token that has none yet.
type Picker func() domain.Variant

// RandomPicker is an unseeded 50/50 draw.
func RandomPicker() domain.Variant {
	if rand.IntN(2) == 0 {
		return domain.VariantA
	}
	return domain.VariantB
}

type Service struct {
	store Store
	cache Cache
	pick  Picker
	now   func() time.Time
	sink  dispatch.Sink
}

type Option func(*Service)

func WithCache(c Cache) Option              { return func(s *Service) { s.cache = c } }
func WithPicker(p Picker) Option            { return func(s *Service) { s.pick = p } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }
func WithSink(sink dispatch.Sink) Option    { return func(s *Service) { s.sink = sink } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		pick:  RandomPicker,
		now:   func() time.Time { return time.Now().UTC() },
		sink:  dispatch.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Assign returns the variant bound to userToken, creating the binding on first
// contact. When two callers race on a new token, the store keeps the first
// insert and both callers return that variant.
func (s *Service) Assign(ctx context.Context, userToken string) (domain.Variant, error) {
	if v, ok := s.cached(ctx, userToken); ok {
		return v, nil
	}

	existing, err := s.store.FindAssignment(ctx, userToken)
	switch {
	case err == nil:
		s.remember(ctx, userToken, existing.Variant)
		return existing.Variant, nil
	case !errors.Is(err, domain.ErrNotFound):
		return "", err
	}

	candidate := domain.Assignment{UserToken: userToken, Variant: s.pick(), CreatedAt: s.now()}
	stored, created, err := s.store.InsertAssignmentIfAbsent(ctx, candidate)
	if err != nil {
		return "", err
	}
	if created {
		s.sink.Enqueue(dispatch.Fact{
			Type:    dispatch.TypeAssignmentCreated,
			Key:     userToken,
			At:      stored.CreatedAt,
			Payload: stored,
		})
	} else {
		log.Debug().Str("user", userToken).Msg("assignment: concurrent first contact resolved to stored variant")
	}
	s.remember(ctx, userToken, stored.Variant)
	return stored.Variant, nil
}

func (s *Service) cached(ctx context.Context, userToken string) (domain.Variant, bool) {
	if s.cache == nil {
		return "", false
	}
	v, ok, err := s.cache.Get(ctx, userToken)
	if err != nil {
		log.Warn().Err(err).Msg("assignment: cache read failed")
		return "", false
	}
	if !ok || !v.Valid() {
		return "", false
	}
	return v, true
}

func (s *Service) remember(ctx context.Context, userToken string, v domain.Variant) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, userToken, v); err != nil {
		log.Warn().Err(err).Msg("assignment: cache write failed")
	}
}
