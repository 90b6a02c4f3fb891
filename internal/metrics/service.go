package metrics

import (
	"context"

	"golang.org/x/sync/errgroup"

	"example.com/abtest/internal/domain"
)

type Reader interface {
	ListEvents(ctx context.Context) ([]domain.Event, error)
	ListEnrollments(ctx context.Context) ([]domain.Enrollment, error)
}

// Service reads both logs and aggregates them. The two reads are independent,
// so the report may see an enrollment whose exposure committed after the
// event read started.
type Service struct {
	reader  Reader
	catalog []domain.Course
}

func NewService(reader Reader, catalog []domain.Course) *Service {
	return &Service{reader: reader, catalog: catalog}
}

func (s *Service) Report(ctx context.Context) (Report, error) {
	var events []domain.Event
	var enrollments []domain.Enrollment

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		events, err = s.reader.ListEvents(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		enrollments, err = s.reader.ListEnrollments(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	return ComputeReport(events, enrollments, s.catalog), nil
}
