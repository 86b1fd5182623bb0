package composite

import (
	"context"

	"quotewatch/internal/application/port"
	"quotewatch/internal/domain/model"
)

// Repo fans writes out to every sink and returns the first error.
type Repo struct {
	sinks []port.PriceSink
}

func New(sinks ...port.PriceSink) *Repo {
	// nil sinks are allowed; filter in constructor for safety
	out := make([]port.PriceSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &Repo{sinks: out}
}

func (r *Repo) UpsertPrice(ctx context.Context, t model.Tick) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.UpsertPrice(ctx, t); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Repo) InsertAlertEvent(ctx context.Context, ev *model.AlertEvent) error {
	var firstErr error
	for _, s := range r.sinks {
		if err := s.InsertAlertEvent(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ port.PriceSink = (*Repo)(nil)
