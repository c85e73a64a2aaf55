// Package events fans layout events out to the configured sinks.
package events

import (
	"context"
	"errors"

	"binmap/pkg/domain"
)

// Publisher is satisfied by every event sink.
type Publisher interface {
	Publish(ctx context.Context, event domain.LayoutEvent) error
}

// Multi publishes to every sink and joins their errors. A failing sink does
// not stop delivery to the others.
type Multi []Publisher

// NewMulti drops nil sinks.
func NewMulti(sinks ...Publisher) Multi {
	out := make(Multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Publish implements Publisher.
func (m Multi) Publish(ctx context.Context, event domain.LayoutEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, domain.LayoutEvent) error { return nil }
