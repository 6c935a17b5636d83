package consumer

import (
	"context"
	"errors"

	"example.com/stravasync/internal/cache"
	"example.com/stravasync/internal/events"
)

// InvalidationHandler drops cached per-user views when their activities change.
type InvalidationHandler struct {
	invalidator cache.Invalidator
}

// NewInvalidationHandler constructs an InvalidationHandler.
func NewInvalidationHandler(inv cache.Invalidator) *InvalidationHandler {
	return &InvalidationHandler{invalidator: inv}
}

// Handle implements Handler. Unrelated event types are ignored.
func (h *InvalidationHandler) Handle(ctx context.Context, msg Message) error {
	switch msg.EventType {
	case events.TypeActivityImported, events.TypeActivityUpdated:
	default:
		return nil
	}
	if msg.UserID == "" {
		return errors.New("activity event without user id")
	}
	err := h.invalidator.Invalidate(ctx, msg.UserID)
	recordInvalidation(err)
	return err
}

// MultiHandler runs handlers in order and stops at the first failure, leaving
// the record uncommitted for redelivery.
type MultiHandler []Handler

// Handle implements Handler.
func (m MultiHandler) Handle(ctx context.Context, msg Message) error {
	for _, h := range m {
		if err := h.Handle(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}
