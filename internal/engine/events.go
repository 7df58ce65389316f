package engine

import (
	"context"

	"github.com/opkey-ai/reasoning-engine/pkg/models"
)

// EventEmitter delivers progress events to the client while a
// conversation turn is being processed. Implementations must be safe
// for concurrent use; emission failures are not surfaced to the caller
// since a dropped progress event never aborts planning.
type EventEmitter interface {
	Emit(ctx context.Context, event models.Event)
}

// NopEmitter discards events. Used in tests and batch contexts.
type NopEmitter struct{}

func (NopEmitter) Emit(ctx context.Context, event models.Event) {}

// EmitterFunc adapts a function to EventEmitter.
type EmitterFunc func(ctx context.Context, event models.Event)

func (f EmitterFunc) Emit(ctx context.Context, event models.Event) { f(ctx, event) }
