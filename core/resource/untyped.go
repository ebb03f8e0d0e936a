package resource

import (
	"context"

	"github.com/trezcool/masomo-portal/core"
)

// Untyped is the type-erased view of a Manager, for callers handling records as plain values (CLI, exports).
type Untyped interface {
	Name() string
	Label() string
	Items() []interface{}
	ListAny(ctx context.Context) ([]interface{}, error)
	CreateAny(ctx context.Context, payload interface{}) (interface{}, error)
	UpdateAny(ctx context.Context, id core.ID, payload interface{}) (interface{}, error)
	Delete(ctx context.Context, id core.ID) error
}

var _ Untyped = (*Manager[Record])(nil)

func (m *Manager[T]) Items() []interface{} {
	return toAny(m.Snapshot().Items)
}

func (m *Manager[T]) ListAny(ctx context.Context) ([]interface{}, error) {
	items, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	return toAny(items), nil
}

func (m *Manager[T]) CreateAny(ctx context.Context, payload interface{}) (interface{}, error) {
	rec, err := m.Create(ctx, payload)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (m *Manager[T]) UpdateAny(ctx context.Context, id core.ID, payload interface{}) (interface{}, error) {
	rec, err := m.Update(ctx, id, payload)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func toAny[T any](items []T) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
