package dao

import (
	"context"
)

// Service abstracts record storage keyed by a comparable identifier. The
// review registry is volatile by design; alternative backends only need to
// satisfy this interface.
type Service[K comparable, T any] interface {
	Save(ctx context.Context, t *T) error

	Load(ctx context.Context, id K) (*T, error)

	Delete(ctx context.Context, id K) error

	List(ctx context.Context) ([]*T, error)
}
