package patient

import (
	"context"
)

// Repository owns the full set of records. Every mutating call persists the
// whole set before returning.
type Repository interface {
	Load(ctx context.Context) error
	FindByEmail(ctx context.Context, email string) (*Record, error)
	List(ctx context.Context) ([]*Record, error)
	Add(ctx context.Context, r *Record) error
	Update(ctx context.Context, r *Record) error
	Delete(ctx context.Context, email string) error
	Persist(ctx context.Context) error
}
