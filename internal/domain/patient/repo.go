package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository stores patients and their name, address and birthdate rows.
// Every lookup sees active patients only. Implementations run on the
// transaction carried by ctx when there is one.
type Repository interface {
	// Create inserts the name, address and birthdate rows and then the
	// patient row, filling in p.CreatedAt.
	Create(ctx context.Context, p *Patient) error
	Get(ctx context.Context, id uuid.UUID) (*Patient, error)
	// GetForUpdate is Get with the patient row locked until the
	// surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, f Filter) ([]*Patient, error)
	UpdateName(ctx context.Context, id uuid.UUID, n Name) error
	UpdateAddress(ctx context.Context, id uuid.UUID, a Address) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}
