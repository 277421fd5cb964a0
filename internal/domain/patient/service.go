package patient

import (
	"context"

	"github.com/google/uuid"
)

// TxFunc runs fn inside one database transaction, committing when fn
// returns nil and rolling back otherwise.
type TxFunc func(ctx context.Context, fn func(ctx context.Context) error) error

type Service struct {
	repo  Repository
	inTx  TxFunc
	newID func() uuid.UUID
}

// NewService builds the service. A nil inTx runs each operation directly on
// the repository.
func NewService(repo Repository, inTx TxFunc) *Service {
	if inTx == nil {
		inTx = func(ctx context.Context, fn func(ctx context.Context) error) error {
			return fn(ctx)
		}
	}
	return &Service{repo: repo, inTx: inTx, newID: uuid.New}
}

// Create validates p, assigns a fresh v4 patient id and stores the four rows
// in one transaction.
func (s *Service) Create(ctx context.Context, p *Patient) (*Patient, error) {
	if err := validateNew(p); err != nil {
		return nil, err
	}
	p.PatientID = s.newID()

	if err := s.inTx(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, p)
	}); err != nil {
		return nil, err
	}
	return p, nil
}

func validateNew(p *Patient) error {
	switch {
	case p.Name.First == "":
		return &ValidationError{Field: "name.first", Reason: "must not be empty"}
	case p.Name.Surname == "":
		return &ValidationError{Field: "name.surname", Reason: "must not be empty"}
	case len(p.Address.AddressLines) == 0:
		return &ValidationError{Field: "address.address_lines", Reason: "must contain at least one line"}
	case p.Address.CountryRegion == "":
		return &ValidationError{Field: "address.country_region", Reason: "must not be empty"}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Patient, error) {
	return s.repo.List(ctx, f)
}

// Update rejects the whole patch if it names an immutable field, then
// writes the present fields with the patient row locked.
func (s *Service) Update(ctx context.Context, id uuid.UUID, patch *Patch) (*Patient, error) {
	if err := CheckMutable(patch.Paths()); err != nil {
		return nil, err
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	var updated *Patient
	err := s.inTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		patch.Apply(p)
		if patch.TouchesName() {
			if err := s.repo.UpdateName(ctx, id, p.Name); err != nil {
				return err
			}
		}
		if patch.TouchesAddress() {
			if err := s.repo.UpdateAddress(ctx, id, p.Address); err != nil {
				return err
			}
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete marks the patient inactive and returns it as it was before.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*Patient, error) {
	var deleted *Patient
	err := s.inTx(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := s.repo.Deactivate(ctx, id); err != nil {
			return err
		}
		deleted = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}
