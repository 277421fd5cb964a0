package patient

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("patient not found")
	// ErrIntegrity means the patient row exists but one of its name, address
	// or birthdate rows does not.
	ErrIntegrity = errors.New("patient record is incomplete")
	// ErrMalformedPatch wraps update bodies with unknown or mistyped fields.
	ErrMalformedPatch = errors.New("malformed update")
)

// ImmutableFieldError rejects an update that touches a field fixed at creation.
type ImmutableFieldError struct {
	Field string
}

func (e *ImmutableFieldError) Error() string {
	return fmt.Sprintf("field `%s` cannot be updated", e.Field)
}

// ValidationError reports a field whose value is not acceptable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type Name struct {
	First   string `json:"first"`
	Middle  string `json:"middle"`
	Surname string `json:"surname"`
}

type Address struct {
	AddressLines       []string `json:"address_lines"`
	Sublocality        string   `json:"sublocality"`
	Locality           string   `json:"locality"`
	AdministrativeArea string   `json:"administrative_area"`
	PostalCode         string   `json:"postal_code"`
	CountryRegion      string   `json:"country_region"`
}

type Birthdate struct {
	Day   int32 `json:"day"`
	Month int32 `json:"month"`
	Year  int32 `json:"year"`
}

// Patient is the assembled aggregate returned by every operation.
type Patient struct {
	PatientID uuid.UUID `json:"patient_id"`
	CreatedAt time.Time `json:"created_at"`
	Name      Name      `json:"name"`
	Address   Address   `json:"address"`
	Birthdate Birthdate `json:"birthdate"`
}

// MarshalJSON renders created_at as RFC 3339 with second precision.
func (p Patient) MarshalJSON() ([]byte, error) {
	type plain Patient
	return json.Marshal(struct {
		plain
		CreatedAt string `json:"created_at"`
	}{
		plain:     plain(p),
		CreatedAt: p.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// Filter narrows List. Nil fields impose no constraint.
type Filter struct {
	FirstName *string
	Surname   *string
	BirthYear *int32
}

// -- Request bodies --

// CreateRequest is the POST /patient body. Pointer fields distinguish a
// missing value from an empty one.
type CreateRequest struct {
	Name      *NameInput      `json:"name"`
	Address   *AddressInput   `json:"address"`
	BirthDate *BirthdateInput `json:"birth_date"`
}

type NameInput struct {
	First   *string `json:"first"`
	Middle  *string `json:"middle"`
	Surname *string `json:"surname"`
}

type AddressInput struct {
	AddressLines       []string `json:"address_lines"`
	Sublocality        *string  `json:"sublocality"`
	Locality           *string  `json:"locality"`
	AdministrativeArea *string  `json:"administrative_area"`
	PostalCode         *string  `json:"postal_code"`
	CountryRegion      *string  `json:"country_region"`
}

type BirthdateInput struct {
	Day   *int32 `json:"day"`
	Month *int32 `json:"month"`
	Year  *int32 `json:"year"`
}

// MissingFieldError names a required body field that was absent.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field `%s`", e.Field)
}

// ToPatient converts the request into a patient with optional strings
// defaulted to "". Required fields that are absent yield *MissingFieldError.
func (r *CreateRequest) ToPatient() (*Patient, error) {
	switch {
	case r.Name == nil:
		return nil, &MissingFieldError{Field: "name"}
	case r.Address == nil:
		return nil, &MissingFieldError{Field: "address"}
	case r.BirthDate == nil:
		return nil, &MissingFieldError{Field: "birth_date"}
	case r.Name.First == nil:
		return nil, &MissingFieldError{Field: "name.first"}
	case r.Name.Surname == nil:
		return nil, &MissingFieldError{Field: "name.surname"}
	case r.Address.AddressLines == nil:
		return nil, &MissingFieldError{Field: "address.address_lines"}
	case r.Address.CountryRegion == nil:
		return nil, &MissingFieldError{Field: "address.country_region"}
	case r.BirthDate.Day == nil:
		return nil, &MissingFieldError{Field: "birth_date.day"}
	case r.BirthDate.Month == nil:
		return nil, &MissingFieldError{Field: "birth_date.month"}
	case r.BirthDate.Year == nil:
		return nil, &MissingFieldError{Field: "birth_date.year"}
	}

	return &Patient{
		Name: Name{
			First:   *r.Name.First,
			Middle:  deref(r.Name.Middle),
			Surname: *r.Name.Surname,
		},
		Address: Address{
			AddressLines:       r.Address.AddressLines,
			Sublocality:        deref(r.Address.Sublocality),
			Locality:           deref(r.Address.Locality),
			AdministrativeArea: deref(r.Address.AdministrativeArea),
			PostalCode:         deref(r.Address.PostalCode),
			CountryRegion:      *r.Address.CountryRegion,
		},
		Birthdate: Birthdate{
			Day:   *r.BirthDate.Day,
			Month: *r.BirthDate.Month,
			Year:  *r.BirthDate.Year,
		},
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// -- Responses --

type DataResponse struct {
	Data *Patient `json:"data"`
}

type ListResponse struct {
	Patients []*Patient `json:"patients"`
}
