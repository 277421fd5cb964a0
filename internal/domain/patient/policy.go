package patient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

type Mutability int

const (
	Immutable Mutability = iota
	Mutable
)

// fieldPolicy is the full set of fields an update body may name. Anything
// not listed is rejected as unknown; anything Immutable is rejected as
// immutable. Both spellings of the birthdate object are accepted so that
// either one is refused with the immutability message.
var fieldPolicy = map[string]Mutability{
	"name":                        Mutable,
	"name.first":                  Immutable,
	"name.middle":                 Mutable,
	"name.surname":                Immutable,
	"address":                     Mutable,
	"address.address_lines":       Mutable,
	"address.sublocality":         Mutable,
	"address.locality":            Mutable,
	"address.administrative_area": Mutable,
	"address.postal_code":         Mutable,
	"address.country_region":      Mutable,
	"birthdate":                   Immutable,
	"birthdate.day":               Immutable,
	"birthdate.month":             Immutable,
	"birthdate.year":              Immutable,
	"birth_date":                  Immutable,
	"birth_date.day":              Immutable,
	"birth_date.month":            Immutable,
	"birth_date.year":             Immutable,
}

// objectFields are the top-level fields whose value is a nested object.
var objectFields = map[string]bool{
	"name":       true,
	"address":    true,
	"birthdate":  true,
	"birth_date": true,
}

// FieldMutability looks up a dotted field path. ok is false for unknown paths.
func FieldMutability(path string) (m Mutability, ok bool) {
	m, ok = fieldPolicy[path]
	return m, ok
}

// CheckMutable returns *ImmutableFieldError for the first immutable path,
// in the order given.
func CheckMutable(paths []string) error {
	for _, p := range paths {
		m, ok := FieldMutability(p)
		if !ok {
			return fmt.Errorf("%w: unknown field `%s`", ErrMalformedPatch, p)
		}
		if m == Immutable {
			return &ImmutableFieldError{Field: p}
		}
	}
	return nil
}

// Patch is a parsed PATCH body. Nil fields are left untouched.
type Patch struct {
	Middle             *string
	AddressLines       *[]string
	Sublocality        *string
	Locality           *string
	AdministrativeArea *string
	PostalCode         *string
	CountryRegion      *string

	// paths lists every field named in the body, sorted.
	paths []string
}

// Paths returns the dotted paths present in the request body.
func (p *Patch) Paths() []string {
	return p.paths
}

func (p *Patch) TouchesName() bool {
	return p.Middle != nil
}

func (p *Patch) TouchesAddress() bool {
	return p.AddressLines != nil || p.Sublocality != nil || p.Locality != nil ||
		p.AdministrativeArea != nil || p.PostalCode != nil || p.CountryRegion != nil
}

// ParsePatch walks an update body two levels deep, recording every field
// path it names and decoding the mutable ones. Unknown fields and values of
// the wrong type are reported wrapped in ErrMalformedPatch, unless the body
// also names an immutable field: that is reported instead, so the 400 always
// names the immutable field. A well-formed body with immutable fields parses;
// CheckMutable rejects it.
func ParsePatch(body map[string]json.RawMessage) (*Patch, error) {
	p := &Patch{}
	var malformed error
	fail := func(err error) {
		if err != nil && malformed == nil {
			malformed = err
		}
	}

	for _, key := range sortedKeys(body) {
		raw := body[key]
		if _, ok := fieldPolicy[key]; !ok {
			fail(fmt.Errorf("%w: unknown field `%s`", ErrMalformedPatch, key))
			continue
		}
		p.paths = append(p.paths, key)
		if !objectFields[key] || isNull(raw) {
			continue
		}

		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err != nil {
			if fieldPolicy[key] == Mutable {
				fail(fmt.Errorf("%w: `%s` must be an object", ErrMalformedPatch, key))
			}
			continue
		}
		for _, sub := range sortedKeys(nested) {
			path := key + "." + sub
			if _, ok := fieldPolicy[path]; !ok {
				fail(fmt.Errorf("%w: unknown field `%s`", ErrMalformedPatch, path))
				continue
			}
			p.paths = append(p.paths, path)
			fail(p.set(path, nested[sub]))
		}
	}
	sort.Strings(p.paths)

	if malformed != nil {
		if err := CheckMutable(p.paths); err != nil {
			return nil, err
		}
		return nil, malformed
	}
	return p, nil
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *Patch) set(path string, raw json.RawMessage) error {
	if m, _ := FieldMutability(path); m == Immutable || isNull(raw) {
		return nil
	}

	if path == "address.address_lines" {
		var lines []string
		if err := json.Unmarshal(raw, &lines); err != nil {
			return fmt.Errorf("%w: `%s` must be an array of strings", ErrMalformedPatch, path)
		}
		if lines == nil {
			lines = []string{}
		}
		p.AddressLines = &lines
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return fmt.Errorf("%w: `%s` must be a string", ErrMalformedPatch, path)
	}
	switch path {
	case "name.middle":
		p.Middle = &s
	case "address.sublocality":
		p.Sublocality = &s
	case "address.locality":
		p.Locality = &s
	case "address.administrative_area":
		p.AdministrativeArea = &s
	case "address.postal_code":
		p.PostalCode = &s
	case "address.country_region":
		p.CountryRegion = &s
	}
	return nil
}

// Validate checks the values of present fields.
func (p *Patch) Validate() error {
	if p.AddressLines != nil && len(*p.AddressLines) == 0 {
		return &ValidationError{Field: "address.address_lines", Reason: "must contain at least one line"}
	}
	if p.CountryRegion != nil && *p.CountryRegion == "" {
		return &ValidationError{Field: "address.country_region", Reason: "must not be empty"}
	}
	return nil
}

// Apply writes the present fields onto pt.
func (p *Patch) Apply(pt *Patient) {
	if p.Middle != nil {
		pt.Name.Middle = *p.Middle
	}
	if p.AddressLines != nil {
		pt.Address.AddressLines = append([]string(nil), (*p.AddressLines)...)
	}
	if p.Sublocality != nil {
		pt.Address.Sublocality = *p.Sublocality
	}
	if p.Locality != nil {
		pt.Address.Locality = *p.Locality
	}
	if p.AdministrativeArea != nil {
		pt.Address.AdministrativeArea = *p.AdministrativeArea
	}
	if p.PostalCode != nil {
		pt.Address.PostalCode = *p.PostalCode
	}
	if p.CountryRegion != nil {
		pt.Address.CountryRegion = *p.CountryRegion
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
