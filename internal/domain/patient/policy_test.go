package patient

import (
	"encoding/json"
	"errors"
	"testing"
)

func mustParsePatch(t *testing.T, body string) *Patch {
	t.Helper()
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		t.Fatalf("bad test body %s: %v", body, err)
	}
	p, err := ParsePatch(raw)
	if err != nil {
		t.Fatalf("unexpected parse error for %s: %v", body, err)
	}
	return p
}

func TestFieldPolicy(t *testing.T) {
	immutable := []string{"name.first", "name.surname", "birthdate", "birthdate.day", "birthdate.month", "birthdate.year", "birth_date.year"}
	for _, f := range immutable {
		if m, ok := FieldMutability(f); !ok || m != Immutable {
			t.Errorf("expected %s to be immutable", f)
		}
	}
	mutable := []string{"name.middle", "address.address_lines", "address.sublocality", "address.locality",
		"address.administrative_area", "address.postal_code", "address.country_region"}
	for _, f := range mutable {
		if m, ok := FieldMutability(f); !ok || m != Mutable {
			t.Errorf("expected %s to be mutable", f)
		}
	}
	if _, ok := FieldMutability("patient_id"); ok {
		t.Error("expected patient_id to be unknown")
	}
}

func TestParsePatch_Paths(t *testing.T) {
	p := mustParsePatch(t, `{"name":{"middle":"Q"},"address":{"locality":"Springfield","postal_code":null}}`)

	want := []string{"address", "address.locality", "address.postal_code", "name", "name.middle"}
	got := p.Paths()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("path %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if p.Middle == nil || *p.Middle != "Q" {
		t.Errorf("expected middle Q, got %v", p.Middle)
	}
	if p.Locality == nil || *p.Locality != "Springfield" {
		t.Errorf("expected locality Springfield, got %v", p.Locality)
	}
	if p.PostalCode != nil {
		t.Error("expected null postal_code to be treated as absent")
	}
	if !p.TouchesName() || !p.TouchesAddress() {
		t.Error("expected both name and address to be touched")
	}
}

func TestParsePatch_Malformed(t *testing.T) {
	bodies := []string{
		`{"nickname":"Jo"}`,
		`{"name":{"nickname":"Jo"}}`,
		`{"name":"John"}`,
		`{"name":{"middle":5}}`,
		`{"address":{"address_lines":"1 Main St"}}`,
		`{"address":{"postal_code":5},"name":{"middle":"Q"}}`,
	}
	for _, body := range bodies {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal([]byte(body), &raw); err != nil {
			t.Fatal(err)
		}
		if _, err := ParsePatch(raw); !errors.Is(err, ErrMalformedPatch) {
			t.Errorf("body %s: expected ErrMalformedPatch, got %v", body, err)
		}
	}
}

func TestParsePatch_ImmutableScalarIsRecorded(t *testing.T) {
	p := mustParsePatch(t, `{"birthdate":"1990-01-01"}`)
	err := CheckMutable(p.Paths())
	var ife *ImmutableFieldError
	if !errors.As(err, &ife) || ife.Field != "birthdate" {
		t.Errorf("expected immutable birthdate, got %v", err)
	}
}

func TestParsePatch_ImmutableReportedBeforeMalformed(t *testing.T) {
	tests := []struct {
		body  string
		field string
	}{
		{`{"address":{"postal_code":5},"name":{"first":"Jane"}}`, "name.first"},
		{`{"address":"nowhere","birthdate":{"year":2000}}`, "birthdate"},
		{`{"birthdate":{"weekday":3}}`, "birthdate"},
		{`{"nickname":"Jo","name":{"surname":"Doe"}}`, "name.surname"},
	}
	for _, tt := range tests {
		var raw map[string]json.RawMessage
		if err := json.Unmarshal([]byte(tt.body), &raw); err != nil {
			t.Fatal(err)
		}
		_, err := ParsePatch(raw)
		var ife *ImmutableFieldError
		if !errors.As(err, &ife) {
			t.Errorf("body %s: expected ImmutableFieldError, got %v", tt.body, err)
			continue
		}
		if ife.Field != tt.field {
			t.Errorf("body %s: expected field %s, got %s", tt.body, tt.field, ife.Field)
		}
	}
}

func TestCheckMutable(t *testing.T) {
	if err := CheckMutable([]string{"name", "name.middle", "address.locality"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	err := CheckMutable([]string{"name", "name.first"})
	var ife *ImmutableFieldError
	if !errors.As(err, &ife) {
		t.Fatalf("expected ImmutableFieldError, got %v", err)
	}
	if ife.Field != "name.first" {
		t.Errorf("expected field name.first, got %s", ife.Field)
	}
	if ife.Error() != "field `name.first` cannot be updated" {
		t.Errorf("unexpected message %q", ife.Error())
	}

	if err := CheckMutable([]string{"unknown"}); !errors.Is(err, ErrMalformedPatch) {
		t.Errorf("expected ErrMalformedPatch, got %v", err)
	}
}

func TestPatch_ApplyLeavesAbsentFields(t *testing.T) {
	pt := samplePatient()
	pt.Address.PostalCode = "99999"
	p := mustParsePatch(t, `{"address":{"locality":"Springfield"}}`)

	p.Apply(pt)
	if pt.Address.Locality != "Springfield" {
		t.Errorf("expected locality applied, got %s", pt.Address.Locality)
	}
	if pt.Address.PostalCode != "99999" || pt.Address.AddressLines[0] != "1 Main St" {
		t.Errorf("expected other fields untouched, got %+v", pt.Address)
	}
	if p.TouchesName() {
		t.Error("expected name untouched")
	}
}

func TestPatch_Empty(t *testing.T) {
	p := mustParsePatch(t, `{}`)
	if len(p.Paths()) != 0 || p.TouchesName() || p.TouchesAddress() {
		t.Errorf("expected empty patch, got %+v", p)
	}
	if err := CheckMutable(p.Paths()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
