package types

import (
	"errors"
	"math"
	"testing"
)

func TestParseIdentityType(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    IdentityType
		wantErr bool
	}{
		{name: "int", in: 3, want: 3},
		{name: "int64", in: int64(7), want: 7},
		{name: "uint8", in: uint8(2), want: 2},
		{name: "whole float from yaml/json", in: float64(5), want: 5},
		{name: "negative whole float", in: float64(-3), want: -3},
		{name: "fractional float", in: 1.5, wantErr: true},
		{name: "float beyond int", in: 1e300, wantErr: true},
		{name: "float at 2^63", in: float64(1 << 63), wantErr: true},
		{name: "infinity", in: math.Inf(1), wantErr: true},
		{name: "nan", in: math.NaN(), wantErr: true},
		{name: "uint64 beyond int", in: uint64(1 << 63), wantErr: true},
		{name: "uint64 max int", in: uint64(math.MaxInt), want: math.MaxInt},
		{name: "string", in: "1", wantErr: true},
		{name: "bool", in: true, wantErr: true},
		{name: "nil", in: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIdentityType(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrTypesWrongDataType) {
					t.Fatalf("expected ErrTypesWrongDataType, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestParseIdentityTypes(t *testing.T) {
	if _, err := ParseIdentityTypes(nil); !errors.Is(err, ErrTypesArrayEmpty) {
		t.Fatalf("expected ErrTypesArrayEmpty, got %v", err)
	}
	if _, err := ParseIdentityTypes([]any{1, "x"}); !errors.Is(err, ErrTypesWrongDataType) {
		t.Fatalf("expected ErrTypesWrongDataType, got %v", err)
	}
	got, err := ParseIdentityTypes([]any{1, 2})
	if err != nil || len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("unexpected result %v, %v", got, err)
	}
}

func TestStorageType(t *testing.T) {
	for _, name := range []string{"integer", "string", "text"} {
		st, err := ParseStorageType(name)
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		if st.String() != name {
			t.Fatalf("expected %s, got %s", name, st)
		}
	}
	if st, err := ParseStorageType(" TEXT "); err != nil || st != StorageText {
		t.Fatalf("expected case-insensitive match, got %v, %v", st, err)
	}
	if _, err := ParseStorageType("blob"); err == nil {
		t.Fatal("expected error for unknown storage type")
	}
	if got := StorageType(42).String(); got != "StorageType(42)" {
		t.Fatalf("unexpected String(): %s", got)
	}
}

func TestErrorKinds(t *testing.T) {
	var err error = &ColumnError{Kind: ErrColumnDataMissing, Table: "m", Column: "site"}
	if !errors.Is(err, ErrColumnDataMissing) {
		t.Fatal("ColumnError must match its kind")
	}
	var ce *ColumnError
	if !errors.As(err, &ce) || ce.Column != "site" {
		t.Fatalf("expected column site, got %+v", ce)
	}

	err = &TypeError{Kind: ErrTableNotResponsibleForType, Table: "m", Type: 9}
	if !errors.Is(err, ErrTableNotResponsibleForType) {
		t.Fatal("TypeError must match its kind")
	}
	if errors.Is(err, ErrTypeNotFound) {
		t.Fatal("TypeError must not match other kinds")
	}
}
