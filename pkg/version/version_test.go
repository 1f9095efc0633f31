package version

import (
	"errors"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    ProtocolVersion
		wantErr bool
	}{
		{input: "1.0", want: ProtocolVersion{1, 0}},
		{input: "1.4", want: ProtocolVersion{1, 4}},
		{input: "12.30", want: ProtocolVersion{12, 30}},
		{input: "", wantErr: true},
		{input: "1", wantErr: true},
		{input: "1.", wantErr: true},
		{input: ".1", wantErr: true},
		{input: "1.0.0", wantErr: true},
		{input: "v1.0", wantErr: true},
		{input: "-1.0", wantErr: true},
		{input: "70000.0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %v, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) returned error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
			if got.String() != tt.input {
				t.Errorf("String() = %q, want %q", got.String(), tt.input)
			}
		})
	}
}

func TestCompatible(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"1.0", "1.0", true},
		{"1.0", "1.9", true},
		{"1.9", "1.0", true},
		{"1.0", "2.0", false},
		{"2.0", "1.0", false},
	}
	for _, tt := range tests {
		if got := MustParse(tt.a).Compatible(MustParse(tt.b)); got != tt.want {
			t.Errorf("%s.Compatible(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestAccepts(t *testing.T) {
	local := MustParse(Current)

	tests := []struct {
		peer    string
		wantErr bool
	}{
		{"1.0", false},
		{"1.7", false},
		{"2.0", true},
		{"0.9", true},
		{"", true},
		{"one.zero", true},
	}

	for _, tt := range tests {
		t.Run(tt.peer, func(t *testing.T) {
			err := local.Accepts(tt.peer)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Accepts(%q) error = %v, wantErr %v", tt.peer, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrIncompatible) {
				t.Errorf("Accepts(%q) error = %v, want ErrIncompatible", tt.peer, err)
			}
		})
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse(\"x\") should panic")
		}
	}()
	MustParse("x")
}
