package version

import (
	"testing"
)

func TestLoadCurrentProfile(t *testing.T) {
	p, err := LoadCurrentProfile()
	if err != nil {
		t.Fatalf("LoadCurrentProfile() error: %v", err)
	}
	if p.Version != "1.0" {
		t.Errorf("Version = %q, want %q", p.Version, "1.0")
	}
	if p.Description == "" {
		t.Error("Description is empty")
	}
}

func TestLoadProfile_Cached(t *testing.T) {
	a := mustLoadProfile(t, "1.0")
	b := mustLoadProfile(t, "1.0")
	if a != b {
		t.Error("LoadProfile should return the cached manifest")
	}
}

func TestLoadProfile_NotFound(t *testing.T) {
	if _, err := LoadProfile("99.99"); err == nil {
		t.Fatal("LoadProfile(99.99) should return error")
	}
}

func TestAvailableProfiles(t *testing.T) {
	versions, err := AvailableProfiles()
	if err != nil {
		t.Fatalf("AvailableProfiles() error: %v", err)
	}
	if len(versions) == 0 || versions[0] != "1.0" {
		t.Errorf("AvailableProfiles() = %v, want to start with %q", versions, "1.0")
	}
}

func TestProfile10_Kinds(t *testing.T) {
	p := mustLoadProfile(t, "1.0")

	std, ok := p.Kind(KindStandard)
	if !ok {
		t.Fatal("standard kind missing")
	}
	assertNames(t, std.NodeNames(), []string{"State", "Temperature", "TurnOn", "TurnOff"})

	dim, ok := p.Kind(KindDimmable)
	if !ok {
		t.Fatal("dimmable kind missing")
	}
	assertNames(t, dim.NodeNames(), []string{"State", "Temperature", "Brightness", "TurnOn", "TurnOff", "SetBrightness"})

	for _, a := range dim.Attributes {
		if a.Name == "Brightness" && a.Type != "Int32" {
			t.Errorf("Brightness type = %q, want Int32", a.Type)
		}
	}
}

func TestProfile10_SetBrightnessArgument(t *testing.T) {
	dim, _ := mustLoadProfile(t, "1.0").Kind(KindDimmable)

	m, ok := dim.Method("SetBrightness")
	if !ok {
		t.Fatal("SetBrightness missing")
	}
	if len(m.Arguments) != 1 {
		t.Fatalf("SetBrightness has %d arguments, want 1", len(m.Arguments))
	}
	arg := m.Arguments[0]
	if arg.Name != "Level" || arg.Type != "Int32" || arg.Description != "Brightness level (0-100)" {
		t.Errorf("argument = %+v", arg)
	}

	if _, ok := dim.Method("SetColor"); ok {
		t.Error("SetColor should not exist")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(true) != KindDimmable || KindOf(false) != KindStandard {
		t.Error("KindOf mapping wrong")
	}
}

func TestValidateDevice_Complete(t *testing.T) {
	p := mustLoadProfile(t, "1.0")
	result := ValidateDevice(p, DeviceCapabilities{
		ID:    "STD_001",
		Nodes: []string{"State", "Temperature", "TurnOn", "TurnOff"},
	})
	if !result.Valid {
		t.Errorf("expected valid, got errors: %v", result.Errors)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", result.Warnings)
	}
}

func TestValidateDevice_MissingNode(t *testing.T) {
	p := mustLoadProfile(t, "1.0")
	result := ValidateDevice(p, DeviceCapabilities{
		ID:       "PRO_001",
		Dimmable: true,
		Nodes:    []string{"State", "Temperature", "TurnOn", "TurnOff"},
	})
	if result.Valid {
		t.Fatal("expected invalid")
	}
	if len(result.Errors) != 2 {
		t.Errorf("got %d errors, want 2: %v", len(result.Errors), result.Errors)
	}
}

func TestValidateDevice_ExtraNodeWarns(t *testing.T) {
	p := mustLoadProfile(t, "1.0")
	result := ValidateDevice(p, DeviceCapabilities{
		ID:    "STD_002",
		Nodes: []string{"State", "Temperature", "TurnOn", "TurnOff", "Brightness"},
	})
	if !result.Valid {
		t.Errorf("extra nodes should not invalidate: %v", result.Errors)
	}
	if len(result.Warnings) != 1 {
		t.Errorf("got %d warnings, want 1", len(result.Warnings))
	}
}

func mustLoadProfile(t *testing.T, ver string) *Profile {
	t.Helper()
	p, err := LoadProfile(ver)
	if err != nil {
		t.Fatalf("LoadProfile(%q) error: %v", ver, err)
	}
	return p
}

func assertNames(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
