package version

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var profileFS embed.FS

// Device kinds described by a profile.
const (
	KindStandard = "standard"
	KindDimmable = "dimmable"
)

// Profile describes the nodes each device kind exposes in a protocol version.
type Profile struct {
	Version     string              `yaml:"version"`
	Description string              `yaml:"description"`
	Kinds       map[string]KindSpec `yaml:"kinds"`
}

// KindSpec lists the attributes and methods of one device kind.
type KindSpec struct {
	Attributes []AttrDef   `yaml:"attributes"`
	Methods    []MethodDef `yaml:"methods"`
}

// AttrDef is a named attribute with its data type name.
type AttrDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// MethodDef is a named method with its input arguments.
type MethodDef struct {
	Name      string   `yaml:"name"`
	Arguments []ArgDef `yaml:"arguments"`
}

// ArgDef is one method input argument.
type ArgDef struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*Profile)
)

// LoadProfile loads the profile of a protocol version (e.g. "1.0").
func LoadProfile(ver string) (*Profile, error) {
	cacheMu.RLock()
	if p, ok := cache[ver]; ok {
		cacheMu.RUnlock()
		return p, nil
	}
	cacheMu.RUnlock()

	data, err := profileFS.ReadFile("profiles/" + ver + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("profile version %q not found: %w", ver, err)
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing profile %q: %w", ver, err)
	}

	cacheMu.Lock()
	cache[ver] = &p
	cacheMu.Unlock()

	return &p, nil
}

// LoadCurrentProfile loads the profile of the current protocol version.
func LoadCurrentProfile() (*Profile, error) {
	return LoadProfile(Current)
}

// AvailableProfiles returns the versions of all embedded profiles.
func AvailableProfiles() ([]string, error) {
	entries, err := profileFS.ReadDir("profiles")
	if err != nil {
		return nil, fmt.Errorf("reading profiles directory: %w", err)
	}

	var versions []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") {
			versions = append(versions, strings.TrimSuffix(name, ".yaml"))
		}
	}
	sort.Strings(versions)
	return versions, nil
}

// KindOf returns the kind name of a device.
func KindOf(dimmable bool) string {
	if dimmable {
		return KindDimmable
	}
	return KindStandard
}

// Kind returns the attributes and methods of a device kind.
func (p *Profile) Kind(name string) (KindSpec, bool) {
	k, ok := p.Kinds[name]
	return k, ok
}

// Method looks up a method of a kind by name.
func (k KindSpec) Method(name string) (MethodDef, bool) {
	for _, m := range k.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodDef{}, false
}

// NodeNames returns the attribute names followed by the method names.
func (k KindSpec) NodeNames() []string {
	out := make([]string, 0, len(k.Attributes)+len(k.Methods))
	for _, a := range k.Attributes {
		out = append(out, a.Name)
	}
	for _, m := range k.Methods {
		out = append(out, m.Name)
	}
	return out
}

// DeviceCapabilities describes what a device actually exposes.
type DeviceCapabilities struct {
	ID       string
	Dimmable bool

	// Nodes are the attribute and method names present on the device.
	Nodes []string
}

// ValidationResult holds the outcome of validating a device against a profile.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ValidateDevice checks a device's nodes against its kind. Missing nodes are
// errors; nodes the kind does not list are warnings.
func ValidateDevice(p *Profile, device DeviceCapabilities) ValidationResult {
	var result ValidationResult

	kindName := KindOf(device.Dimmable)
	kind, ok := p.Kind(kindName)
	if !ok {
		result.Errors = append(result.Errors,
			fmt.Sprintf("profile %s has no %s kind", p.Version, kindName))
		return result
	}

	present := makeSet(device.Nodes)
	expected := kind.NodeNames()
	for _, name := range expected {
		if !present[name] {
			result.Errors = append(result.Errors,
				fmt.Sprintf("device %s missing %s node %s", device.ID, kindName, name))
		}
	}

	known := makeSet(expected)
	for _, name := range device.Nodes {
		if !known[name] {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("device %s exposes %s, not part of the %s kind", device.ID, name, kindName))
		}
	}

	result.Valid = len(result.Errors) == 0
	return result
}

func makeSet(names []string) map[string]bool {
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}
