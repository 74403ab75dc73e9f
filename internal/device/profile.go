package device

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var builtinProfiles embed.FS

// DefaultProfile is the name of the built-in profile used when none is set.
const DefaultProfile = "default"

// Profile describes the packages installed on a simulated handset.
type Profile struct {
	Name     string    `yaml:"name" json:"name"`
	Packages []Package `yaml:"packages" json:"packages"`
}

// ParseProfile parses a YAML device profile.
func ParseProfile(data []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing device profile: %w", err)
	}

	seen := make(map[string]bool, len(p.Packages))
	for i, pkg := range p.Packages {
		if pkg.ID == "" {
			return nil, fmt.Errorf("package %d: id is required", i)
		}
		if seen[pkg.ID] {
			return nil, fmt.Errorf("package %q listed twice", pkg.ID)
		}
		seen[pkg.ID] = true
	}
	return &p, nil
}

// ErrUnknownProfile is returned for a name that is not a built-in profile.
var ErrUnknownProfile = errors.New("unknown device profile")

// BuiltinProfile loads an embedded profile by name. An empty name loads the
// default profile.
func BuiltinProfile(name string) (*Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	if !slices.Contains(BuiltinProfiles(), name) {
		return nil, fmt.Errorf("%w %q (built-in: %s)", ErrUnknownProfile, name, strings.Join(BuiltinProfiles(), ", "))
	}
	data, err := builtinProfiles.ReadFile(path.Join("profiles", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("reading built-in profile %s: %w", name, err)
	}
	return ParseProfile(data)
}

// LoadProfile resolves ref as a built-in profile name and otherwise as a
// YAML file path. An empty ref loads the default profile.
func LoadProfile(ref string) (*Profile, error) {
	p, err := BuiltinProfile(ref)
	if !errors.Is(err, ErrUnknownProfile) {
		return p, err
	}

	data, rerr := os.ReadFile(ref)
	if errors.Is(rerr, fs.ErrNotExist) {
		return nil, err
	}
	if rerr != nil {
		return nil, fmt.Errorf("reading device profile %s: %w", ref, rerr)
	}
	p, err = ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	return p, nil
}

// BuiltinProfiles lists the names of the embedded profiles.
func BuiltinProfiles() []string {
	entries, _ := builtinProfiles.ReadDir("profiles")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}
