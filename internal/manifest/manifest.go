// Package manifest handles the TOML evaluation manifest: which libraries
// to evaluate, where their model samples live, and where their inferred
// policies are written.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// DefaultClass is the policy entry the defaults command copies for every
// library when System.DefaultClass is unset.
const DefaultClass = "torch.nn.Module"

// ErrUnknownLibrary is returned by Select for a name the manifest lacks.
var ErrUnknownLibrary = errors.New("unknown library")

// Manifest is an evaluation manifest.
//
//	[system]
//	models_dir = "models"
//	policies_dir = "policies"
//
//	[libraries.flair]
//	model_class = "flair.models.SequenceTagger"
type Manifest struct {
	System    System                    `toml:"system"`
	Libraries map[string]LibrarySetting `toml:"libraries"`

	// Dir is the directory containing the manifest file (set at load time).
	Dir string `toml:"-"`
}

// System holds paths shared by every library. Relative paths resolve
// against the manifest directory.
type System struct {
	ModelsDir     string `toml:"models_dir"`
	PoliciesDir   string `toml:"policies_dir"`
	BaselinesDir  string `toml:"baselines_dir"`
	DefaultPolicy string `toml:"default_policy"`
	DefaultClass  string `toml:"default_class"`
	Workers       int    `toml:"workers"`
}

// LibrarySetting is one [libraries.<name>] table.
type LibrarySetting struct {
	ModelClass  string   `toml:"model_class"`
	Models      string   `toml:"models"`
	Policy      string   `toml:"policy"`
	IgnorePaths []string `toml:"ignore_paths"`
}

// Library is a library setting with every path resolved.
type Library struct {
	Name        string
	ModelClass  string
	ModelsDir   string
	PolicyPath  string
	IgnorePaths []string
}

// Ignored reports whether path, relative to the models directory, falls
// under one of the library's ignore prefixes.
func (l Library) Ignored(path string) bool {
	rel, err := filepath.Rel(l.ModelsDir, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, p := range l.IgnorePaths {
		p = strings.TrimSuffix(filepath.ToSlash(p), "/")
		if rel == p || strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

// Load parses the manifest file at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}
	m, err := Parse(data, dir)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return m, nil
}

// Parse decodes manifest TOML. Relative paths resolve against dir.
// Unknown keys are rejected so a misspelt setting is not silently
// ignored.
func Parse(data []byte, dir string) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	m.Dir = dir

	// Defaults
	if m.System.ModelsDir == "" {
		m.System.ModelsDir = "models"
	}
	if m.System.PoliciesDir == "" {
		m.System.PoliciesDir = "policies"
	}
	if m.System.BaselinesDir == "" {
		m.System.BaselinesDir = "baselines"
	}
	if m.System.DefaultClass == "" {
		m.System.DefaultClass = DefaultClass
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Libraries) == 0 {
		return errors.New("no libraries")
	}
	for _, name := range m.Names() {
		if m.Libraries[name].ModelClass == "" {
			return fmt.Errorf("library %q: model_class is required", name)
		}
	}
	if m.System.Workers < 0 {
		return fmt.Errorf("system.workers must not be negative, got %d", m.System.Workers)
	}
	return nil
}

// Names returns the library names in sorted order.
func (m *Manifest) Names() []string {
	names := make([]string, 0, len(m.Libraries))
	for name := range m.Libraries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Library returns the resolved library called name.
func (m *Manifest) Library(name string) (Library, bool) {
	s, ok := m.Libraries[name]
	if !ok {
		return Library{}, false
	}
	models := s.Models
	if models == "" {
		models = name
	}
	policyPath := s.Policy
	if policyPath == "" {
		policyPath = filepath.Join(m.System.PoliciesDir, name+".json")
	}
	return Library{
		Name:        name,
		ModelClass:  s.ModelClass,
		ModelsDir:   m.resolve(filepath.Join(m.System.ModelsDir, models)),
		PolicyPath:  m.resolve(policyPath),
		IgnorePaths: s.IgnorePaths,
	}, true
}

// Select returns the resolved libraries named in only, or every library
// when only is empty. Order follows Names.
func (m *Manifest) Select(only ...string) ([]Library, error) {
	for _, name := range only {
		if _, ok := m.Libraries[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownLibrary, name)
		}
	}
	var out []Library
	for _, name := range m.Names() {
		if len(only) > 0 && !slices.Contains(only, name) {
			continue
		}
		lib, _ := m.Library(name)
		out = append(out, lib)
	}
	return out, nil
}

// BaselinePath returns where the traced baseline for a library is written.
func (m *Manifest) BaselinePath(name string) string {
	return m.resolve(filepath.Join(m.System.BaselinesDir, name+".json"))
}

// DefaultPolicyPath returns the resolved default policy path, or "" when
// the manifest names none.
func (m *Manifest) DefaultPolicyPath() string {
	if m.System.DefaultPolicy == "" {
		return ""
	}
	return m.resolve(m.System.DefaultPolicy)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
