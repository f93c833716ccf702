package variant

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source describes one monitored log file of a variant
type Source struct {
	Path  string `yaml:"path"`
	Delim string `yaml:"delim"` // "colon" or "tab"
}

// Variant contains the static descriptor of one game variant
type Variant struct {
	ID         string   `yaml:"-"` // canonical id, filled from the map key
	Name       string   `yaml:"name"`
	Aliases    []string `yaml:"aliases"`
	Roles      []string `yaml:"roles"`
	Races      []string `yaml:"races"`
	Streaks    bool     `yaml:"streaks"` // whether streaks are tracked for this variant
	Legacy     bool     `yaml:"legacy"`  // legacy xlogfile schema without role/race codes
	Compact    bool     `yaml:"compact"` // special-case variant with shortened announcements
	Xlog       *Source  `yaml:"xlog"`    // completed-game log
	Livelog    *Source  `yaml:"livelog"` // in-progress event log
	DumpLocal  string   `yaml:"dump_local"`  // filesystem template for dump logs
	DumpURL    string   `yaml:"dump_url"`    // public URL template for dump logs
	RemoteURL  string   `yaml:"remote_url"`  // remote-storage fallback URL template
	WhereisDir string   `yaml:"whereis_dir"` // directory of per-player whereis files
	RumorsURL  string   `yaml:"rumors_url"`  // upstream rumor source, informational
}

// Table maps canonical ids to variant descriptors
type Table struct {
	Variants map[string]*Variant `yaml:"variants"`
	Default  string              `yaml:"default"`
}

// Load loads the variant table from a YAML file
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read variant table: %w", err)
	}

	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse variant table: %w", err)
	}

	if t.Variants == nil {
		t.Variants = make(map[string]*Variant)
	}
	for id, v := range t.Variants {
		v.ID = id
	}
	if t.Default == "" {
		for id := range t.Variants {
			t.Default = id
			break
		}
	}

	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("variant table validation failed: %w", err)
	}

	return &t, nil
}

func (t *Table) validate() error {
	seen := make(map[string]string)
	for id, v := range t.Variants {
		for _, name := range append([]string{id}, v.Aliases...) {
			key := strings.ToLower(name)
			if other, ok := seen[key]; ok && other != id {
				return fmt.Errorf("alias %q claimed by both %q and %q", name, other, id)
			}
			seen[key] = id
		}
		if v.Xlog != nil && v.Xlog.Path == "" {
			return fmt.Errorf("variant %q: xlog path is empty", id)
		}
	}
	if t.Default != "" {
		if _, ok := t.Variants[t.Default]; !ok {
			return fmt.Errorf("default variant %q not in table", t.Default)
		}
	}
	return nil
}

// Resolve looks up a variant by canonical id or alias, case-insensitively.
func (t *Table) Resolve(name string) (*Variant, bool) {
	for id, v := range t.Variants {
		if strings.EqualFold(id, name) {
			return v, true
		}
		for _, alias := range v.Aliases {
			if strings.EqualFold(alias, name) {
				return v, true
			}
		}
	}
	return nil, false
}

// Get returns the variant with the given canonical id
func (t *Table) Get(id string) (*Variant, bool) {
	v, ok := t.Variants[id]
	return v, ok
}

// IDs returns all canonical ids, order unspecified
func (t *Table) IDs() []string {
	ids := make([]string, 0, len(t.Variants))
	for id := range t.Variants {
		ids = append(ids, id)
	}
	return ids
}

// Delimiter returns the byte delimiter for a source ("tab" or "colon", default colon)
func (s *Source) Delimiter() byte {
	if s != nil && strings.EqualFold(s.Delim, "tab") {
		return '\t'
	}
	return ':'
}

// HasRole reports whether code is an allowed role code for the variant
func (v *Variant) HasRole(code string) bool {
	return containsFold(v.Roles, code)
}

// HasRace reports whether code is an allowed race code for the variant
func (v *Variant) HasRace(code string) bool {
	return containsFold(v.Races, code)
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
