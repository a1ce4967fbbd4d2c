package options

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix prefixes option names in the environment, e.g. JSC_useJIT.
const EnvPrefix = "JSC_"

// LoadEnv sets every option that has a prefix+name variable in the
// environment. lookup defaults to os.LookupEnv.
func (s *Storage) LoadEnv(prefix string, lookup func(string) (string, bool), restrictedEnabled bool) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for id := ID(0); id < NumOptions; id++ {
		name := definitions[id].Name
		value, ok := lookup(prefix + name)
		if !ok {
			continue
		}
		if err := s.Set(name, value, restrictedEnabled); err != nil {
			return fmt.Errorf("environment %s%s: %w", prefix, name, err)
		}
	}
	return nil
}

// LoadFile reads a flat name: value map from a .yaml, .yml or .toml file.
func (s *Storage) LoadFile(path string, restrictedEnabled bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read options file: %w", err)
	}

	values := map[string]any{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &values)
	case ".toml":
		err = toml.Unmarshal(data, &values)
	default:
		return fmt.Errorf("options file %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return fmt.Errorf("parse options file %s: %w", path, err)
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.Set(name, fmt.Sprint(values[name]), restrictedEnabled); err != nil {
			return fmt.Errorf("options file %s: %w", path, err)
		}
	}
	return nil
}

// LoadGlob loads every file matching pattern in lexical order, so a
// conf.d/*.yaml layout applies its files predictably. A pattern without
// matches is loaded as a plain path and reports the read error.
func (s *Storage) LoadGlob(pattern string, restrictedEnabled bool) error {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return fmt.Errorf("options glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return s.LoadFile(pattern, restrictedEnabled)
	}
	sort.Strings(matches)
	for _, path := range matches {
		if err := s.LoadFile(path, restrictedEnabled); err != nil {
			return err
		}
	}
	return nil
}
