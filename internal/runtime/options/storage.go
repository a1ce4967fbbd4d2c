package options

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
)

var (
	ErrUnknownOption    = errors.New("unknown option")
	ErrInvalidValue     = errors.New("invalid option value")
	ErrRestrictedOption = errors.New("restricted option requires restricted options to be enabled")
)

// Storage is the pointer-free option value table. The zero Storage means
// "every option at its default".
type Storage struct {
	values [MaxOptions]uint64
	set    [MaxOptions]bool
}

func (s *Storage) raw(id ID) uint64 {
	if s.set[id] {
		return s.values[id]
	}
	return definitions[id].Default
}

// Bool returns a TypeBool option.
func (s *Storage) Bool(id ID) bool {
	return s.raw(id) != 0
}

// Int returns a TypeInt option.
func (s *Storage) Int(id ID) int64 {
	return int64(s.raw(id))
}

// Unsigned returns a TypeUnsigned option.
func (s *Storage) Unsigned(id ID) uint64 {
	return s.raw(id)
}

// Size returns a TypeSize option in bytes.
func (s *Storage) Size(id ID) uint64 {
	return s.raw(id)
}

// Duration returns a TypeDuration option.
func (s *Storage) Duration(id ID) time.Duration {
	return time.Duration(s.raw(id))
}

// IsDefault reports whether id was never set.
func (s *Storage) IsDefault(id ID) bool {
	return !s.set[id]
}

// SetBool stores a TypeBool option directly; used by code that derives
// options from the platform rather than from user input.
func (s *Storage) SetBool(id ID, v bool) {
	var raw uint64
	if v {
		raw = 1
	}
	s.values[id] = raw
	s.set[id] = true
}

// Reset returns id to its default.
func (s *Storage) Reset(id ID) {
	s.values[id] = 0
	s.set[id] = false
}

// Set parses value for the option called name.
func (s *Storage) Set(name, value string, restrictedEnabled bool) error {
	def, ok := Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}
	if def.Restricted && !restrictedEnabled {
		return fmt.Errorf("%w: %s", ErrRestrictedOption, name)
	}
	raw, err := parse(def.Type, strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%w: %s=%q: %v", ErrInvalidValue, name, value, err)
	}
	s.values[def.ID] = raw
	s.set[def.ID] = true
	return nil
}

// SetOptions applies a whitespace or comma separated list of name=value
// pairs. A bare name sets a boolean option to true. It stops at the first
// error.
func (s *Storage) SetOptions(list string, restrictedEnabled bool) error {
	fields := strings.FieldsFunc(list, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	for _, f := range fields {
		f = strings.TrimPrefix(f, "--")
		name, value, found := strings.Cut(f, "=")
		if !found {
			value = "true"
		}
		if err := s.Set(name, value, restrictedEnabled); err != nil {
			return err
		}
	}
	return nil
}

// Entry is one option as reported by Dump.
type Entry struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Value       string `json:"value"`
	IsDefault   bool   `json:"isDefault"`
	Restricted  bool   `json:"restricted"`
	Description string `json:"description"`
}

// Dump returns every option in table order.
func (s *Storage) Dump() []Entry {
	out := make([]Entry, 0, NumOptions)
	for id := ID(0); id < NumOptions; id++ {
		def := definitions[id]
		out = append(out, Entry{
			Name:        def.Name,
			Type:        def.Type.String(),
			Value:       format(def.Type, s.raw(id)),
			IsDefault:   s.IsDefault(id),
			Restricted:  def.Restricted,
			Description: def.Description,
		})
	}
	return out
}

func parse(t Type, value string) (uint64, error) {
	switch t {
	case TypeBool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			switch strings.ToLower(value) {
			case "yes", "on":
				return 1, nil
			case "no", "off":
				return 0, nil
			}
			return 0, err
		}
		if b {
			return 1, nil
		}
		return 0, nil
	case TypeInt:
		v, err := strconv.ParseInt(value, 0, 64)
		return uint64(v), err
	case TypeUnsigned:
		return strconv.ParseUint(value, 0, 64)
	case TypeSize:
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return v, nil
		}
		v, err := units.RAMInBytes(value)
		if err != nil {
			return 0, err
		}
		if v < 0 {
			return 0, fmt.Errorf("negative size %d", v)
		}
		return uint64(v), nil
	case TypeDuration:
		if v, err := strconv.ParseUint(value, 10, 64); err == nil {
			return uint64(time.Duration(v) * time.Millisecond), nil
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, err
		}
		if d < 0 {
			return 0, fmt.Errorf("negative duration %s", d)
		}
		return uint64(d), nil
	default:
		return 0, fmt.Errorf("unsupported type %s", t)
	}
}

func format(t Type, raw uint64) string {
	switch t {
	case TypeBool:
		return strconv.FormatBool(raw != 0)
	case TypeInt:
		return strconv.FormatInt(int64(raw), 10)
	case TypeSize:
		return units.BytesSize(float64(raw))
	case TypeDuration:
		return time.Duration(raw).String()
	default:
		return strconv.FormatUint(raw, 10)
	}
}
