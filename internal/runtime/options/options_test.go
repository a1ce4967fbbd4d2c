package options

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	var s Storage

	assert.True(t, s.Bool(UseJIT))
	assert.False(t, s.Bool(UseDollarVM))
	assert.Equal(t, uint64(16<<20), s.Size(JITMemoryReservationSize))
	assert.Equal(t, uint64(1024), s.Unsigned(MaxCallStackDepth))
	assert.Equal(t, 5*time.Second, s.Duration(WatchdogTimeout))

	for id := ID(0); id < NumOptions; id++ {
		assert.True(t, s.IsDefault(id), id.String())
	}
}

func TestDefinitionsAreConsistent(t *testing.T) {
	seen := map[string]bool{}
	for i, def := range Definitions() {
		assert.Equal(t, ID(i), def.ID, "definition %s is out of order", def.Name)
		assert.False(t, seen[def.Name], "duplicate option %s", def.Name)
		seen[def.Name] = true
		assert.NotEmpty(t, def.Description)
	}
	_, ok := Lookup("noSuchOption")
	assert.False(t, ok)
}

func TestSet(t *testing.T) {
	tests := []struct {
		name    string
		option  string
		value   string
		check   func(t *testing.T, s *Storage)
		wantErr error
	}{
		{
			name: "bool false", option: "useJIT", value: "false",
			check: func(t *testing.T, s *Storage) { assert.False(t, s.Bool(UseJIT)) },
		},
		{
			name: "bool yes", option: "dumpOptions", value: "yes",
			check: func(t *testing.T, s *Storage) { assert.True(t, s.Bool(DumpOptions)) },
		},
		{
			name: "size with unit", option: "jitMemoryReservationSize", value: "64MiB",
			check: func(t *testing.T, s *Storage) { assert.Equal(t, uint64(64<<20), s.Size(JITMemoryReservationSize)) },
		},
		{
			name: "size in bytes", option: "structureHeapReservationSize", value: "65536",
			check: func(t *testing.T, s *Storage) { assert.Equal(t, uint64(65536), s.Size(StructureHeapReservationSize)) },
		},
		{
			name: "duration", option: "watchdogTimeout", value: "250ms",
			check: func(t *testing.T, s *Storage) { assert.Equal(t, 250*time.Millisecond, s.Duration(WatchdogTimeout)) },
		},
		{
			name: "duration in milliseconds", option: "watchdogTimeout", value: "1500",
			check: func(t *testing.T, s *Storage) { assert.Equal(t, 1500*time.Millisecond, s.Duration(WatchdogTimeout)) },
		},
		{
			name: "unsigned hex", option: "maxCallStackDepth", value: "0x100",
			check: func(t *testing.T, s *Storage) { assert.Equal(t, uint64(256), s.Unsigned(MaxCallStackDepth)) },
		},
		{name: "unknown", option: "bogus", value: "1", wantErr: ErrUnknownOption},
		{name: "bad bool", option: "useJIT", value: "maybe", wantErr: ErrInvalidValue},
		{name: "bad size", option: "jitMemoryReservationSize", value: "lots", wantErr: ErrInvalidValue},
		{name: "negative duration", option: "watchdogTimeout", value: "-1s", wantErr: ErrInvalidValue},
		{name: "restricted", option: "useDollarVM", value: "true", wantErr: ErrRestrictedOption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var s Storage
			err := s.Set(tt.option, tt.value, false)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, &s)
		})
	}
}

func TestRestrictedOptionsWhenEnabled(t *testing.T) {
	var s Storage
	require.NoError(t, s.Set("useDollarVM", "true", true))
	assert.True(t, s.Bool(UseDollarVM))
	assert.False(t, s.IsDefault(UseDollarVM))

	s.Reset(UseDollarVM)
	assert.False(t, s.Bool(UseDollarVM))
	assert.True(t, s.IsDefault(UseDollarVM))
}

func TestSetOptions(t *testing.T) {
	var s Storage
	require.NoError(t, s.SetOptions("--useJIT=false, dumpOptions maxCallStackDepth=12", false))
	assert.False(t, s.Bool(UseJIT))
	assert.True(t, s.Bool(DumpOptions))
	assert.Equal(t, uint64(12), s.Unsigned(MaxCallStackDepth))

	assert.ErrorIs(t, s.SetOptions("useJIT=true validateDispatchTables", false), ErrRestrictedOption)
	assert.True(t, s.Bool(UseJIT), "options before the failing one are applied")
}

func TestLoadEnv(t *testing.T) {
	env := map[string]string{
		"JSC_useJIT":            "0",
		"JSC_watchdogTimeout":   "2s",
		"JSC_unrelatedVariable": "x",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	var s Storage
	require.NoError(t, s.LoadEnv(EnvPrefix, lookup, false))
	assert.False(t, s.Bool(UseJIT))
	assert.Equal(t, 2*time.Second, s.Duration(WatchdogTimeout))
	assert.True(t, s.IsDefault(DumpOptions))

	env["JSC_useDollarVM"] = "1"
	assert.ErrorIs(t, s.LoadEnv(EnvPrefix, lookup, false), ErrRestrictedOption)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "options.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("useJIT: false\nmaxCallStackDepth: 64\njitMemoryReservationSize: 8MiB\n"), 0o600))

	tomlPath := filepath.Join(dir, "options.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("dumpOptions = true\nwatchdogTimeout = \"10s\"\n"), 0o600))

	var s Storage
	require.NoError(t, s.LoadFile(yamlPath, false))
	require.NoError(t, s.LoadFile(tomlPath, false))

	assert.False(t, s.Bool(UseJIT))
	assert.Equal(t, uint64(64), s.Unsigned(MaxCallStackDepth))
	assert.Equal(t, uint64(8<<20), s.Size(JITMemoryReservationSize))
	assert.True(t, s.Bool(DumpOptions))
	assert.Equal(t, 10*time.Second, s.Duration(WatchdogTimeout))

	badPath := filepath.Join(dir, "options.yaml.bak")
	require.NoError(t, os.WriteFile(badPath, []byte("x"), 0o600))
	assert.Error(t, s.LoadFile(badPath, false))

	unknownPath := filepath.Join(dir, "unknown.yml")
	require.NoError(t, os.WriteFile(unknownPath, []byte("nope: 1\n"), 0o600))
	assert.ErrorIs(t, s.LoadFile(unknownPath, false), ErrUnknownOption)

	assert.Error(t, s.LoadFile(filepath.Join(dir, "missing.toml"), false))
}

func TestLoadGlob(t *testing.T) {
	dir := t.TempDir()
	confd := filepath.Join(dir, "conf.d", "jit")
	require.NoError(t, os.MkdirAll(confd, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf.d", "10-base.yaml"), []byte("maxCallStackDepth: 64\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(confd, "20-jit.toml"), []byte("useJIT = false\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conf.d", "30-override.yml"), []byte("maxCallStackDepth: 128\n"), 0o600))

	var s Storage
	require.NoError(t, s.LoadGlob(filepath.Join(dir, "conf.d", "**", "*.{yaml,yml,toml}"), false))
	assert.Equal(t, uint64(128), s.Unsigned(MaxCallStackDepth))
	assert.False(t, s.Bool(UseJIT))

	err := s.LoadGlob(filepath.Join(dir, "missing.yaml"), false)
	assert.ErrorContains(t, err, "read options file")
}

func TestDump(t *testing.T) {
	var s Storage
	require.NoError(t, s.Set("jitMemoryReservationSize", "32MiB", false))

	entries := s.Dump()
	require.Len(t, entries, int(NumOptions))

	e := entries[JITMemoryReservationSize]
	assert.Equal(t, "jitMemoryReservationSize", e.Name)
	assert.Equal(t, "size", e.Type)
	assert.Equal(t, "32MiB", e.Value)
	assert.False(t, e.IsDefault)

	assert.Equal(t, "true", entries[UseJIT].Value)
	assert.Equal(t, "5s", entries[WatchdogTimeout].Value)
	assert.True(t, entries[UseDollarVM].Restricted)
}
