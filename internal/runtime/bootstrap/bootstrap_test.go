package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/bytecode"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/options"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/region"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/rtconfig"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/structureheap"
	"github.com/GriffinCanCode/AgentOS/jsruntime/internal/runtime/vm"
)

const small = "jitMemoryReservationSize=64KiB structureHeapReservationSize=64KiB"

func noEnv(string) (string, bool) { return "", false }

func envOf(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func newBlock(t *testing.T) *rtconfig.Block {
	t.Helper()
	r, err := region.Reserve()
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Release() })
	return rtconfig.New(r)
}

func start(t *testing.T, s Settings, opts ...Option) (*Runtime, error) {
	t.Helper()
	if s.EnvLookup == nil {
		s.EnvLookup = noEnv
	}
	rt, err := Start(newBlock(t), s, opts...)
	if rt != nil {
		t.Cleanup(func() { _ = rt.Close() })
	}
	return rt, err
}

func TestStartFreezes(t *testing.T) {
	rt, err := start(t, Settings{Options: small})
	require.NoError(t, err)

	c := rt.Config
	assert.Equal(t, rtconfig.Frozen, c.State())
	assert.True(t, rt.Block.IsPermanentlyFrozen())
	assert.False(t, c.RestrictedOptionsEnabled())

	base, size := c.StartOfStructureHeap(), c.SizeOfStructureHeap()
	assert.NotZero(t, base)
	assert.Equal(t, uintptr(64<<10), size)
	assert.True(t, structureheap.Contains(c, base))

	if c.CanUseJIT() {
		require.NotNil(t, rt.Allocator)
		start, end := c.ExecutableMemory()
		assert.Equal(t, uintptr(64<<10), end-start)
	} else {
		assert.Nil(t, rt.Allocator)
	}
	assert.Equal(t, rtconfig.HasPointerAuth(), rt.Pins != nil)
}

func TestStartTesting(t *testing.T) {
	rt, err := start(t, Settings{Testing: true, Options: small + " validateDispatchTables=true useDollarVM=true"})
	require.NoError(t, err)

	c := rt.Config
	assert.Equal(t, rtconfig.Finalized, c.State())
	assert.False(t, rt.Block.IsPermanentlyFrozen())
	assert.True(t, c.RestrictedOptionsEnabled())
	assert.True(t, c.Options().Bool(options.UseDollarVM))
}

func TestStartRestrictedOptionsStillFreezes(t *testing.T) {
	rt, err := start(t, Settings{RestrictedOptions: true, Options: small})
	require.NoError(t, err)

	assert.Equal(t, rtconfig.Frozen, rt.Config.State())
	require.NoError(t, rt.Block.MutateForTesting(func(b *rtconfig.Builder) {
		b.DisallowVMCreation()
	}))
	assert.Equal(t, rtconfig.Frozen, rt.Config.State())
	assert.False(t, rt.Config.CanCreateVM())
}

func TestRestrictedOptionRejected(t *testing.T) {
	_, err := start(t, Settings{Options: "useDollarVM=true"})
	require.Error(t, err)
	assert.ErrorIs(t, err, options.ErrRestrictedOption)
}

func TestOptionPrecedence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "options.yaml")
	require.NoError(t, os.WriteFile(file, []byte("maxCallStackDepth: 100\n"), 0o600))
	env := envOf(map[string]string{"JSC_maxCallStackDepth": "200"})

	tests := []struct {
		name     string
		settings Settings
		want     uint64
	}{
		{"default", Settings{}, 1024},
		{"file", Settings{OptionsFile: file}, 100},
		{"env over file", Settings{OptionsFile: file, EnvLookup: env}, 200},
		{"flag over env", Settings{OptionsFile: file, EnvLookup: env, Options: "maxCallStackDepth=300"}, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.settings.Options += " " + small
			rt, err := start(t, tt.settings)
			require.NoError(t, err)
			assert.Equal(t, tt.want, rt.Config.Options().Unsigned(options.MaxCallStackDepth))
		})
	}
}

func TestOptionErrors(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		want     error
	}{
		{"invalid env", Settings{EnvLookup: envOf(map[string]string{"JSC_useJIT": "maybe"})}, options.ErrInvalidValue},
		{"unknown option", Settings{Options: "useWarpDrive=true"}, options.ErrUnknownOption},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := start(t, tt.settings)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := start(t, Settings{OptionsFile: filepath.Join(t.TempDir(), "missing.toml")})
	assert.ErrorContains(t, err, "read options file")
}

func TestJITDisabledByOption(t *testing.T) {
	rt, err := start(t, Settings{Options: "useJIT=false structureHeapReservationSize=64KiB"})
	require.NoError(t, err)
	assert.False(t, rt.Config.CanUseJIT())
	assert.Nil(t, rt.Allocator)
}

func TestMetricsObserveStartup(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)

	_, err := start(t, Settings{Options: small}, WithMetrics(m))
	require.NoError(t, err)

	assert.Equal(t, float64(rtconfig.Frozen), testutil.ToFloat64(m.ConfigState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConfigProtection.WithLabelValues("freeze", "ok")))
	n, err := testutil.GatherAndCount(reg, "jsruntime_startup_phase_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTimeoutCheckRegistered(t *testing.T) {
	check := func(uuid.UUID, time.Duration) bool { return true }
	rt, err := start(t, Settings{Options: small, TimeoutCheckName: "bootstrap.test", TimeoutCheck: check})
	require.NoError(t, err)
	assert.Equal(t, "bootstrap.test", vm.TimeoutCheckName(rt.Config))
}

func TestRuntimeInterpreter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := monitoring.NewMetrics(reg)
	rt, err := start(t, Settings{Options: small}, WithMetrics(m))
	require.NoError(t, err)

	in, err := rt.NewInterpreter()
	require.NoError(t, err)

	var a bytecode.Assembler
	a.Push(6).Push(7).Op(bytecode.OpMul).Op(bytecode.OpEnd)
	code, err := a.Bytes()
	require.NoError(t, err)

	got, err := in.Run(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
	assert.Positive(t, testutil.ToFloat64(m.Dispatches.WithLabelValues("interpreter")))
}

func TestRuntimeVM(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	rt, err := start(t, Settings{Options: small}, WithMetrics(m))
	require.NoError(t, err)

	v, err := rt.NewVM()
	require.NoError(t, err)
	res, err := v.Execute(context.Background(), "2 + 2")
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Value)
	require.NoError(t, v.Close())

	assert.Equal(t, 1.0, testutil.ToFloat64(m.VMsCreated))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.VMsActive))
}
