package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/bsec-exporter/internal/config"
	"codeberg.org/mutker/bsec-exporter/internal/engine"
	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"codeberg.org/mutker/bsec-exporter/internal/sensor"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bsec-exporter.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func load(t *testing.T, content string, args ...string) (*config.Config, error) {
	t.Helper()

	return config.Load(
		config.WithConfigFile(writeConfig(t, content)),
		config.WithArgs(args),
	)
}

func TestLoad(t *testing.T) {
	cfg, err := load(t, `
log_level = "debug"
log_format = "json"
pid_file = "/tmp/bsec.pid"

[sensor]
device = "/dev/i2c-3"
address = "secondary"
initial_ambient_temp_celsius = 18.5
read_timeout = "2s"

[bsec]
config = "/opt/bsec/iaq.config"
temperature_offset_celsius = 1.25
state_file = "/tmp/state.bin"
fatal_codes = [-2]
recoverable_codes = [-37]
unknown_codes = "fatal"

[bsec.subscriptions]
iaq = "lp"
raw_gas = "continuous"

[state]
save_interval = "2m"
save_every_cycles = 10
shutdown_timeout = "3s"

[scheduler]
backoff_initial = "500ms"
backoff_max = "30s"
failure_threshold = 3
log_interval = "1m"

[exporter]
listen_addrs = ["0.0.0.0:9118", "[::1]:9118"]
path = "/probe"
grace_period = "4s"

[journal]
enabled = true
db_path = "/tmp/journal.db"
batch_size = 4
batch_timeout = "10s"
`)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "/tmp/bsec.pid", cfg.PIDFile)
	assert.NotEmpty(t, cfg.File)
	assert.False(t, cfg.PrintConfig)

	sens, err := cfg.SensorConfig()
	require.NoError(t, err)
	assert.Equal(t, sensor.Config{Device: "/dev/i2c-3", Address: sensor.AddressSecondary}, sens)

	sched := cfg.SchedulerConfig()
	assert.InDelta(t, 18.5, sched.InitialAmbient, 1e-9)
	assert.InDelta(t, 1.25, sched.HeatOffset, 1e-9)
	assert.Equal(t, 2*time.Second, sched.ReadTimeout)
	assert.Equal(t, 500*time.Millisecond, sched.BackoffInitial)
	assert.Equal(t, 30*time.Second, sched.BackoffMax)
	assert.Equal(t, 3, sched.FailureThreshold)
	assert.Equal(t, time.Minute, sched.LogInterval)

	st := cfg.StateConfig()
	assert.Equal(t, "/tmp/state.bin", st.Path)
	assert.Equal(t, 2*time.Minute, st.SaveInterval)
	assert.Equal(t, uint64(10), st.SaveEveryCycles)
	assert.Equal(t, 3*time.Second, st.ShutdownTimeout)
	assert.Equal(t, st, sched.State)

	exp := cfg.ExporterConfig()
	assert.Equal(t, []string{"0.0.0.0:9118", "[::1]:9118"}, exp.ListenAddrs)
	assert.Equal(t, "/probe", exp.Path)
	assert.Equal(t, 4*time.Second, exp.GracePeriod)

	jrnl := cfg.JournalConfig()
	assert.True(t, jrnl.Enabled)
	assert.Equal(t, "/tmp/journal.db", jrnl.DBPath)
	assert.Equal(t, 4, jrnl.BatchSize)
	assert.Equal(t, 10*time.Second, jrnl.BatchTimeout)

	subs, err := cfg.Subscriptions()
	require.NoError(t, err)
	assert.Equal(t, []engine.Subscription{
		{Output: engine.Iaq, Rate: engine.RateLP},
		{Output: engine.RawGas, Rate: engine.RateContinuous},
	}, subs)

	cl := cfg.Classifier()
	assert.Contains(t, cl.Codes(engine.ClassFatal), -2)
	assert.Contains(t, cl.Codes(engine.ClassRecoverable), -37)
	assert.Equal(t, engine.ClassFatal, cl.Classify(&engine.StatusError{Op: "do_steps", Status: -999}))
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(t, "")
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, config.DefaultLogFormat, cfg.LogFormat)
	assert.Equal(t, config.DefaultPIDFile, cfg.PIDFile)
	assert.Equal(t, config.DefaultBSECConfig, cfg.BSEC.Config)

	sens, err := cfg.SensorConfig()
	require.NoError(t, err)
	assert.Equal(t, sensor.AddressPrimary, sens.Address)

	sched := cfg.SchedulerConfig()
	assert.InDelta(t, 20.0, sched.InitialAmbient, 1e-9)
	assert.Equal(t, 5*time.Second, sched.ReadTimeout)
	assert.Equal(t, time.Second, sched.BackoffInitial)
	assert.Equal(t, 60*time.Second, sched.BackoffMax)
	assert.Equal(t, 5, sched.FailureThreshold)
	assert.Equal(t, 30*time.Second, sched.LogInterval)
	assert.Equal(t, 60*time.Second, sched.State.SaveInterval)
	assert.Equal(t, uint64(0), sched.State.SaveEveryCycles)
	assert.Equal(t, 5*time.Second, sched.State.ShutdownTimeout)
	assert.Equal(t, "/var/lib/bsec-exporter/bsec-state.bin", sched.State.Path)

	exp := cfg.ExporterConfig()
	assert.Equal(t, []string{"localhost:3953"}, exp.ListenAddrs)
	assert.Equal(t, "/metrics", exp.Path)
	assert.Equal(t, 10*time.Second, exp.GracePeriod)

	assert.False(t, cfg.JournalConfig().Enabled)

	subs, err := cfg.Subscriptions()
	require.NoError(t, err)
	assert.Equal(t, engine.DefaultSubscriptions(), subs)
}

func TestLoadFromEnvironmentPointer(t *testing.T) {
	path := writeConfig(t, `
[exporter]
path = "/from-file"
`)
	t.Setenv("BSEC_EXPORTER_CONFIG", path)

	cfg, err := config.Load(config.WithArgs(nil))
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)
	assert.Equal(t, "/from-file", cfg.Exporter.Path)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("BSEC_EXPORTER_EXPORTER_PATH", "/from-env")
	t.Setenv("BSEC_EXPORTER_SCHEDULER_FAILURE_THRESHOLD", "9")

	cfg, err := load(t, `
[exporter]
path = "/from-file"
`)
	require.NoError(t, err)
	assert.Equal(t, "/from-env", cfg.Exporter.Path)
	assert.Equal(t, 9, cfg.Scheduler.FailureThreshold)
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	_, err := load(t, `
This is not a valid TOML file
`)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig), "got %v", err)
}

func TestExplicitConfigFileMustExist(t *testing.T) {
	_, err := config.Load(
		config.WithConfigFile(filepath.Join(t.TempDir(), "missing.toml")),
		config.WithArgs(nil),
	)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrReadConfig))
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := load(t, `log_level = "invalid"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid log level")
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestLogLevelFlag(t *testing.T) {
	cfg, err := load(t, `log_level = "error"`, "--log-level", "debug")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
}

func TestConfigFlag(t *testing.T) {
	path := writeConfig(t, `log_level = "warning"`)

	cfg, err := config.Load(config.WithArgs([]string{"--config", path}))
	require.NoError(t, err)
	assert.Equal(t, "warning", cfg.LogLevel)
	assert.Equal(t, path, cfg.File)
}

func TestUnknownFlag(t *testing.T) {
	_, err := load(t, "", "--no-such-flag")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrBindFlags))
}

func TestInvalidSections(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad address", "[sensor]\naddress = \"tertiary\""},
		{"empty device", "[sensor]\ndevice = \"\""},
		{"bad log format", "log_format = \"xml\""},
		{"no engine config", "[bsec]\nconfig = \"\""},
		{"unknown output", "[bsec.subscriptions]\nozone = \"lp\""},
		{"unknown rate", "[bsec.subscriptions]\niaq = \"hourly\""},
		{"nothing subscribed", "[bsec.subscriptions]\niaq = \"disabled\""},
		{"conflicting overrides", "[bsec]\nfatal_codes = [-2]\nrecoverable_codes = [-2]"},
		{"unknown code class", "[bsec]\nunknown_codes = \"ignore\""},
		{"backoff inverted", "[scheduler]\nbackoff_initial = \"2m\"\nbackoff_max = \"1m\""},
		{"no save trigger", "[state]\nsave_interval = \"0s\"\nsave_every_cycles = 0"},
		{"metrics path at root", "[exporter]\npath = \"/\""},
		{"journal without batch", "[journal]\nenabled = true\nbatch_size = 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.content)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestPrintConfig(t *testing.T) {
	cfg, err := load(t, `
[bsec.subscriptions]
iaq = "lp"
`, "--print-config")
	require.NoError(t, err)
	require.True(t, cfg.PrintConfig)

	var buf bytes.Buffer
	require.NoError(t, cfg.Print(&buf))

	out := buf.String()
	assert.Contains(t, out, "log_level: info")
	assert.Contains(t, out, "read_timeout: 5s")
	assert.Contains(t, out, "save_interval: 1m0s")
	assert.Contains(t, out, "iaq: lp")
	assert.Contains(t, out, "- localhost:3953")
	assert.NotContains(t, out, "raw_gas")
}

func TestLogLevelIsValid(t *testing.T) {
	assert.True(t, config.LogLevelWarning.IsValid())
	assert.False(t, config.LogLevel("trace").IsValid())
	assert.Equal(t, "error", config.LogLevelError.String())
}
