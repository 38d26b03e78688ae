package config

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"codeberg.org/mutker/bsec-exporter/internal/engine"
	"codeberg.org/mutker/bsec-exporter/internal/errors"
	"codeberg.org/mutker/bsec-exporter/internal/exporter"
	"codeberg.org/mutker/bsec-exporter/internal/journal"
	"codeberg.org/mutker/bsec-exporter/internal/logger"
	"codeberg.org/mutker/bsec-exporter/internal/scheduler"
	"codeberg.org/mutker/bsec-exporter/internal/sensor"
	"codeberg.org/mutker/bsec-exporter/internal/state"
)

const (
	DefaultConfigFile = "/etc/bsec-exporter/bsec-exporter.toml"
	DefaultEnvPrefix  = "BSEC_EXPORTER"
	DefaultLogLevel   = "info"
	DefaultLogFormat  = logger.FormatConsole
	DefaultPIDFile    = "/run/bsec-exporter.pid"
	DefaultBSECConfig = "/etc/bsec-exporter/bsec.conf"
)

type Config struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	PIDFile   string `mapstructure:"pid_file"`

	Sensor    SensorConfig    `mapstructure:"sensor"`
	BSEC      BSECConfig      `mapstructure:"bsec"`
	State     StateConfig     `mapstructure:"state"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Exporter  ExporterConfig  `mapstructure:"exporter"`
	Journal   JournalConfig   `mapstructure:"journal"`

	// PrintConfig is set by --print-config.
	PrintConfig bool `mapstructure:"-"`
	// File is the configuration file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type SensorConfig struct {
	Device             string        `mapstructure:"device"`
	Address            string        `mapstructure:"address"`
	InitialAmbientTemp float64       `mapstructure:"initial_ambient_temp_celsius"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
}

type BSECConfig struct {
	Config            string  `mapstructure:"config"`
	TemperatureOffset float64 `mapstructure:"temperature_offset_celsius"`
	StateFile         string  `mapstructure:"state_file"`
	// Subscriptions maps an output name to its sample rate. When empty the
	// default subscription set is used.
	Subscriptions    map[string]string `mapstructure:"subscriptions"`
	FatalCodes       []int             `mapstructure:"fatal_codes"`
	RecoverableCodes []int             `mapstructure:"recoverable_codes"`
	// UnknownCodes is the class of negative codes absent from the table.
	UnknownCodes string `mapstructure:"unknown_codes"`
}

type StateConfig struct {
	SaveInterval    time.Duration `mapstructure:"save_interval"`
	SaveEveryCycles uint64        `mapstructure:"save_every_cycles"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SchedulerConfig struct {
	BackoffInitial   time.Duration `mapstructure:"backoff_initial"`
	BackoffMax       time.Duration `mapstructure:"backoff_max"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	LogInterval      time.Duration `mapstructure:"log_interval"`
}

type ExporterConfig struct {
	ListenAddrs []string      `mapstructure:"listen_addrs"`
	Path        string        `mapstructure:"path"`
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

type JournalConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DBPath       string        `mapstructure:"db_path"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

func setDefaults(v *viper.Viper) {
	sens := sensor.DefaultConfig()
	sched := scheduler.DefaultConfig()
	exp := exporter.DefaultConfig()
	jrnl := journal.DefaultConfig()

	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_format", DefaultLogFormat)
	v.SetDefault("pid_file", DefaultPIDFile)

	v.SetDefault("sensor.device", sens.Device)
	v.SetDefault("sensor.address", sens.Address.String())
	v.SetDefault("sensor.initial_ambient_temp_celsius", sched.InitialAmbient)
	v.SetDefault("sensor.read_timeout", sched.ReadTimeout)

	v.SetDefault("bsec.config", DefaultBSECConfig)
	v.SetDefault("bsec.temperature_offset_celsius", sched.HeatOffset)
	v.SetDefault("bsec.state_file", sched.State.Path)
	v.SetDefault("bsec.fatal_codes", []int{})
	v.SetDefault("bsec.recoverable_codes", []int{})
	v.SetDefault("bsec.unknown_codes", engine.ClassRecoverable.String())

	v.SetDefault("state.save_interval", sched.State.SaveInterval)
	v.SetDefault("state.save_every_cycles", sched.State.SaveEveryCycles)
	v.SetDefault("state.shutdown_timeout", sched.State.ShutdownTimeout)

	v.SetDefault("scheduler.backoff_initial", sched.BackoffInitial)
	v.SetDefault("scheduler.backoff_max", sched.BackoffMax)
	v.SetDefault("scheduler.failure_threshold", sched.FailureThreshold)
	v.SetDefault("scheduler.log_interval", sched.LogInterval)

	v.SetDefault("exporter.listen_addrs", exp.ListenAddrs)
	v.SetDefault("exporter.path", exp.Path)
	v.SetDefault("exporter.grace_period", exp.GracePeriod)

	v.SetDefault("journal.enabled", jrnl.Enabled)
	v.SetDefault("journal.db_path", jrnl.DBPath)
	v.SetDefault("journal.batch_size", jrnl.BatchSize)
	v.SetDefault("journal.batch_timeout", jrnl.BatchTimeout)
}

// Load reads the configuration from defaults, the configuration file,
// environment variables and command line flags, in increasing precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{
		envPrefix: DefaultEnvPrefix,
		args:      os.Args[1:],
	}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	flags := pflag.NewFlagSet("bsec-exporter", pflag.ContinueOnError)
	configFlag := flags.String("config", "", "Path to the configuration file")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	printFlag := flags.Bool("print-config", false, "Print the effective configuration and exit")

	if err := flags.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	if err := v.BindPFlag("log_level", flags.Lookup("log-level")); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path, explicit := resolveConfigFile(o, *configFlag)
	file, err := readConfigFile(v, path, explicit)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}
	cfg.PrintConfig = *printFlag
	cfg.File = file

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// resolveConfigFile picks the configuration file: option, then flag, then
// environment, then the default location. Only the default may be absent.
func resolveConfigFile(o options, flagValue string) (string, bool) {
	switch {
	case o.configPath != "":
		return o.configPath, true
	case flagValue != "":
		return flagValue, true
	}

	if env := os.Getenv(o.envPrefix + "_CONFIG"); env != "" {
		return env, true
	}

	return DefaultConfigFile, false
}

func readConfigFile(v *viper.Viper, path string, explicit bool) (string, error) {
	if !explicit {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return "", nil
		}
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return "", errors.New().Wrap(errors.ErrReadConfig, err)
	}

	return path, nil
}

// Validate checks the whole configuration, including every component section.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(strings.ToLower(c.LogLevel)).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.LogFormat != logger.FormatConsole && c.LogFormat != logger.FormatJSON {
		return errFactory.WithData(errors.ErrInvalidConfig, c.LogFormat)
	}
	if c.BSEC.Config == "" {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "bsec.config must name the engine configuration file")
	}

	sens, err := c.SensorConfig()
	if err != nil {
		return err
	}

	checks := []func() error{
		sens.Validate,
		c.SchedulerConfig().Validate,
		c.ExporterConfig().Validate,
		c.JournalConfig().Validate,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	subs, err := c.Subscriptions()
	if err != nil {
		return err
	}
	if len(engine.Active(subs)) == 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "no output is subscribed")
	}

	if _, err := parseClass(c.BSEC.UnknownCodes); err != nil {
		return err
	}
	for _, code := range c.BSEC.FatalCodes {
		for _, other := range c.BSEC.RecoverableCodes {
			if code == other {
				return errFactory.WithData(errors.ErrInvalidConfig, code)
			}
		}
	}

	return nil
}

// Subscriptions resolves the configured output map, falling back to the
// default set when nothing is configured.
func (c *Config) Subscriptions() ([]engine.Subscription, error) {
	if len(c.BSEC.Subscriptions) == 0 {
		return engine.DefaultSubscriptions(), nil
	}

	errFactory := errors.New()
	subs := make([]engine.Subscription, 0, len(c.BSEC.Subscriptions))
	for name, rate := range c.BSEC.Subscriptions {
		kind, err := engine.ParseOutputKind(name)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
		r, err := engine.ParseSampleRate(rate)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
		subs = append(subs, engine.Subscription{Output: kind, Rate: r})
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].Output < subs[j].Output })

	return subs, nil
}

// Classifier returns the default engine error table with the configured
// overrides applied.
func (c *Config) Classifier() *engine.Classifier {
	cl := engine.DefaultClassifier()
	if class, err := parseClass(c.BSEC.UnknownCodes); err == nil {
		cl.SetFallback(class)
	}
	for _, code := range c.BSEC.FatalCodes {
		cl.Set(code, engine.ClassFatal)
	}
	for _, code := range c.BSEC.RecoverableCodes {
		cl.Set(code, engine.ClassRecoverable)
	}

	return cl
}

func parseClass(s string) (engine.Class, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "recoverable":
		return engine.ClassRecoverable, nil
	case "fatal":
		return engine.ClassFatal, nil
	default:
		return engine.ClassRecoverable, errors.New().WithData(errors.ErrInvalidConfig, s)
	}
}

func (c *Config) SensorConfig() (sensor.Config, error) {
	addr, err := sensor.ParseAddress(c.Sensor.Address)
	if err != nil {
		return sensor.Config{}, errors.New().Wrap(errors.ErrInvalidConfig, err)
	}

	return sensor.Config{
		Device:  c.Sensor.Device,
		Address: addr,
	}, nil
}

func (c *Config) StateConfig() state.Config {
	return state.Config{
		Path:            c.BSEC.StateFile,
		SaveInterval:    c.State.SaveInterval,
		SaveEveryCycles: c.State.SaveEveryCycles,
		ShutdownTimeout: c.State.ShutdownTimeout,
	}
}

func (c *Config) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		InitialAmbient:   c.Sensor.InitialAmbientTemp,
		HeatOffset:       c.BSEC.TemperatureOffset,
		ReadTimeout:      c.Sensor.ReadTimeout,
		BackoffInitial:   c.Scheduler.BackoffInitial,
		BackoffMax:       c.Scheduler.BackoffMax,
		FailureThreshold: c.Scheduler.FailureThreshold,
		LogInterval:      c.Scheduler.LogInterval,
		State:            c.StateConfig(),
	}
}

func (c *Config) ExporterConfig() exporter.Config {
	return exporter.Config{
		ListenAddrs: c.Exporter.ListenAddrs,
		Path:        c.Exporter.Path,
		GracePeriod: c.Exporter.GracePeriod,
	}
}

func (c *Config) JournalConfig() journal.Config {
	return journal.Config{
		Enabled:      c.Journal.Enabled,
		DBPath:       c.Journal.DBPath,
		BatchSize:    c.Journal.BatchSize,
		BatchTimeout: c.Journal.BatchTimeout,
	}
}
