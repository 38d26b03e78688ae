package config

import (
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"codeberg.org/mutker/bsec-exporter/internal/errors"
)

type printedConfig struct {
	LogLevel  string           `yaml:"log_level"`
	LogFormat string           `yaml:"log_format"`
	PIDFile   string           `yaml:"pid_file"`
	File      string           `yaml:"config_file,omitempty"`
	Sensor    printedSensor    `yaml:"sensor"`
	BSEC      printedBSEC      `yaml:"bsec"`
	State     printedState     `yaml:"state"`
	Scheduler printedScheduler `yaml:"scheduler"`
	Exporter  printedExporter  `yaml:"exporter"`
	Journal   printedJournal   `yaml:"journal"`
}

type printedSensor struct {
	Device             string  `yaml:"device"`
	Address            string  `yaml:"address"`
	InitialAmbientTemp float64 `yaml:"initial_ambient_temp_celsius"`
	ReadTimeout        string  `yaml:"read_timeout"`
}

type printedBSEC struct {
	Config            string            `yaml:"config"`
	TemperatureOffset float64           `yaml:"temperature_offset_celsius"`
	StateFile         string            `yaml:"state_file"`
	Subscriptions     map[string]string `yaml:"subscriptions"`
	FatalCodes        []int             `yaml:"fatal_codes"`
	RecoverableCodes  []int             `yaml:"recoverable_codes"`
	UnknownCodes      string            `yaml:"unknown_codes"`
}

type printedState struct {
	SaveInterval    string `yaml:"save_interval"`
	SaveEveryCycles uint64 `yaml:"save_every_cycles"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

type printedScheduler struct {
	BackoffInitial   string `yaml:"backoff_initial"`
	BackoffMax       string `yaml:"backoff_max"`
	FailureThreshold int    `yaml:"failure_threshold"`
	LogInterval      string `yaml:"log_interval"`
}

type printedExporter struct {
	ListenAddrs []string `yaml:"listen_addrs"`
	Path        string   `yaml:"path"`
	GracePeriod string   `yaml:"grace_period"`
}

type printedJournal struct {
	Enabled      bool   `yaml:"enabled"`
	DBPath       string `yaml:"db_path"`
	BatchSize    int    `yaml:"batch_size"`
	BatchTimeout string `yaml:"batch_timeout"`
}

// Print writes the effective configuration as YAML. Durations are rendered in
// the same notation the configuration file accepts, and the resolved
// subscription set is shown rather than the raw map.
func (c *Config) Print(w io.Writer) error {
	errFactory := errors.New()

	subs, err := c.Subscriptions()
	if err != nil {
		return err
	}
	subMap := make(map[string]string, len(subs))
	for _, s := range subs {
		subMap[s.Output.String()] = s.Rate.String()
	}

	fatal := sortedCodes(c.BSEC.FatalCodes)
	recoverable := sortedCodes(c.BSEC.RecoverableCodes)

	out := printedConfig{
		LogLevel:  c.LogLevel,
		LogFormat: c.LogFormat,
		PIDFile:   c.PIDFile,
		File:      c.File,
		Sensor: printedSensor{
			Device:             c.Sensor.Device,
			Address:            c.Sensor.Address,
			InitialAmbientTemp: c.Sensor.InitialAmbientTemp,
			ReadTimeout:        c.Sensor.ReadTimeout.String(),
		},
		BSEC: printedBSEC{
			Config:            c.BSEC.Config,
			TemperatureOffset: c.BSEC.TemperatureOffset,
			StateFile:         c.BSEC.StateFile,
			Subscriptions:     subMap,
			FatalCodes:        fatal,
			RecoverableCodes:  recoverable,
			UnknownCodes:      c.BSEC.UnknownCodes,
		},
		State: printedState{
			SaveInterval:    c.State.SaveInterval.String(),
			SaveEveryCycles: c.State.SaveEveryCycles,
			ShutdownTimeout: c.State.ShutdownTimeout.String(),
		},
		Scheduler: printedScheduler{
			BackoffInitial:   c.Scheduler.BackoffInitial.String(),
			BackoffMax:       c.Scheduler.BackoffMax.String(),
			FailureThreshold: c.Scheduler.FailureThreshold,
			LogInterval:      c.Scheduler.LogInterval.String(),
		},
		Exporter: printedExporter{
			ListenAddrs: c.Exporter.ListenAddrs,
			Path:        c.Exporter.Path,
			GracePeriod: c.Exporter.GracePeriod.String(),
		},
		Journal: printedJournal{
			Enabled:      c.Journal.Enabled,
			DBPath:       c.Journal.DBPath,
			BatchSize:    c.Journal.BatchSize,
			BatchTimeout: c.Journal.BatchTimeout.String(),
		},
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := enc.Close(); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func sortedCodes(codes []int) []int {
	out := append([]int{}, codes...)
	sort.Ints(out)
	return out
}
