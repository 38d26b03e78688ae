package engine

import "codeberg.org/mutker/bsec-exporter/internal/errors"

// Setup loads the configuration file into e and applies the subscriptions.
// At least one subscription must be enabled, otherwise the engine would
// never ask for a sample.
func Setup(e Engine, configPath string, subs []Subscription) error {
	errFactory := errors.New()

	if len(Active(subs)) == 0 {
		return errFactory.New(ErrNoSubscription)
	}

	if configPath != "" {
		blob, err := ReadConfigFile(configPath)
		if err != nil {
			return err
		}
		if err := e.SetConfiguration(blob); err != nil {
			return errFactory.Wrap(ErrConfigure, err)
		}
	}

	if err := e.UpdateSubscription(subs); err != nil {
		return errFactory.Wrap(ErrSubscribe, err)
	}

	return nil
}
