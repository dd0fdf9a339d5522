package reconcilers

import "time"

// Config tunes the poll loop and the upgrade verifier.
type Config struct {
	// PollInterval is the pause between status polls. Zero polls back to back.
	PollInterval time.Duration
	// UpgradePollInterval is the pause between condition checks. Zero falls back to PollInterval.
	UpgradePollInterval time.Duration
	// UpgradeTimeout bounds the verifier. Zero disables the bound.
	UpgradeTimeout time.Duration
	// MaxUpgradeChecks bounds the number of condition reads. Zero disables the bound.
	MaxUpgradeChecks int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		PollInterval:        30 * time.Second,
		UpgradePollInterval: 10 * time.Second,
		UpgradeTimeout:      30 * time.Minute,
	}
}

func (c Config) upgradeInterval() time.Duration {
	if c.UpgradePollInterval > 0 {
		return c.UpgradePollInterval
	}
	return c.PollInterval
}
