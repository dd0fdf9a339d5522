// Package config loads process settings from the environment, an optional
// dotenv file and command line flags, in increasing precedence.
//
// Every variable is read with the ACKSTEP_ prefix, e.g. ACKSTEP_POLL_INTERVAL.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/apollo/ackstep/controller/reconcilers"
)

const envPrefix = "ACKSTEP_"

// Config holds the process settings.
type Config struct {
	// Namespace for submitted resources. Empty means the pod namespace.
	Namespace string `env:"NAMESPACE"`
	// FieldOwner is the server-side apply field manager.
	FieldOwner string `env:"FIELD_OWNER" envDefault:"ackstep"`

	PollInterval        time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	UpgradePollInterval time.Duration `env:"UPGRADE_POLL_INTERVAL" envDefault:"10s"`
	UpgradeTimeout      time.Duration `env:"UPGRADE_TIMEOUT" envDefault:"30m"`
	MaxUpgradeChecks    int           `env:"MAX_UPGRADE_CHECKS" envDefault:"0"`

	// Template registry settings.
	TemplateCacheDir string   `env:"TEMPLATE_CACHE_DIR" envDefault:"/var/cache/ackstep/templates"`
	PlainHTTPHosts   []string `env:"OCI_PLAIN_HTTP_HOSTS" envSeparator:","`

	// MetricsBindAddress serves Prometheus metrics; "0" disables the listener.
	MetricsBindAddress string `env:"METRICS_BIND_ADDRESS" envDefault:"0"`
}

// Load reads envFile (or ./.env when empty and present) and then the environment.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return Config{}, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: envPrefix}); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize clamps values that would make the poll loop misbehave.
func (c *Config) Sanitize() {
	if c.PollInterval < 0 {
		c.PollInterval = 0
	}
	if c.UpgradePollInterval < 0 {
		c.UpgradePollInterval = 0
	}
	if c.UpgradeTimeout < 0 {
		c.UpgradeTimeout = 0
	}
	if c.MaxUpgradeChecks < 0 {
		c.MaxUpgradeChecks = 0
	}
	c.Namespace = strings.TrimSpace(c.Namespace)
	if strings.TrimSpace(c.FieldOwner) == "" {
		c.FieldOwner = "ackstep"
	}
}

// Reconciler returns the engine settings.
func (c Config) Reconciler() reconcilers.Config {
	return reconcilers.Config{
		PollInterval:        c.PollInterval,
		UpgradePollInterval: c.UpgradePollInterval,
		UpgradeTimeout:      c.UpgradeTimeout,
		MaxUpgradeChecks:    c.MaxUpgradeChecks,
	}
}

// AddFlags registers flags that override the environment.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("namespace", "", "Namespace for submitted resources (env ACKSTEP_NAMESPACE)")
	fs.String("field-owner", "", "Server-side apply field manager (env ACKSTEP_FIELD_OWNER)")
	fs.Duration("poll-interval", 0, "Pause between job status polls (env ACKSTEP_POLL_INTERVAL, default 30s)")
	fs.Duration("upgrade-poll-interval", 0, "Pause between upgrade condition checks (env ACKSTEP_UPGRADE_POLL_INTERVAL, default 10s)")
	fs.Duration("upgrade-timeout", 0, "Give up waiting for an upgrade after this long, 0 waits forever (env ACKSTEP_UPGRADE_TIMEOUT, default 30m)")
	fs.Int("max-upgrade-checks", 0, "Give up waiting for an upgrade after this many checks, 0 is unbounded (env ACKSTEP_MAX_UPGRADE_CHECKS)")
	fs.String("template-cache-dir", "", "Directory caching pulled templates (env ACKSTEP_TEMPLATE_CACHE_DIR)")
	fs.StringSlice("oci-plain-http-hosts", nil, "Registries reached over plain HTTP, * for all (env ACKSTEP_OCI_PLAIN_HTTP_HOSTS)")
	fs.String("metrics-bind-address", "", `Address serving Prometheus metrics, "0" disables (env ACKSTEP_METRICS_BIND_ADDRESS)`)
}

// ApplyFlags copies every flag that was set explicitly onto c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	var errs []error
	set := func(name string, apply func() error) {
		if f := fs.Lookup(name); f == nil || !f.Changed {
			return
		}
		if err := apply(); err != nil {
			errs = append(errs, fmt.Errorf("--%s: %w", name, err))
		}
	}
	set("namespace", func() (err error) { c.Namespace, err = fs.GetString("namespace"); return })
	set("field-owner", func() (err error) { c.FieldOwner, err = fs.GetString("field-owner"); return })
	set("poll-interval", func() (err error) { c.PollInterval, err = fs.GetDuration("poll-interval"); return })
	set("upgrade-poll-interval", func() (err error) {
		c.UpgradePollInterval, err = fs.GetDuration("upgrade-poll-interval")
		return
	})
	set("upgrade-timeout", func() (err error) { c.UpgradeTimeout, err = fs.GetDuration("upgrade-timeout"); return })
	set("max-upgrade-checks", func() (err error) { c.MaxUpgradeChecks, err = fs.GetInt("max-upgrade-checks"); return })
	set("template-cache-dir", func() (err error) { c.TemplateCacheDir, err = fs.GetString("template-cache-dir"); return })
	set("oci-plain-http-hosts", func() (err error) { c.PlainHTTPHosts, err = fs.GetStringSlice("oci-plain-http-hosts"); return })
	set("metrics-bind-address", func() (err error) {
		c.MetricsBindAddress, err = fs.GetString("metrics-bind-address")
		return
	})
	if err := errors.Join(errs...); err != nil {
		return err
	}
	c.Sanitize()
	return nil
}
