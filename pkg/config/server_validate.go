package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"github.com/power-warden/powa/internal/power"
)

// Validate checks the exporter listener settings.
func (h *ServerConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	// Addr must be ":port" or "host:port".
	if h.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}
	if _, _, err := net.SplitHostPort(h.Addr); err != nil {
		return fmt.Errorf("server.addr format invalid (expected: :port or host:port), got %s: %w", h.Addr, err)
	}
	return nil
}

// Validate checks the lifecycle settings.
func (d *DaemonConfig) Validate() error {
	if err := valid.Struct(d); err != nil {
		return err
	}
	if !filepath.IsAbs(d.LockFile) {
		return fmt.Errorf("daemon.lock_file must be an absolute path, got %s", d.LockFile)
	}
	if d.GracePeriod > 5*time.Minute {
		return fmt.Errorf("daemon.grace_period must not exceed 5m, got %s", d.GracePeriod)
	}
	return nil
}

// validateDomains rejects entries for domains the daemon does not sample and
// duplicates that differ only in case.
func (c *Config) validateDomains() error {
	seen := map[power.Domain]string{}
	for name, dc := range c.PowerDomains {
		d, err := power.ParseDomain(name)
		if err != nil {
			return fmt.Errorf("power_domain.%s: %w", name, err)
		}
		if prev, ok := seen[d]; ok {
			return fmt.Errorf("power_domain.%s duplicates power_domain.%s", name, prev)
		}
		seen[d] = name

		if err := dc.Validate(); err != nil {
			return fmt.Errorf("power_domain.%s: %w", name, err)
		}
	}
	return nil
}

// Validate checks one domain entry. Unset values mean "use the default".
func (d *DomainConfig) Validate() error {
	if err := valid.Struct(d); err != nil {
		return err
	}
	if d.PollingInterval != nil && *d.PollingInterval < 0.01 {
		return fmt.Errorf("polling_interval must be at least 0.01 seconds, got %g", *d.PollingInterval)
	}
	return nil
}
