package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Validate checks the logging section. An empty Path disables file output;
// otherwise the directory is created when missing.
func (l *ZapLogConfig) Validate() error {
	if err := valid.Struct(l); err != nil {
		return fmt.Errorf("log config invalid: %w", err)
	}

	validLevels := map[string]bool{
		"debug":   true,
		"info":    true,
		"warn":    true,
		"warning": true,
		"error":   true,
	}
	if !validLevels[strings.ToLower(l.Level)] {
		return fmt.Errorf("log.level invalid (valid: debug/info/warning/error), got %s", l.Level)
	}
	if l.Format != "json" && l.Format != "console" {
		return fmt.Errorf("log.format must be 'json' or 'console', got %s", l.Format)
	}
	if l.Path == "" {
		return nil
	}
	abs, err := filepath.Abs(l.Path)
	if err != nil {
		return fmt.Errorf("log.path cannot be resolved, got %s: %w", l.Path, err)
	}
	if err := ensureDir(abs); err != nil {
		return fmt.Errorf("log.path is not a writable directory, got %s: %w", l.Path, err)
	}
	return nil
}

func ensureDir(path string) error {
	stat, err := os.Stat(path)
	if os.IsNotExist(err) {
		return os.MkdirAll(path, 0755)
	}
	if err != nil {
		return err
	}
	if !stat.IsDir() {
		return fmt.Errorf("%s is not a directory", path)
	}
	return nil
}
