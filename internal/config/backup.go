package config

import (
	"fmt"
	"os"
)

// SaveWithBackup writes data to path, rotating existing backups first so a bad
// save from the dashboard can always be rolled back. Backups are named
// path.bak.1 (newest) through path.bak.N (oldest).
func SaveWithBackup(path string, data []byte, maxBackups int) error {
	if maxBackups < 1 {
		maxBackups = 1
	}

	if _, err := os.Stat(path); err == nil {
		// Shift existing backups up, discarding the oldest.
		oldest := fmt.Sprintf("%s.bak.%d", path, maxBackups)
		_ = os.Remove(oldest)
		for i := maxBackups - 1; i >= 1; i-- {
			from := fmt.Sprintf("%s.bak.%d", path, i)
			to := fmt.Sprintf("%s.bak.%d", path, i+1)
			if _, err := os.Stat(from); err == nil {
				if err := os.Rename(from, to); err != nil {
					return fmt.Errorf("rotate backup %s: %w", from, err)
				}
			}
		}
		current, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read current config: %w", err)
		}
		if err := os.WriteFile(path+".bak.1", current, 0o600); err != nil {
			return fmt.Errorf("write backup: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
