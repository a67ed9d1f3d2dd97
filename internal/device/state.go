// Package device persists the state a single station keeps for itself: the
// ticket it holds and whether staff unlocked it. Neither value is shared
// with other devices.
package device

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

const defaultStatePath = "~/.config/clinic-queue/device.toml"

// State is the device-local record.
type State struct {
	Ticket          int  `toml:"ticket"`
	StaffAuthorized bool `toml:"staff_authorized"`
}

// DefaultPath returns the default state file path.
func DefaultPath() string {
	return defaultStatePath
}

// Load reads the state file. A missing or unreadable file yields the zero
// state; the values are advisory and a fresh device simply holds no ticket.
func Load(path string) (State, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return State{}, err
	}

	file, err := os.Open(resolved)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[device] open %s: %v", resolved, err)
		}
		return State{}, nil
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		log.Printf("[device] read %s: %v", resolved, err)
		return State{}, nil
	}

	var st State
	if err := toml.Unmarshal(bytes, &st); err != nil {
		log.Printf("[device] parse %s: %v", resolved, err)
		return State{}, nil
	}
	if st.Ticket < 0 {
		st.Ticket = 0
	}
	return st, nil
}

// Save writes the state file, creating directories as needed.
func Save(path string, st State) error {
	resolved, err := resolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	bytes, err := toml.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal device state: %w", err)
	}

	tmp := resolved + ".tmp"
	if err := os.WriteFile(tmp, bytes, 0o600); err != nil {
		return fmt.Errorf("write device state: %w", err)
	}
	if err := os.Rename(tmp, resolved); err != nil {
		return fmt.Errorf("replace device state: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		trimmed = defaultStatePath
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
