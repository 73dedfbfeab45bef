package sniffer

import (
	"fmt"

	"github.com/kbukum/dirtytables/database"
	apperrors "github.com/kbukum/dirtytables/errors"
)

// Mode selects how the collector table is stored.
type Mode string

const (
	// ModeTemporary keeps the collector on the current session only.
	ModeTemporary Mode = database.CollectorModeTemporary
	// ModePermanent keeps the collector across sessions.
	ModePermanent Mode = database.CollectorModePermanent
)

// ParseMode parses a configured mode. Empty means ModePermanent.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "":
		return ModePermanent, nil
	case ModeTemporary, ModePermanent:
		return Mode(s), nil
	default:
		return "", apperrors.Configuration(fmt.Sprintf(
			"The dirty table collector mode '%s' is not valid. Use '%s' or '%s'.",
			s, ModeTemporary, ModePermanent))
	}
}

// String returns the configuration tag of the mode.
func (m Mode) String() string { return string(m) }

// Temporary reports whether m is ModeTemporary.
func (m Mode) Temporary() bool { return m == ModeTemporary }
