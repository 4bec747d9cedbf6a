package domain

import (
	"fmt"
	"strings"
)

// Mode controls how much autonomy the engine has.
type Mode string

const (
	ModeManual   Mode = "manual"
	ModeSemiAuto Mode = "semi-auto"
	ModeFullAuto Mode = "full-auto"
)

// ParseMode accepts the canonical names plus underscore spellings.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	switch m {
	case ModeManual, ModeSemiAuto, ModeFullAuto:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q (valid: manual, semi-auto, full-auto)", ErrInvalidMode, s)
}

// Modes lists every mode from least to most autonomous.
func Modes() []Mode {
	return []Mode{ModeManual, ModeSemiAuto, ModeFullAuto}
}
