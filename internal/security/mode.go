// Package security holds the process-wide security posture: the mode
// state machine and the escalation detector that tightens it.
package security

import (
	"strings"
	"sync"
	"time"

	"github.com/aegisgraph/aegisgraph/pkg/logging"
)

// Mode is the operating posture applied to every request at pipeline entry.
type Mode string

const (
	ModeNormal   Mode = "NORMAL"
	ModeStrict   Mode = "STRICT_MODE"
	ModeLockdown Mode = "LOCKDOWN"
)

// ParseMode normalizes a requested mode string. Unrecognized values coerce to
// NORMAL instead of erroring; a typo on the admin surface must never leave the
// controller in an undefined state. This is deliberately the opposite polarity
// of the authorization and safety paths, which fail closed.
func ParseMode(s string) Mode {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case ModeNormal:
		return ModeNormal
	case ModeStrict:
		return ModeStrict
	case ModeLockdown:
		return ModeLockdown
	default:
		return ModeNormal
	}
}

// ModeController owns the single authoritative security mode. All reads and
// writes are serialized under one mutex, which also covers scheduling and
// cancellation of the automatic revert timer so a manual change can never race
// a pending revert.
type ModeController struct {
	mu       sync.Mutex
	mode     Mode
	revert   *time.Timer
	cooldown time.Duration
	logger   *logging.Logger
}

// NewModeController starts in NORMAL. cooldown is how long an automatic
// escalation holds before reverting.
func NewModeController(cooldown time.Duration, logger *logging.Logger) *ModeController {
	if logger == nil {
		logger = logging.Default()
	}
	return &ModeController{
		mode:     ModeNormal,
		cooldown: cooldown,
		logger:   logger,
	}
}

// Mode returns the current mode.
func (c *ModeController) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode applies an operator-requested mode. The requested string is
// normalized via ParseMode. A manual change always takes precedence over a
// scheduled automatic revert, so any pending revert timer is cancelled.
func (c *ModeController) SetMode(requested string) Mode {
	mode := ParseMode(requested)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode = mode
	c.cancelRevertLocked()
	c.logger.Info("security mode set", "mode", string(mode))
	return mode
}

// EscalateToStrict is invoked by the orchestrator after the escalation
// detector fires. It only tightens from NORMAL; an operator-chosen
// STRICT_MODE or LOCKDOWN is never overridden. On escalation a one-shot
// revert is scheduled for after the cooldown.
func (c *ModeController) EscalateToStrict() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeNormal {
		return false
	}

	c.mode = ModeStrict
	c.cancelRevertLocked()
	c.revert = time.AfterFunc(c.cooldown, c.autoRevert)
	c.logger.Warn("self-heal escalation to STRICT_MODE",
		"cooldown", c.cooldown.String(),
	)
	return true
}

// autoRevert runs when the cooldown timer fires. The mode is re-validated at
// fire time: if an operator changed it in the interim the revert is a no-op.
func (c *ModeController) autoRevert() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeStrict {
		return
	}
	c.mode = ModeNormal
	c.logger.Info("security mode auto-reverted to NORMAL after cooldown")
}

func (c *ModeController) cancelRevertLocked() {
	if c.revert != nil {
		c.revert.Stop()
		c.revert = nil
	}
}
