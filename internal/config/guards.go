package config

import (
	"fmt"
	"time"
)

// Runtime guards. These are deliberately constants, not configuration: the
// agent must never be able to raise its own limits, and no config file can
// override them.
const (
	MaxIterations       = 15
	MaxTokensSession    = 100_000
	TimeoutPerTool      = 30 * time.Second
	TimeoutSession      = 300 * time.Second
	MaxToolOutputChars  = 10_000
	ConfirmationTimeout = 60 * time.Second
)

// VerifyGuards asserts the guard constants still hold their required values.
// Called once at startup; a mismatch means the binary was tampered with or a
// bad patch landed, and the process must not start.
func VerifyGuards() error {
	checks := []struct {
		name string
		ok   bool
	}{
		{"MaxIterations", MaxIterations == 15},
		{"MaxTokensSession", MaxTokensSession == 100_000},
		{"TimeoutPerTool", TimeoutPerTool == 30*time.Second},
		{"TimeoutSession", TimeoutSession == 300*time.Second},
		{"MaxToolOutputChars", MaxToolOutputChars == 10_000},
		{"ConfirmationTimeout", ConfirmationTimeout == 60*time.Second},
	}
	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("guard integrity violation: %s", c.name)
		}
	}
	return nil
}
