package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsTerminalPhase(t *testing.T) {
	for _, phase := range []string{PhaseSucceeded, PhaseRolledBack, PhaseFailed} {
		assert.True(t, IsTerminalPhase(phase), phase)
	}
	for _, phase := range []string{
		PhasePending, PhaseDeploying, PhaseAwaitingPropagation,
		PhaseAwaitingApproval, PhaseShifting, PhaseFinalizing, PhaseRollingBack,
	} {
		assert.False(t, IsTerminalPhase(phase), phase)
	}
}

func TestPhaseOrderMonotonic(t *testing.T) {
	forward := []string{
		PhasePending, PhaseDeploying, PhaseAwaitingPropagation,
		PhaseAwaitingApproval, PhaseShifting, PhaseFinalizing, PhaseSucceeded,
	}
	for i := 1; i < len(forward); i++ {
		assert.Less(t, PhaseOrder(forward[i-1]), PhaseOrder(forward[i]))
	}
	assert.Equal(t, -1, PhaseOrder("verifying"))
}

func TestOutcomeToExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, OutcomeToExitCode(OutcomeSucceeded))
	assert.Equal(t, ExitRolledBack, OutcomeToExitCode(OutcomeRolledBack))
	assert.Equal(t, ExitFatal, OutcomeToExitCode(OutcomeFailed))
	assert.Equal(t, ExitFatal, OutcomeToExitCode(OutcomeInProgress))
	assert.Equal(t, ExitFatal, OutcomeToExitCode("unknown"))
}
