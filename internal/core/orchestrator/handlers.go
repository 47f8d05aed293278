package orchestrator

import (
	"context"

	"bluegreen-cd/internal/model"
	"bluegreen-cd/pkg/constants"
)

type Handler interface {
	Handle(ctx context.Context, st *runState) (phase string, updateFunc func(*model.DeploymentAttempt), err error)
}

type HandlerFunc func(ctx context.Context, st *runState) (string, func(*model.DeploymentAttempt), error)

func (h HandlerFunc) Handle(ctx context.Context, st *runState) (string, func(*model.DeploymentAttempt), error) {
	return h(ctx, st)
}

func (o *Orchestrator) registerHandlers() {
	o.handlers[constants.PhasePending] = HandlerFunc(o.HandlePending)
	o.handlers[constants.PhaseDeploying] = HandlerFunc(o.HandleDeploying)
	o.handlers[constants.PhaseAwaitingPropagation] = HandlerFunc(o.HandleAwaitingPropagation)
	o.handlers[constants.PhaseAwaitingApproval] = HandlerFunc(o.HandleAwaitingApproval)
	o.handlers[constants.PhaseShifting] = HandlerFunc(o.HandleShifting)
	o.handlers[constants.PhaseFinalizing] = HandlerFunc(o.HandleFinalizing)
	o.handlers[constants.PhaseRollingBack] = HandlerFunc(o.HandleRollingBack)
}
