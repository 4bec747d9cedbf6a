package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")

	ErrEngineKilled       = errors.New("engine killed")
	ErrEnginePaused       = errors.New("engine paused")
	ErrInvalidState       = errors.New("invalid decision state")
	ErrDecisionNotFound   = errors.New("decision not found")
	ErrInvalidOpportunity = errors.New("invalid opportunity")
	ErrInvalidMode        = errors.New("invalid mode")
	ErrInvalidRiskState   = errors.New("invalid risk state")
	ErrExecutionFailed    = errors.New("execution failed")
)
