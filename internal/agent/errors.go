package agent

import "errors"

var (
	ErrNotSuspended      = errors.New("session is not awaiting review")
	ErrSessionTerminated = errors.New("session already terminated")
	ErrSessionExists     = errors.New("session already exists")
	ErrSessionActive     = errors.New("session is still being driven")
	ErrSessionCancelled  = errors.New("plan cancelled by reviewer")
	ErrIterationLimit    = errors.New("iteration limit reached")
	ErrNoRequest         = errors.New("conversation has no request to plan for")
)
