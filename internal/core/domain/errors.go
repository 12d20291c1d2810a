package domain

import "errors"

var (
	// ErrTaskNotFound is returned when no live, cached or archived record
	// exists for a task id.
	ErrTaskNotFound = errors.New("task not found")

	// ErrUnknownAgent is returned when a request names an agent missing from
	// the configured fleet.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrUnknownMode is returned for an execution mode outside
	// parallel/sequential/hybrid.
	ErrUnknownMode = errors.New("unknown execution mode")

	// ErrNoAgents is returned when a request lists no agents to run.
	ErrNoAgents = errors.New("no agents requested")

	// ErrExecutionTimeout means an agent container did not reach a terminal
	// state within the task timeout and was forcibly stopped.
	ErrExecutionTimeout = errors.New("agent execution timed out")

	// ErrAdmissionDenied means the resource manager refused the allocation.
	ErrAdmissionDenied = errors.New("resource admission denied")
)
