package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrBotNotFound is returned when a bot configuration cannot be found
	ErrBotNotFound = errors.New("bot configuration not found")

	// ErrDuplicateBotName is returned when another bot already uses the name
	ErrDuplicateBotName = errors.New("bot configuration name already exists")

	// ErrJobNotPending is returned when dispatching a job that is not PENDING
	ErrJobNotPending = errors.New("job is not in PENDING status")

	// ErrJobNotTerminal is returned when deleting a job that is still active
	ErrJobNotTerminal = errors.New("job is not in a terminal status")

	// ErrBotInUse is returned when deleting a bot that jobs still reference
	ErrBotInUse = errors.New("bot configuration is referenced by jobs")

	// ErrStatusConflict is returned when a conditional transition matched no row
	ErrStatusConflict = errors.New("job status changed concurrently")
)
