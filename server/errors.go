package main

import "errors"

var (
	// Protocol anomalies: logged and dropped
	ErrUnknownPlayer = errors.New("unknown player")
	ErrBadMessage    = errors.New("malformed message")
	ErrSlowConsumer  = errors.New("client send buffer full")
	ErrNoChannel     = errors.New("no channel for player")

	// Configuration errors: block the match from starting
	ErrInvalidMap  = errors.New("invalid map")
	ErrMapNotReady = errors.New("map not ready")
	ErrNoSpawn     = errors.New("no spawn point")

	// Capacity errors: answered with GAMEFULL
	ErrGameFull     = errors.New("game full")
	ErrGameNotFound = errors.New("game not found")
	ErrMatchStarted = errors.New("match already started")

	// Invariant violations
	ErrMembership = errors.New("membership mismatch")
)

// ErrorClass is the handling class of an error
type ErrorClass string

const (
	ClassAnomaly   ErrorClass = "anomaly"
	ClassConfig    ErrorClass = "config"
	ClassCapacity  ErrorClass = "capacity"
	ClassInvariant ErrorClass = "invariant"
)

// Classify maps err onto its handling class. Unclassified errors count as
// anomalies.
func Classify(err error) ErrorClass {
	switch {
	case errors.Is(err, ErrInvalidMap), errors.Is(err, ErrMapNotReady), errors.Is(err, ErrNoSpawn):
		return ClassConfig
	case errors.Is(err, ErrGameFull), errors.Is(err, ErrGameNotFound), errors.Is(err, ErrMatchStarted):
		return ClassCapacity
	case errors.Is(err, ErrMembership):
		return ClassInvariant
	}
	return ClassAnomaly
}
