package blackbox

import "errors"

// Sentinel errors for structural and configuration failures. These
// terminate a parse cleanly; they are never raised for recoverable stream
// corruption, which is instead reported through Stats and the onFrameReady
// valid flag.
var (
	ErrBadMagic      = errors.New("blackbox: no log start marker found")
	ErrLogIndexRange = errors.New("blackbox: log index out of range")
	ErrNoIFrames     = errors.New("blackbox: header declares no I-frame fields")
	ErrEmptyMapping  = errors.New("blackbox: empty byte source")

	// ErrMissingMotor0 and ErrMissingGPSHome are fatal configuration errors:
	// a predictor requires a semantic field index the header never supplied.
	ErrMissingMotor0    = errors.New("blackbox: MOTOR_0 predictor used but motor[0] field is absent")
	ErrMissingGPSHome   = errors.New("blackbox: HOME_COORD predictor used but GPS_home field is absent")
	ErrUnknownEncoding  = errors.New("blackbox: unknown field encoding")
	ErrUnknownPredictor = errors.New("blackbox: unknown field predictor")
)
