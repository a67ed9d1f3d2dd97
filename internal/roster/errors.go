package roster

import "errors"

var (
	ErrNameRequired      = errors.New("patient name is required")
	ErrDoctorRequired    = errors.New("doctor name is required")
	ErrPatientNotFound   = errors.New("patient not found")
	ErrNoCurrentPatient  = errors.New("no patient is in progress")
	ErrInvalidTransition = errors.New("invalid status transition")
)
