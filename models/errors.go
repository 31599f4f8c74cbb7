package models

import "errors"

// Error kinds. Stages wrap these so callers can tell failures apart with errors.Is.
var (
	ErrConfig         = errors.New("configuration error")
	ErrLogSource      = errors.New("log source error")
	ErrLineMismatch   = errors.New("line does not match log pattern")
	ErrLineTimeout    = errors.New("log pattern match timed out")
	ErrRefererExtract = errors.New("referer is not a well-formed URL")
	ErrProbe          = errors.New("probe failed")
	ErrEnrichment     = errors.New("domain enrichment failed")
)
