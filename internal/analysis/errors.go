package analysis

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict signals a (case, version) uniqueness violation; the
	// coordinator re-allocates and retries, callers never see it.
	ErrVersionConflict = errors.New("version number conflict")
	// ErrAnalysisInProgress is the "try later" signal: another worker holds the
	// lock or an active job already exists for the key.
	ErrAnalysisInProgress = errors.New("analysis already in progress")
	ErrCreditsExhausted   = errors.New("analysis credits exhausted")
)

const (
	ErrorCodeValidation        = "VALIDATION_ERROR"
	ErrorCodeLLMTimeout        = "LLM_TIMEOUT"
	ErrorCodeLLMSchemaMismatch = "LLM_SCHEMA_MISMATCH"
	ErrorCodeProvider          = "PROVIDER_ERROR"
	ErrorCodeStorage           = "STORAGE_ERROR"
	ErrorCodeAbandoned         = "JOB_ABANDONED"
	ErrorCodeInternal          = "INTERNAL_ERROR"
)
