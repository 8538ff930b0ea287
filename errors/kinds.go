package errors

// Pipeline error kinds. Stage code marks its failures with one of these so the
// orchestrator and the HTTP layer can classify them with Is.
var (
	// ErrParse: the upload is not decodable as delimited tabular text. Terminal.
	ErrParse = New("parse error")

	// ErrEmptyDataset: the upload has a header but zero data rows. Terminal.
	ErrEmptyDataset = New("empty dataset")

	// ErrJobInProgress: another stage already holds the dataset.
	ErrJobInProgress = New("job in progress")

	// ErrNotReady: explain or clean was requested outside the ready state,
	// or clean was requested without a validated plan.
	ErrNotReady = New("dataset not ready")

	// ErrLLMTimeout: the generation service did not answer in time.
	ErrLLMTimeout = New("llm timeout")

	// ErrLLMUnavailable: the generation service failed or returned an unusable envelope.
	ErrLLMUnavailable = New("llm unavailable")

	// ErrPlanValidation: a proposed cleaning plan failed validation as a whole.
	ErrPlanValidation = New("plan validation failed")

	// ErrCleaningWarning: a single cleaning operation failed at runtime and was skipped.
	ErrCleaningWarning = New("cleaning execution warning")
)

// Kind names are stable strings for API bodies and log fields.
const (
	KindParse          = "parse_error"
	KindEmptyDataset   = "empty_dataset"
	KindJobInProgress  = "job_in_progress"
	KindNotReady       = "not_ready"
	KindLLMTimeout     = "llm_timeout"
	KindLLMUnavailable = "llm_unavailable"
	KindPlanValidation = "plan_validation"
	KindCleaning       = "cleaning_warning"
	KindNotFound       = "not_found"
	KindInvalidRequest = "invalid_request"
	KindUnauthorized   = "unauthorized"
	KindTooLarge       = "too_large"
	KindInternal       = "internal"
)

var kindTable = []struct {
	sentinel error
	kind     string
}{
	{ErrParse, KindParse},
	{ErrEmptyDataset, KindEmptyDataset},
	{ErrJobInProgress, KindJobInProgress},
	{ErrNotReady, KindNotReady},
	{ErrLLMTimeout, KindLLMTimeout},
	{ErrLLMUnavailable, KindLLMUnavailable},
	{ErrPlanValidation, KindPlanValidation},
	{ErrCleaningWarning, KindCleaning},
	{ErrNotFound, KindNotFound},
	{ErrInvalidRequest, KindInvalidRequest},
	{ErrUnauthorized, KindUnauthorized},
	{ErrTooLarge, KindTooLarge},
}

// KindOf returns the kind name of the first sentinel err matches, or
// KindInternal. Returns "" for nil.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindTable {
		if Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

// IsTerminal reports whether err ends a processing run for good: retrying the
// same input cannot succeed.
func IsTerminal(err error) bool {
	return IsAny(err, ErrParse, ErrEmptyDataset)
}

// IsLLMError reports whether err came from the generation service boundary.
func IsLLMError(err error) bool {
	return IsAny(err, ErrLLMTimeout, ErrLLMUnavailable)
}
