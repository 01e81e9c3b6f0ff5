package nova

import "fmt"

// ParseErrorKind distinguishes the two ways structured output can be bad.
type ParseErrorKind int

const (
	// MalformedJSON means no JSON object could be decoded from the text.
	MalformedJSON ParseErrorKind = iota
	// SchemaViolation means the JSON decoded but failed role validation.
	SchemaViolation
)

func (k ParseErrorKind) String() string {
	switch k {
	case MalformedJSON:
		return "malformed_json"
	case SchemaViolation:
		return "schema_violation"
	}
	return "unknown"
}

// ParseError is a recoverable structured-output failure. Loops do not
// propagate it to the caller; they feed Feedback() back into the transcript
// and re-enter the same state, bounded by the step cap.
type ParseError struct {
	Kind   ParseErrorKind
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Feedback returns the model-facing corrective text for this failure.
func (e *ParseError) Feedback() string {
	switch e.Kind {
	case MalformedJSON:
		return "Your previous reply was not valid JSON: " + e.Detail +
			"\nReply again with a single valid JSON object and nothing else."
	default:
		return "Your previous reply did not match the required schema: " + e.Detail +
			"\nReply again with a JSON object containing every required field."
	}
}

// SafetyError is fatal to the whole request: the input was classified as
// violating. It is surfaced as an error chunk and never retried.
type SafetyError struct {
	Reason string
}

func (e *SafetyError) Error() string {
	return "safety violation: " + e.Reason
}

// InferenceError is fatal to the current request: the generation backend
// failed or rejected the sampling configuration.
type InferenceError struct {
	RequestID string
	Err       error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed (%s): %v", e.RequestID, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }
