package observe

import "errors"

var (
	ErrMissingServiceName     = errors.New("observe: service name is required")
	ErrInvalidSamplePct       = errors.New("observe: sample percentage must be between 0.0 and 1.0")
	ErrInvalidTracingExporter = errors.New("observe: unknown tracing exporter")
	ErrInvalidMetricsExporter = errors.New("observe: unknown metrics exporter")
	ErrInvalidLogLevel        = errors.New("observe: unknown log level")

	// ErrNilObserver is returned by constructors given a nil Observer.
	ErrNilObserver = errors.New("observe: observer is nil")
)

// Sampling bounds for TracingConfig.SamplePct.
const (
	MinSamplePct = 0.0
	MaxSamplePct = 1.0
)

// RedactedFields are log field keys whose values are never written.
// Credentials and candidate contact data are both covered.
var RedactedFields = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"authorization",
	"email",
	"phone",
	"iban",
}
