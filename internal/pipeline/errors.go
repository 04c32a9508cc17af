package pipeline

import "fmt"

// Stage names, in execution order.
const (
	StageFetch      = "fetch"
	StageExtract    = "extract"
	StageRewrite    = "rewrite"
	StageSynthesize = "synthesize"
)

// StageError tags an adapter failure with the pipeline stage it occurred in,
// so callers can decide between retrying, prompting for a token refresh, or
// failing the request.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
