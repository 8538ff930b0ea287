// Package pulse is the background execution subsystem: persisted async jobs
// (pulse/async) and the progress reporting contract their handlers use.
package pulse

// ProgressEmitter reports progress of a long-running operation. Handlers
// receive one per job; the CLI path passes a no-op.
type ProgressEmitter interface {
	// EmitStage announces the start of a processing stage
	EmitStage(stage string, message string)

	// EmitProgress sets completed out of total units of work
	EmitProgress(current, total int)

	// EmitError records an error during processing
	EmitError(stage string, err error)

	// EmitInfo emits a general informational message
	EmitInfo(message string)
}

// NopEmitter discards progress
type NopEmitter struct{}

func (NopEmitter) EmitStage(string, string) {}
func (NopEmitter) EmitProgress(int, int)    {}
func (NopEmitter) EmitError(string, error)  {}
func (NopEmitter) EmitInfo(string)          {}
