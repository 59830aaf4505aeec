package diagnostics

import "context"

// Recorder appends adapt-step and transfer-step summaries to durable
// storage. Nothing in this core reads a Recorder back; it exists purely
// for offline inspection by gridctl inspect or an external dashboard.
type Recorder interface {
	RecordAdaptStep(ctx context.Context, summary AdaptStepSummary) error
	RecordXferStep(ctx context.Context, summary XferStepSummary) error
}
