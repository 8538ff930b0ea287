package pipeline

import (
	"time"

	"github.com/teranos/dataq/quality"
	"github.com/teranos/dataq/quality/clean"
	"github.com/teranos/dataq/quality/plan"
)

// Status is the lifecycle state of a dataset
type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Dataset is one uploaded tabular file tracked through the pipeline
type Dataset struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Filename    string    `json:"filename"`
	SizeBytes   int64     `json:"size_bytes"`
	ArtifactRef string    `json:"artifact_ref"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Plan sources recorded alongside the summary
const (
	PlanSourceLLM       = "llm"
	PlanSourceHeuristic = "heuristic"
)

// Report is the quality assessment of one dataset revision, plus whatever
// explain and clean have added since
type Report struct {
	DatasetID          string                  `json:"dataset_id"`
	Revision           int                     `json:"revision"`
	QualityScore       float64                 `json:"quality_score"`
	RowCount           int                     `json:"row_count"`
	ColumnCount        int                     `json:"column_count"`
	Sampled            bool                    `json:"sampled"`
	Columns            []quality.ColumnProfile `json:"columns"`
	Issues             []quality.Issue         `json:"issues"`
	LLMSummary         string                  `json:"llm_summary,omitempty"`
	PlanSource         string                  `json:"plan_source,omitempty"`
	CleaningPlan       []plan.Raw              `json:"cleaning_plan,omitempty"`
	PlanRejection      []plan.Violation        `json:"plan_rejection,omitempty"`
	CleanedArtifactRef string                  `json:"cleaned_artifact_ref,omitempty"`
	CleaningEffects    []clean.Effect          `json:"cleaning_effects,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`
}

// HasPlan reports whether the last explain produced a validated plan
func (r *Report) HasPlan() bool {
	return len(r.CleaningPlan) > 0
}

// CleaningStatus is the state of one clean invocation
type CleaningStatus string

const (
	CleaningPending   CleaningStatus = "pending"
	CleaningRunning   CleaningStatus = "running"
	CleaningCompleted CleaningStatus = "completed"
	CleaningFailed    CleaningStatus = "failed"
)

// CleaningJob records one clean invocation
type CleaningJob struct {
	ID                 string         `json:"id"`
	DatasetID          string         `json:"dataset_id"`
	ReportRevision     int            `json:"report_revision"`
	Status             CleaningStatus `json:"status"`
	CleanedArtifactRef string         `json:"cleaned_artifact_ref,omitempty"`
	RowsBefore         *int           `json:"rows_before,omitempty"`
	RowsAfter          *int           `json:"rows_after,omitempty"`
	CleanedScore       *float64       `json:"cleaned_score,omitempty"`
	Effects            []clean.Effect `json:"effects,omitempty"`
	Error              string         `json:"error,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	CompletedAt        *time.Time     `json:"completed_at,omitempty"`
}

// ProcessPayload is the async job payload for dataset processing
type ProcessPayload struct {
	DatasetID string `json:"dataset_id"`
}

// HandlerName is the async handler that processes datasets
const HandlerName = "dataset.process"
