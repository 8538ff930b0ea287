package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/dataq/ai/tracker"
	"github.com/teranos/dataq/am"
	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/logger"
	"github.com/teranos/dataq/pulse"
	"github.com/teranos/dataq/pulse/async"
	"github.com/teranos/dataq/quality/clean"
	"github.com/teranos/dataq/quality/explain"
	"github.com/teranos/dataq/quality/plan"
	"github.com/teranos/dataq/quality/profile"
	"github.com/teranos/dataq/quality/score"
	"github.com/teranos/dataq/quality/table"
	"github.com/teranos/dataq/storage"
)

// processingStages is read, profile, score, commit
const processingStages = 4

// InterruptedReason is recorded on datasets found processing with no job behind them
const InterruptedReason = "interrupted"

// Options configures the orchestrator
type Options struct {
	MaxUploadBytes    int64
	AllowedExtensions []string
	SampleRows        int
	Profile           profile.Options
}

// DefaultOptions mirrors the configuration defaults
func DefaultOptions() Options {
	return Options{
		MaxUploadBytes:    25 * 1024 * 1024,
		AllowedExtensions: []string{".csv"},
		SampleRows:        100000,
		Profile:           profile.DefaultOptions(),
	}
}

// OptionsFromConfig builds Options from loaded configuration
func OptionsFromConfig(cfg *am.Config) Options {
	opts := DefaultOptions()
	if cfg.Upload.MaxMB > 0 {
		opts.MaxUploadBytes = cfg.Upload.MaxBytes()
	}
	if len(cfg.Upload.AllowedExtensions) > 0 {
		opts.AllowedExtensions = cfg.Upload.AllowedExtensions
	}
	opts.SampleRows = cfg.Profile.SampleRows
	opts.Profile = profile.OptionsFromConfig(cfg.Profile)
	return opts
}

// Service is the pipeline orchestrator. It owns dataset state: every status
// transition and report write goes through it.
type Service struct {
	store     *Store
	blobs     storage.Store
	queue     *async.Queue
	explainer *explain.Explainer
	events    *Events
	locks     *keyedMutex
	opts      Options
	logger    *zap.SugaredLogger
}

// NewService wires the orchestrator. queue may be nil, which disables async
// processing. A nil explainer runs explain offline.
func NewService(db *sql.DB, blobs storage.Store, queue *async.Queue, explainer *explain.Explainer, opts Options, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if explainer == nil {
		explainer = explain.New(nil, explain.Options{}, log)
	}
	return &Service{
		store:     NewStore(db),
		blobs:     blobs,
		queue:     queue,
		explainer: explainer,
		events:    NewEvents(),
		locks:     newKeyedMutex(),
		opts:      opts,
		logger:    log.Named("pipeline"),
	}
}

func (s *Service) Store() *Store                 { return s.store }
func (s *Service) Events() *Events               { return s.events }
func (s *Service) Explainer() *explain.Explainer { return s.explainer }

// UploadOptions selects what happens after the file is stored
type UploadOptions struct {
	Process bool
	Async   bool
}

// UploadResult is the dataset plus whatever processing produced
type UploadResult struct {
	Dataset *Dataset   `json:"dataset"`
	Report  *Report    `json:"report,omitempty"`
	Job     *async.Job `json:"job,omitempty"`
}

// Upload stores a file and creates its dataset at uploaded. With
// opts.Process it then enters processing, synchronously or as a queued job.
// A processing failure that left the dataset failed is reported through the
// returned dataset, not as an error.
func (s *Service) Upload(ctx context.Context, ownerID, filename string, r io.Reader, opts UploadOptions) (*UploadResult, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, errors.NewInvalidRequestError("filename is required")
	}
	if !s.allowedExtension(filename) {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("unsupported file type: %s", filepath.Ext(filename)),
			"allowed extensions: "+strings.Join(s.opts.AllowedExtensions, ", "))
	}

	id := uuid.NewString()
	lr := &limitReader{r: r, max: s.opts.MaxUploadBytes}
	ref, err := s.blobs.Put(ctx, storage.NamespaceUploads, id+strings.ToLower(filepath.Ext(filename)), lr)
	if lr.exceeded {
		return nil, errors.Wrapf(errors.ErrTooLarge, "file exceeds the %d MB upload limit", s.opts.MaxUploadBytes/(1024*1024))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to store upload %s", filename)
	}

	now := time.Now().UTC()
	d := &Dataset{
		ID:          id,
		OwnerID:     ownerID,
		Filename:    filename,
		SizeBytes:   lr.n,
		ArtifactRef: ref,
		Status:      StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateDataset(ctx, d); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), ref); delErr != nil {
			s.logger.Warnw("Failed to remove orphaned upload", logger.FieldRef, ref, logger.FieldError, delErr)
		}
		return nil, err
	}
	s.logger.Infow("Dataset uploaded",
		logger.FieldDatasetID, id,
		logger.FieldOwnerID, ownerID,
		logger.FieldSize, lr.n,
	)
	s.publishStatus(d)

	result := &UploadResult{Dataset: d}
	if !opts.Process {
		return result, nil
	}

	if opts.Async {
		job, err := s.ProcessAsync(ctx, ownerID, id)
		if err != nil {
			return result, err
		}
		result.Job = job
		result.Dataset.Status = StatusProcessing
		return result, nil
	}

	report, err := s.Process(ctx, ownerID, id)
	if current, getErr := s.store.GetDataset(context.WithoutCancel(ctx), id); getErr == nil {
		result.Dataset = current
	}
	if err != nil && result.Dataset.Status != StatusFailed {
		return result, err
	}
	result.Report = report
	return result, nil
}

func (s *Service) allowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range s.opts.AllowedExtensions {
		if strings.ToLower(allowed) == ext {
			return true
		}
	}
	return false
}

// List returns the owner's datasets, newest first
func (s *Service) List(ctx context.Context, ownerID string) ([]*Dataset, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	return s.store.ListDatasets(ctx, ownerID)
}

// Get returns one of the owner's datasets. Other owners' datasets are not found.
func (s *Service) Get(ctx context.Context, ownerID, id string) (*Dataset, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	d, err := s.store.GetDataset(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.OwnerID != ownerID {
		return nil, errors.NewNotFoundError("dataset not found: %s", id)
	}
	return d, nil
}

// Report returns the current report of one of the owner's datasets
func (s *Service) Report(ctx context.Context, ownerID, id string) (*Report, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.store.GetReport(ctx, id)
}

// Process profiles and scores the dataset while the caller waits
func (s *Service) Process(ctx context.Context, ownerID, id string) (*Report, error) {
	d, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	unlock, ok := s.locks.TryLock(id)
	if !ok {
		return nil, jobInProgress(id)
	}
	defer unlock()

	if err := s.beginProcessing(ctx, d); err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	report, err := s.runProcessing(ctx, d, pulse.NopEmitter{})
	if err != nil {
		s.failProcessing(ctx, d, err)
		return nil, err
	}
	return report, nil
}

// ProcessAsync moves the dataset to processing and queues the job that will
// profile it. The dataset stays processing until the job finishes, which
// blocks every other trigger.
func (s *Service) ProcessAsync(ctx context.Context, ownerID, id string) (*async.Job, error) {
	if s.queue == nil {
		return nil, errors.WithHint(
			errors.NewInvalidRequestError("async processing is not enabled"),
			"run with pulse workers or process synchronously")
	}
	d, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	unlock, ok := s.locks.TryLock(id)
	if !ok {
		return nil, jobInProgress(id)
	}
	defer unlock()

	previous := d.Status
	if err := s.beginProcessing(ctx, d); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(ProcessPayload{DatasetID: id})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode process payload")
	}
	job, err := async.NewJob(HandlerName, id, payload, processingStages)
	if err == nil {
		err = s.queue.Enqueue(job)
	}
	if err != nil {
		if _, revertErr := s.store.TransitionStatus(context.WithoutCancel(ctx), id, previous, StatusProcessing); revertErr != nil {
			s.logger.Errorw("Failed to revert dataset status", logger.FieldDatasetID, id, logger.FieldError, revertErr)
		}
		return nil, err
	}

	s.logger.Infow("Processing queued",
		logger.FieldDatasetID, id,
		logger.FieldJobID, job.ID,
	)
	return job, nil
}

// processJob runs a queued processing job. The job owns the dataset, so it
// waits for the lock instead of rejecting.
func (s *Service) processJob(ctx context.Context, job *async.Job) error {
	var p ProcessPayload
	if err := job.DecodePayload(&p); err != nil {
		return errors.Mark(err, errors.ErrInvalidRequest)
	}
	if p.DatasetID == "" {
		return errors.NewInvalidRequestError("job %s has no dataset_id", job.ID)
	}

	unlock := s.locks.Lock(p.DatasetID)
	defer unlock()

	ctx = context.WithoutCancel(ctx)
	d, err := s.store.GetDataset(ctx, p.DatasetID)
	if err != nil {
		return err
	}
	if d.Status != StatusProcessing {
		if _, err := s.store.TransitionStatus(ctx, d.ID, StatusProcessing, StatusUploaded, StatusReady, StatusFailed); err != nil {
			return err
		}
		d.Status = StatusProcessing
		s.publishStatus(d)
	}

	_, err = s.runProcessing(ctx, d, async.EmitterFromContext(ctx))
	if err != nil {
		if ec := async.ClassifyError(HandlerName, err); !ec.Retryable || job.RetryCount >= async.MaxRetries {
			s.failProcessing(ctx, d, err)
		}
		return err
	}
	return nil
}

func (s *Service) beginProcessing(ctx context.Context, d *Dataset) error {
	ok, err := s.store.TransitionStatus(ctx, d.ID, StatusProcessing, StatusUploaded, StatusReady, StatusFailed)
	if err != nil {
		return err
	}
	if !ok {
		return jobInProgress(d.ID)
	}
	d.Status = StatusProcessing
	d.Error = ""
	s.publishStatus(d)
	return nil
}

// runProcessing is the processing stage shared by sync and async callers
func (s *Service) runProcessing(ctx context.Context, d *Dataset, emit pulse.ProgressEmitter) (*Report, error) {
	start := time.Now()

	emit.EmitStage("read", "Reading "+d.Filename)
	rc, err := s.blobs.Get(ctx, d.ArtifactRef)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open upload of dataset %s", d.ID)
	}
	defer rc.Close()
	emit.EmitProgress(1, processingStages)

	emit.EmitStage("profile", "Profiling columns")
	res, err := profile.Read(rc, s.opts.SampleRows, s.opts.Profile)
	if err != nil {
		return nil, err
	}
	emit.EmitProgress(2, processingStages)

	emit.EmitStage("score", "Scoring")
	qs := score.Score(score.FromColumns(res.RowCount, res.Columns, res.DuplicateRows, res.Issues))
	emit.EmitProgress(3, processingStages)

	emit.EmitStage("commit", "Saving report")
	report := &Report{
		DatasetID:    d.ID,
		QualityScore: qs,
		RowCount:     res.RowCount,
		ColumnCount:  res.ColumnCount,
		Sampled:      res.Sampled,
		Columns:      res.Columns,
		Issues:       res.Issues,
	}
	var staleRef string
	if prev, err := s.store.GetReport(ctx, d.ID); err == nil {
		staleRef = prev.CleanedArtifactRef
	} else if !errors.IsNotFoundError(err) {
		return nil, err
	}
	if err := s.store.CommitReport(ctx, report); err != nil {
		return nil, err
	}
	// The new revision has no cleaned artifact; the old one is unreachable now
	if staleRef != "" {
		if err := s.blobs.Delete(ctx, staleRef); err != nil {
			s.logger.Warnw("Failed to remove stale cleaned artifact", logger.FieldRef, staleRef, logger.FieldError, err)
		}
	}
	emit.EmitProgress(4, processingStages)

	d.Status = StatusReady
	d.Error = ""
	s.logger.Infow("Dataset processed",
		logger.FieldDatasetID, d.ID,
		logger.FieldRows, report.RowCount,
		logger.FieldColumns, report.ColumnCount,
		logger.FieldIssues, len(report.Issues),
		logger.FieldScore, report.QualityScore,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	s.events.Publish(Event{
		Type:         EventStatus,
		DatasetID:    d.ID,
		OwnerID:      d.OwnerID,
		Status:       StatusReady,
		QualityScore: &report.QualityScore,
	})
	return report, nil
}

func (s *Service) failProcessing(ctx context.Context, d *Dataset, cause error) {
	reason := cause.Error()
	if err := s.store.FailDataset(ctx, d.ID, reason); err != nil {
		s.logger.Errorw("Failed to record processing failure",
			logger.FieldDatasetID, d.ID,
			logger.FieldError, err,
		)
		return
	}
	d.Status = StatusFailed
	d.Error = reason
	s.logger.Warnw("Dataset processing failed",
		logger.FieldDatasetID, d.ID,
		logger.FieldErrorKind, errors.KindOf(cause),
		logger.FieldError, reason,
	)
	s.publishStatus(d)
}

// Explain asks the generation service (or the offline heuristic) for a
// summary and plan, validates the plan and merges both into the report. A
// rejected plan is stored as plan_rejection and is not an error.
func (s *Service) Explain(ctx context.Context, ownerID, id string) (*Report, error) {
	d, report, unlock, err := s.lockReady(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ctx = context.WithoutCancel(ctx)
	ctx = tracker.WithCall(ctx, tracker.Call{OperationType: "explain", EntityType: "dataset", EntityID: id})
	res, err := s.explainer.Explain(ctx, explain.Input{
		DatasetID:    id,
		Filename:     d.Filename,
		RowCount:     report.RowCount,
		ColumnCount:  report.ColumnCount,
		Sampled:      report.Sampled,
		QualityScore: report.QualityScore,
		Columns:      report.Columns,
		Issues:       report.Issues,
	})
	if err != nil {
		return nil, err
	}

	report.LLMSummary = res.Summary
	report.PlanSource = res.Source
	report.CleaningPlan = nil
	report.PlanRejection = nil
	if len(res.Plan) > 0 {
		ops, err := plan.Validate(res.Plan, report.Columns)
		var verr *plan.ValidationError
		switch {
		case err == nil:
			report.CleaningPlan = plan.Encode(ops)
		case errors.As(err, &verr):
			report.PlanRejection = verr.Violations
			s.logger.Infow("Cleaning plan rejected",
				logger.FieldDatasetID, id,
				"violations", len(verr.Violations),
			)
		default:
			return nil, err
		}
	}

	if err := s.store.SaveExplanation(ctx, report); err != nil {
		return nil, err
	}
	s.events.Publish(Event{Type: EventExplained, DatasetID: id, OwnerID: d.OwnerID, Status: d.Status})
	return report, nil
}

// Clean runs the validated plan against the full original file and stores
// the cleaned artifact, replacing any earlier one
func (s *Service) Clean(ctx context.Context, ownerID, id string) (*CleaningJob, error) {
	d, report, unlock, err := s.lockReady(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !report.HasPlan() {
		return nil, errors.WithHint(
			errors.Wrapf(errors.ErrNotReady, "dataset %s has no validated cleaning plan", id),
			"run explain first")
	}
	ops, err := plan.Validate(report.CleaningPlan, report.Columns)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	job := &CleaningJob{
		ID:             uuid.NewString(),
		DatasetID:      id,
		ReportRevision: report.Revision,
		Status:         CleaningRunning,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.CreateCleaningJob(ctx, job); err != nil {
		return nil, err
	}

	if err := s.runCleaning(ctx, d, ops, job); err != nil {
		if failErr := s.store.FailCleaning(ctx, job, err.Error()); failErr != nil {
			s.logger.Errorw("Failed to record cleaning failure", logger.FieldJobID, job.ID, logger.FieldError, failErr)
		}
		s.logger.Warnw("Cleaning failed",
			logger.FieldDatasetID, id,
			logger.FieldJobID, job.ID,
			logger.FieldError, err,
		)
		s.events.Publish(Event{Type: EventCleanFail, DatasetID: id, OwnerID: d.OwnerID, JobID: job.ID, Error: err.Error()})
		return nil, err
	}

	if report.CleanedArtifactRef != "" && report.CleanedArtifactRef != job.CleanedArtifactRef {
		if err := s.blobs.Delete(ctx, report.CleanedArtifactRef); err != nil {
			s.logger.Warnw("Failed to remove previous cleaned artifact", logger.FieldRef, report.CleanedArtifactRef, logger.FieldError, err)
		}
	}

	s.events.Publish(Event{
		Type:         EventCleaned,
		DatasetID:    id,
		OwnerID:      d.OwnerID,
		Status:       d.Status,
		JobID:        job.ID,
		QualityScore: job.CleanedScore,
	})
	return job, nil
}

func (s *Service) runCleaning(ctx context.Context, d *Dataset, ops []plan.Operation, job *CleaningJob) error {
	start := time.Now()

	rc, err := s.blobs.Get(ctx, d.ArtifactRef)
	if err != nil {
		return errors.Wrapf(err, "failed to open upload of dataset %s", d.ID)
	}
	t, err := table.Read(rc, table.Options{})
	rc.Close()
	if err != nil {
		return err
	}

	res := clean.Apply(t, ops)
	for _, w := range res.Warnings() {
		s.logger.Infow("Cleaning step skipped", logger.FieldDatasetID, d.ID, logger.FieldError, w)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(res.Table.Write(pw))
	}()
	ref, err := s.blobs.Put(ctx, storage.NamespaceCleaned, d.ID+".csv", pr)
	pr.Close()
	if err != nil {
		return errors.Wrapf(err, "failed to store cleaned artifact for %s", d.ID)
	}

	cleaned := profile.Profile(res.Table, s.opts.Profile)
	cs := score.Score(score.FromColumns(cleaned.RowCount, cleaned.Columns, cleaned.DuplicateRows, cleaned.Issues))

	job.CleanedArtifactRef = ref
	job.RowsBefore = &res.RowsBefore
	job.RowsAfter = &res.RowsAfter
	job.CleanedScore = &cs
	job.Effects = res.Effects
	if err := s.store.CompleteCleaning(ctx, job); err != nil {
		return err
	}

	s.logger.Infow("Dataset cleaned",
		logger.FieldDatasetID, d.ID,
		logger.FieldJobID, job.ID,
		"rows_before", res.RowsBefore,
		"rows_after", res.RowsAfter,
		logger.FieldScore, cs,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return nil
}

// lockReady takes the dataset lock and checks the dataset is ready with a report
func (s *Service) lockReady(ctx context.Context, ownerID, id string) (*Dataset, *Report, func(), error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, nil, nil, err
	}
	unlock, ok := s.locks.TryLock(id)
	if !ok {
		return nil, nil, nil, jobInProgress(id)
	}

	d, err := s.store.GetDataset(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	if d.Status != StatusReady {
		unlock()
		return nil, nil, nil, errors.WithHint(
			errors.Wrapf(errors.ErrNotReady, "dataset %s is %s", id, d.Status),
			"process the dataset until it is ready")
	}
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, nil, err
	}
	return d, report, unlock, nil
}

// CleanedArtifact opens the cleaned file and returns a download name for it
func (s *Service) CleanedArtifact(ctx context.Context, ownerID, id string) (io.ReadCloser, string, error) {
	d, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, "", err
	}
	report, err := s.store.GetReport(ctx, id)
	if err != nil && !errors.IsNotFoundError(err) {
		return nil, "", err
	}
	if report == nil || report.CleanedArtifactRef == "" {
		return nil, "", errors.NewNotFoundError("dataset %s has no cleaned artifact", id)
	}
	rc, err := s.blobs.Get(ctx, report.CleanedArtifactRef)
	if err != nil {
		return nil, "", err
	}
	return rc, CleanedFilename(d.Filename), nil
}

// CleanedFilename derives the download name of a cleaned file
func CleanedFilename(original string) string {
	return strings.TrimSuffix(original, filepath.Ext(original)) + "_cleaned.csv"
}

// LatestCleaning returns the most recent cleaning job of the dataset
func (s *Service) LatestCleaning(ctx context.Context, ownerID, id string) (*CleaningJob, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.store.LatestCleaningJob(ctx, id)
}

// Job returns an async job whose dataset belongs to the owner
func (s *Service) Job(ctx context.Context, ownerID, jobID string) (*async.Job, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, errors.NewNotFoundError("job not found: %s", jobID)
	}
	job, err := s.queue.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, ownerID, job.Source); err != nil {
		if errors.IsNotFoundError(err) {
			return nil, errors.NewNotFoundError("job not found: %s", jobID)
		}
		return nil, err
	}
	return job, nil
}

// RecoverStale fails datasets left processing with no job behind them, which
// happens when the process stops mid-stage. Call it after the worker pool has
// requeued its orphans.
func (s *Service) RecoverStale(ctx context.Context) (int, error) {
	stale, err := s.store.ListDatasetsByStatus(ctx, StatusProcessing)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, d := range stale {
		if s.locks.Held(d.ID) {
			continue
		}
		if s.queue != nil {
			job, err := s.queue.FindActiveJobBySourceAndHandler(d.ID, HandlerName)
			if err != nil {
				return recovered, err
			}
			if job != nil {
				continue
			}
		}
		if err := s.store.FailDataset(ctx, d.ID, InterruptedReason); err != nil {
			return recovered, err
		}
		d.Status = StatusFailed
		d.Error = InterruptedReason
		s.publishStatus(d)
		recovered++
	}

	if recovered > 0 {
		s.logger.Warnw("Recovered interrupted datasets", "count", recovered)
	}
	return recovered, nil
}

func (s *Service) publishStatus(d *Dataset) {
	s.events.Publish(Event{
		Type:      EventStatus,
		DatasetID: d.ID,
		OwnerID:   d.OwnerID,
		Status:    d.Status,
		Error:     d.Error,
	})
}

func requireOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return errors.Wrap(errors.ErrUnauthorized, "owner id is required")
	}
	return nil
}

func jobInProgress(id string) error {
	return errors.WithHint(
		errors.Wrapf(errors.ErrJobInProgress, "dataset %s is already being processed", id),
		"wait for the running job to finish")
}

// limitReader counts bytes and fails once more than max have been read
type limitReader struct {
	r        io.Reader
	n        int64
	max      int64
	exceeded bool
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.max > 0 && l.n > l.max {
		l.exceeded = true
		return n, errors.Wrap(errors.ErrTooLarge, "upload limit exceeded")
	}
	return n, err
}
