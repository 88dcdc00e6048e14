package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.uber.org/zap"

	"github.com/nimendoza/B2023-R3X-07/internal/allocation"
	"github.com/nimendoza/B2023-R3X-07/internal/dto"
	"github.com/nimendoza/B2023-R3X-07/internal/models"
	"github.com/nimendoza/B2023-R3X-07/pkg/config"
	appErrors "github.com/nimendoza/B2023-R3X-07/pkg/errors"
	"github.com/nimendoza/B2023-R3X-07/pkg/export"
	"github.com/nimendoza/B2023-R3X-07/pkg/jobs"
	"github.com/nimendoza/B2023-R3X-07/pkg/storage"
)

// JobKindAllocation tags queued allocation runs.
const JobKindAllocation = "allocation"

type runRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, run *models.AllocationRun) error
	InsertAssignments(ctx context.Context, exec sqlx.ExtContext, rows []models.AllocationAssignment) error
	InsertScores(ctx context.Context, exec sqlx.ExtContext, scores []models.AllocationScore) error
	FindByID(ctx context.Context, id string) (*models.AllocationRun, error)
	List(ctx context.Context, limit int) ([]models.AllocationRun, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type modelBuilder interface {
	Build(cat *dto.Catalog, roster []dto.RosterRow, rankings []dto.RankingRow) (*allocation.Model, error)
}

type runCache interface {
	Get(ctx context.Context, key string, dest interface{}) bool
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration)
	Invalidate(ctx context.Context, key string)
}

type runQueue interface {
	Enqueue(job jobs.Job) error
	Len() int
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(report export.Report, sheet export.Sheet) ([]byte, error)
}

type pdfRenderer interface {
	Render(report export.Report) ([]byte, error)
}

// AllocationServiceConfig governs run execution, proposal retention and
// export links.
type AllocationServiceConfig struct {
	Allocator config.AllocatorConfig
	APIPrefix string
	CacheTTL  time.Duration
	ExportTTL time.Duration
}

// AllocationService runs allocations, keeps finished proposals for a TTL,
// persists chosen results and renders exports.
type AllocationService struct {
	builder   modelBuilder
	runs      runRepository
	tx        txProvider
	cache     runCache
	queue     runQueue
	storage   fileStorage
	signer    *storage.SignedURLSigner
	csv       csvRenderer
	pdf       pdfRenderer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       AllocationServiceConfig
	store     *proposalStore
}

// NewAllocationService wires allocation dependencies. The queue is attached
// later with AttachQueue because the queue calls back into the service.
func NewAllocationService(
	builder modelBuilder,
	runs runRepository,
	tx txProvider,
	cache runCache,
	files fileStorage,
	signer *storage.SignedURLSigner,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg AllocationServiceConfig,
) *AllocationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Allocator.ProposalTTL <= 0 {
		cfg.Allocator.ProposalTTL = 30 * time.Minute
	}
	if cfg.Allocator.Workers <= 0 {
		cfg.Allocator.Workers = 1
	}
	if cfg.ExportTTL <= 0 {
		cfg.ExportTTL = 24 * time.Hour
	}
	return &AllocationService{
		builder:   builder,
		runs:      runs,
		tx:        tx,
		cache:     cache,
		storage:   files,
		signer:    signer,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		store:     newProposalStore(cfg.Allocator.ProposalTTL),
	}
}

// AttachQueue enables asynchronous runs.
func (s *AllocationService) AttachQueue(q runQueue) {
	s.queue = q
}

type queuedRun struct {
	model *allocation.Model
	req   dto.RunRequest
}

// Run builds the catalog and runs it synchronously, bounded by the
// configured run timeout.
func (s *AllocationService) Run(ctx context.Context, req dto.RunRequest) (*dto.RunResponse, error) {
	model, err := s.prepare(&req)
	if err != nil {
		return nil, err
	}
	resp := s.newResponse(req, dto.RunStatusRunning)
	s.store.Save(resp)

	resp, err = s.execute(ctx, model, req, resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Enqueue validates and builds the catalog, then hands the run to the job
// queue. The returned run is queued; poll Get for its result.
func (s *AllocationService) Enqueue(ctx context.Context, req dto.RunRequest) (*dto.RunResponse, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "run queue not configured")
	}
	model, err := s.prepare(&req)
	if err != nil {
		return nil, err
	}
	resp := s.newResponse(req, dto.RunStatusQueued)
	s.store.Save(resp)

	job := jobs.Job{ID: resp.RunID, Kind: JobKindAllocation, Payload: queuedRun{model: model, req: req}}
	if err := s.queue.Enqueue(job); err != nil {
		s.store.Delete(resp.RunID)
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.WrapAs(err, appErrors.ErrServiceUnavailable, "run queue is full")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrServiceUnavailable, "run queue unavailable")
	}
	s.metrics.SetQueueDepth(s.queue.Len())
	s.logger.Info("allocation run queued", zap.String("run_id", resp.RunID), zap.String("mode", string(req.Mode)))
	return &resp, nil
}

// HandleJob executes a queued run. Retries shift a fixed seed so a retried
// run explores different attempts.
func (s *AllocationService) HandleJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(queuedRun)
	if !ok {
		return fmt.Errorf("unexpected payload %T for job %s", job.Payload, job.ID)
	}
	if s.queue != nil {
		s.metrics.SetQueueDepth(s.queue.Len())
	}
	req := payload.req
	if req.Seed != 0 {
		req.Seed += int64(job.Attempt)
	}

	resp, ok := s.store.Get(job.ID)
	if !ok {
		resp = s.newResponse(req, dto.RunStatusQueued)
		resp.RunID = job.ID
	}
	resp.Status = dto.RunStatusRunning
	resp.Seed = req.Seed
	resp.Error = ""
	s.store.Save(resp)

	_, err := s.execute(ctx, payload.model, req, resp)
	return err
}

// HandleJobFailure marks a run that exhausted its retries as failed.
func (s *AllocationService) HandleJobFailure(job jobs.Job, err error) {
	resp, ok := s.store.Get(job.ID)
	if !ok {
		return
	}
	resp.Status = dto.RunStatusFailed
	resp.Error = appErrors.FromError(err).Message
	s.store.Save(resp)
	s.logger.Warn("allocation run failed", zap.String("run_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
}

func (s *AllocationService) prepare(req *dto.RunRequest) (*allocation.Model, error) {
	if req.Mode == "" {
		req.Mode = dto.RunModeSingle
		if len(req.Targets) > 0 {
			req.Mode = dto.RunModeTarget
		}
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid run request")
	}
	if req.Seed == 0 {
		req.Seed = s.cfg.Allocator.Seed
	}
	if req.Seed == 0 {
		req.Seed = time.Now().UnixNano()
	}
	model, err := s.builder.Build(&req.Catalog, nil, nil)
	if err != nil {
		if errors.Is(err, allocation.ErrInvalidCatalog) {
			return nil, appErrors.WrapAs(err, appErrors.ErrInvalidCatalog, err.Error())
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, err.Error())
	}
	return model, nil
}

func (s *AllocationService) newResponse(req dto.RunRequest, status dto.RunStatus) dto.RunResponse {
	return dto.RunResponse{
		RunID:     uuid.NewString(),
		Mode:      req.Mode,
		Status:    status,
		Seed:      req.Seed,
		Targets:   req.Targets,
		CreatedAt: time.Now().UTC(),
	}
}

// EngineOptions maps allocator settings onto engine options.
func EngineOptions(a config.AllocatorConfig) allocation.Options {
	return allocation.Options{
		Types: allocation.TypeAliases{
			Core:     a.CoreType,
			Elective: a.ElectiveType,
			Math:     a.MathType,
			Research: a.ResearchType,
		},
		Policy:              allocation.DefaultPolicy(),
		LevelTwoGrade:       a.LevelTwoGrade,
		ExtraSpreadSections: a.ExtraSpreadSections,
		DemandRounds:        a.DemandRounds,
	}
}

// execute drives the runner for req.Mode and records the finished run in the
// proposal store and the cache. resp carries the run identity in and the
// final state out.
func (s *AllocationService) execute(ctx context.Context, model *allocation.Model, req dto.RunRequest, resp dto.RunResponse) (dto.RunResponse, error) {
	if s.cfg.Allocator.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Allocator.RunTimeout)
		defer cancel()
	}

	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = s.cfg.Allocator.MaxAttempts
	}
	runCfg := allocation.RunConfig{
		Workers:     s.cfg.Allocator.Workers,
		MaxAttempts: maxAttempts,
		Seed:        req.Seed,
		Logger:      s.logger.With(zap.String("run_id", resp.RunID)),
		Observer:    s.metrics,
	}
	opts := EngineOptions(s.cfg.Allocator)

	start := time.Now()
	var (
		outcomes []*allocation.Outcome
		err      error
	)
	resp.Results = nil
	resp.Attempts = 0
	resp.Failures = nil
	switch req.Mode {
	case dto.RunModeTarget:
		outcomes, err = allocation.RunTarget(ctx, model, opts, runCfg, allocation.TargetMode{Targets: req.Targets, Results: req.Results})
		resp.Failures = make(map[string]int)
		for _, out := range outcomes {
			resp.Attempts += out.Attempts
			for phase, n := range out.Failures {
				resp.Failures[phase] += n
			}
		}
	default:
		var out *allocation.Outcome
		if req.Mode == dto.RunModeBest {
			out, err = allocation.RunBestOf(ctx, model, opts, runCfg, allocation.BestOfMode{Attempts: req.Attempts})
		} else {
			out, err = allocation.RunParallel(ctx, model, opts, runCfg)
		}
		if out != nil {
			resp.Attempts = out.Attempts
			resp.Failures = out.Failures
			if out.Snapshot != nil && err == nil {
				outcomes = append(outcomes, out)
			}
		}
	}
	elapsed := time.Since(start)

	resp.ElapsedMs = elapsed.Milliseconds()
	for i, out := range outcomes {
		resp.Results = append(resp.Results, ResultFromOutcome(i, out))
	}

	if err != nil {
		appErr := s.runError(err, req, maxAttempts)
		resp.Status = dto.RunStatusFailed
		resp.Error = appErr.Message
		s.store.Save(resp)
		s.metrics.ObserveRun(string(req.Mode), string(dto.RunStatusFailed), elapsed)
		s.logger.Warn("allocation run failed",
			zap.String("run_id", resp.RunID),
			zap.String("mode", string(req.Mode)),
			zap.Int("attempts", resp.Attempts),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return resp, appErr
	}

	resp.Status = dto.RunStatusCompleted
	s.store.Save(resp)
	if s.cache != nil {
		s.cache.Set(ctx, cacheKey(resp.RunID), resp, s.cfg.CacheTTL)
	}
	s.metrics.ObserveRun(string(req.Mode), string(dto.RunStatusCompleted), elapsed)
	s.logger.Info("allocation run completed",
		zap.String("run_id", resp.RunID),
		zap.String("mode", string(req.Mode)),
		zap.Int("results", len(resp.Results)),
		zap.Int("attempts", resp.Attempts),
		zap.Duration("elapsed", elapsed),
	)
	return resp, nil
}

func (s *AllocationService) runError(err error, req dto.RunRequest, maxAttempts int) *appErrors.Error {
	switch {
	case errors.Is(err, allocation.ErrInvalidCatalog):
		return appErrors.WrapAs(err, appErrors.ErrInvalidCatalog, err.Error())
	case errors.Is(err, allocation.ErrAttemptsExhausted):
		msg := fmt.Sprintf("no successful allocation within %d attempts", maxAttempts)
		if req.Mode == dto.RunModeTarget {
			msg = fmt.Sprintf("no allocation met the targets within %d attempts", maxAttempts)
		}
		return appErrors.WrapAs(err, appErrors.ErrTargetUnreachable, msg)
	case errors.Is(err, context.DeadlineExceeded):
		return appErrors.WrapAs(err, appErrors.ErrRunTimeout, "")
	case errors.Is(err, context.Canceled):
		return appErrors.WrapAs(err, appErrors.ErrServiceUnavailable, "allocation run cancelled")
	}
	return appErrors.WrapAs(err, appErrors.ErrInternal, "allocation run failed")
}

func cacheKey(runID string) string {
	return "run:" + runID
}

// Get returns a run from the proposal store, then the cache, then the
// database of saved runs.
func (s *AllocationService) Get(ctx context.Context, runID string) (*dto.RunResponse, error) {
	if err := s.validator.Var(runID, "required,uuid"); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
	}
	if resp, ok := s.store.Get(runID); ok {
		return &resp, nil
	}
	var cached dto.RunResponse
	if s.cache != nil && s.cache.Get(ctx, cacheKey(runID), &cached) {
		return &cached, nil
	}
	if s.runs == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
	}

	start := time.Now()
	run, err := s.runs.FindByID(ctx, runID)
	s.metrics.ObserveDBQuery("allocation_runs.find", time.Since(start))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run")
	}
	resp, err := savedResponse(run)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode run snapshot")
	}
	if s.cache != nil {
		s.cache.Set(ctx, cacheKey(runID), resp, s.cfg.CacheTTL)
	}
	return resp, nil
}

func savedResponse(run *models.AllocationRun) (*dto.RunResponse, error) {
	var snap allocation.Snapshot
	if err := json.Unmarshal(run.Snapshot, &snap); err != nil {
		return nil, err
	}
	return &dto.RunResponse{
		RunID:     run.ID,
		Mode:      dto.RunMode(run.Mode),
		Status:    dto.RunStatus(run.Status),
		Seed:      run.Seed,
		Attempts:  run.Attempts,
		ElapsedMs: run.ElapsedMs,
		Results: []dto.RunResult{{
			Attempts:  run.Attempts,
			ElapsedMs: run.ElapsedMs,
			Scores:    snap.Scores,
			Total:     snap.Total(),
			Snapshot:  &snap,
		}},
		CreatedAt: run.CreatedAt,
	}, nil
}

// List returns recently saved runs.
func (s *AllocationService) List(ctx context.Context, limit int) ([]models.AllocationRun, error) {
	if s.runs == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "run database not configured")
	}
	runs, err := s.runs.List(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list runs")
	}
	return runs, nil
}

// Save persists one result of a completed proposal with its assignments and
// scores in a single transaction.
func (s *AllocationService) Save(ctx context.Context, req dto.SaveRunRequest) (*dto.RunResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save request")
	}
	proposal, ok := s.store.Get(req.RunID)
	if !ok {
		if s.runs != nil {
			if _, err := s.runs.FindByID(ctx, req.RunID); err == nil {
				return nil, appErrors.Clone(appErrors.ErrConflict, "run already saved")
			}
		}
		return nil, appErrors.Clone(appErrors.ErrProposalExpired, "proposal not found or expired")
	}
	if proposal.Status != dto.RunStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("run is %s", proposal.Status))
	}
	if req.Result >= len(proposal.Results) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("run has %d results", len(proposal.Results)))
	}
	if s.tx == nil || s.runs == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}
	result := proposal.Results[req.Result]

	snapshot, err := json.Marshal(result.Snapshot)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode run snapshot")
	}
	record := &models.AllocationRun{
		ID:         proposal.RunID,
		Mode:       string(proposal.Mode),
		Status:     string(dto.RunStatusSaved),
		Seed:       proposal.Seed,
		Attempts:   result.Attempts,
		ElapsedMs:  result.ElapsedMs,
		TotalScore: result.Total,
		Snapshot:   types.JSONText(snapshot),
		CreatedAt:  proposal.CreatedAt,
	}

	start := time.Now()
	if err := s.persist(ctx, record, result); err != nil {
		return nil, err
	}
	s.metrics.ObserveDBQuery("allocation_runs.save", time.Since(start))

	saved, err := savedResponse(record)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode run snapshot")
	}
	s.store.Delete(proposal.RunID)
	if s.cache != nil {
		s.cache.Set(ctx, cacheKey(proposal.RunID), saved, s.cfg.CacheTTL)
	}
	s.logger.Info("allocation run saved", zap.String("run_id", proposal.RunID), zap.Int("result", req.Result), zap.Float64("total", result.Total))
	return saved, nil
}

func (s *AllocationService) persist(ctx context.Context, record *models.AllocationRun, result dto.RunResult) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = s.runs.Create(ctx, tx, record); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save run")
	}
	if err = s.runs.InsertAssignments(ctx, tx, assignmentRecords(record.ID, result.Snapshot)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save assignments")
	}
	if err = s.runs.InsertScores(ctx, tx, scoreRecords(record.ID, result.Scores)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save scores")
	}
	if err = tx.Commit(); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit run")
	}
	return nil
}

// Export renders one result of a finished run, stores the file and returns a
// signed download link.
func (s *AllocationService) Export(ctx context.Context, req dto.ExportRequest) (*dto.ExportResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	if s.storage == nil || s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrServiceUnavailable, "export storage not configured")
	}
	format := strings.ToLower(req.Format)
	if format == "" {
		format = "csv"
	}
	sheet, err := export.ParseSheet(req.Sheet)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrUnsupportedFormat, err.Error())
	}

	run, err := s.Get(ctx, req.RunID)
	if err != nil {
		return nil, err
	}
	if run.Status != dto.RunStatusCompleted && run.Status != dto.RunStatusSaved {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("run is %s", run.Status))
	}
	if req.Result >= len(run.Results) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("run has %d results", len(run.Results)))
	}

	report := BuildReport(fmt.Sprintf("Allocation %s", run.RunID), run.Results[req.Result], run.Targets)
	var payload []byte
	name := fmt.Sprintf("%s/result-%d", run.RunID, req.Result)
	switch format {
	case "csv":
		payload, err = s.csv.Render(report, sheet)
		name = fmt.Sprintf("%s-%s", name, sheet)
	case "pdf":
		payload, err = s.pdf.Render(report)
	default:
		return nil, appErrors.Clone(appErrors.ErrUnsupportedFormat, fmt.Sprintf("unsupported format %s", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	name = fmt.Sprintf("%s-%s.%s", name, time.Now().UTC().Format("20060102_150405"), format)

	relPath, err := s.storage.Save(name, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(run.RunID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export")
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	return &dto.ExportResponse{
		Token:     token,
		URL:       fmt.Sprintf("%s/exports/%s", prefix, token),
		Format:    format,
		ExpiresAt: expiresAt,
	}, nil
}

// OpenExport verifies a download token and opens the stored file. The
// caller closes it.
func (s *AllocationService) OpenExport(token string) (*os.File, string, error) {
	if s.storage == nil || s.signer == nil {
		return nil, "", appErrors.Clone(appErrors.ErrServiceUnavailable, "export storage not configured")
	}
	parsed, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.WrapAs(err, appErrors.ErrProposalExpired, "download link expired")
		}
		return nil, "", appErrors.WrapAs(err, appErrors.ErrForbidden, "invalid download token")
	}
	file, err := s.storage.Open(parsed.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	name := parsed.Path
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return file, name, nil
}

// CleanupExports removes stored exports older than the link lifetime.
func (s *AllocationService) CleanupExports() ([]string, error) {
	if s.storage == nil {
		return nil, nil
	}
	removed, err := s.storage.CleanupOlderThan(s.cfg.ExportTTL)
	if err != nil {
		return removed, err
	}
	if len(removed) > 0 {
		s.logger.Info("expired exports removed", zap.Int("count", len(removed)))
	}
	return removed, nil
}

type proposalStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]storedRun
}

type storedRun struct {
	run       dto.RunResponse
	updatedAt time.Time
}

func newProposalStore(ttl time.Duration) *proposalStore {
	return &proposalStore{
		ttl:   ttl,
		items: make(map[string]storedRun),
	}
}

func (s *proposalStore) Save(run dto.RunResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[run.RunID] = storedRun{run: run, updatedAt: time.Now()}
}

func (s *proposalStore) Get(id string) (dto.RunResponse, bool) {
	s.mu.RLock()
	item, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return dto.RunResponse{}, false
	}
	if time.Since(item.updatedAt) > s.ttl {
		s.Delete(id)
		return dto.RunResponse{}, false
	}
	return item.run, true
}

func (s *proposalStore) Delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}
