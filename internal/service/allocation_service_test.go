package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nimendoza/B2023-R3X-07/internal/catalog"
	"github.com/nimendoza/B2023-R3X-07/internal/dto"
	"github.com/nimendoza/B2023-R3X-07/internal/models"
	"github.com/nimendoza/B2023-R3X-07/pkg/config"
	appErrors "github.com/nimendoza/B2023-R3X-07/pkg/errors"
	"github.com/nimendoza/B2023-R3X-07/pkg/jobs"
	"github.com/nimendoza/B2023-R3X-07/pkg/storage"
)

func TestAllocationServiceRunSingle(t *testing.T) {
	svc, _ := newAllocationServiceFixture(t, allocationFixtureConfig{})

	resp, err := svc.Run(context.Background(), dto.RunRequest{Catalog: schoolCatalog(), Seed: 7})
	require.NoError(t, err)
	assert.Equal(t, dto.RunModeSingle, resp.Mode)
	assert.Equal(t, dto.RunStatusCompleted, resp.Status)
	assert.Equal(t, int64(7), resp.Seed)
	require.Len(t, resp.Results, 1)
	assert.GreaterOrEqual(t, resp.Attempts, 1)
	assert.Len(t, resp.Results[0].Snapshot.Students, 12)

	fetched, err := svc.Get(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, resp.RunID, fetched.RunID)
	assert.Equal(t, dto.RunStatusCompleted, fetched.Status)
}

func TestAllocationServiceRunTargetCollectsResults(t *testing.T) {
	svc, _ := newAllocationServiceFixture(t, allocationFixtureConfig{})

	resp, err := svc.Run(context.Background(), dto.RunRequest{
		Catalog: schoolCatalog(),
		Targets: map[string]float64{"Core": 0},
		Results: 2,
		Seed:    3,
	})
	require.NoError(t, err)
	assert.Equal(t, dto.RunModeTarget, resp.Mode, "targets imply target mode")
	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Results[1].Index)
}

func TestAllocationServiceRunBestOf(t *testing.T) {
	svc, _ := newAllocationServiceFixture(t, allocationFixtureConfig{})

	resp, err := svc.Run(context.Background(), dto.RunRequest{Catalog: schoolCatalog(), Mode: dto.RunModeBest, Attempts: 3, Seed: 11})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.GreaterOrEqual(t, resp.Attempts, 3)
}

func TestAllocationServiceRunRejectsInvalidRequest(t *testing.T) {
	svc, _ := newAllocationServiceFixture(t, allocationFixtureConfig{})

	_, err := svc.Run(context.Background(), dto.RunRequest{Mode: "sometimes"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestAllocationServiceRunRejectsInvalidCatalog(t *testing.T) {
	svc, _ := newAllocationServiceFixture(t, allocationFixtureConfig{})
	cat := schoolCatalog()
	cat.Courses[0].Classification[0].GradeLevel = "Grade 10"

	_, err := svc.Run(context.Background(), dto.RunRequest{Catalog: cat})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCatalog))
	assert.Contains(t, appErrors.FromError(err).Message, "Grade 10")
}

func TestAllocationServiceRunTargetUnreachable(t *testing.T) {
	svc, _ := newAllocationServiceFixture(t, allocationFixtureConfig{})

	resp, err := svc.Run(context.Background(), dto.RunRequest{
		Catalog:     impossibleCatalog(),
		Targets:     map[string]float64{"Core": 50},
		MaxAttempts: 5,
		Seed:        1,
	})
	require.Error(t, err)
	assert.Nil(t, resp)
	assert.True(t, errors.Is(err, appErrors.ErrTargetUnreachable))
	assert.Contains(t, appErrors.FromError(err).Message, "5 attempts")
}

func TestAllocationServiceSavePersistsInTransaction(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	svc, repo := newAllocationServiceFixture(t, allocationFixtureConfig{tx: txProvider})

	resp, err := svc.Run(context.Background(), dto.RunRequest{Catalog: schoolCatalog(), Seed: 5})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectCommit()

	saved, err := svc.Save(context.Background(), dto.SaveRunRequest{RunID: resp.RunID})
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusSaved, saved.Status)
	require.NotNil(t, repo.created)
	assert.Equal(t, resp.RunID, repo.created.ID)
	assert.NotEmpty(t, repo.assignments)
	assert.Len(t, repo.scores, len(resp.Results[0].Scores))
	for _, row := range repo.assignments {
		assert.Equal(t, resp.RunID, row.RunID)
	}
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = svc.Save(context.Background(), dto.SaveRunRequest{RunID: resp.RunID})
	assert.True(t, errors.Is(err, appErrors.ErrConflict), "a saved run cannot be saved again")
}

func TestAllocationServiceSaveRollsBackOnFailure(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	svc, repo := newAllocationServiceFixture(t, allocationFixtureConfig{tx: txProvider})
	repo.insertErr = errors.New("constraint violation")

	resp, err := svc.Run(context.Background(), dto.RunRequest{Catalog: schoolCatalog(), Seed: 5})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = svc.Save(context.Background(), dto.SaveRunRequest{RunID: resp.RunID})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
	require.NoError(t, mock.ExpectationsWereMet())

	fetched, err := svc.Get(context.Background(), resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusCompleted, fetched.Status, "proposal survives a failed save")
}

func TestAllocationServiceSaveUnknownProposal(t *testing.T) {
	svc, _ := newAllocationServiceFixture(t, allocationFixtureConfig{})

	_, err := svc.Save(context.Background(), dto.SaveRunRequest{RunID: "0b8f7c1e-3a52-4c1d-9d55-6c1f43b1d2aa"})
	assert.True(t, errors.Is(err, appErrors.ErrProposalExpired))
}

func TestAllocationServiceGetFallsBackToDatabase(t *testing.T) {
	svc, repo := newAllocationServiceFixture(t, allocationFixtureConfig{})
	id := "0b8f7c1e-3a52-4c1d-9d55-6c1f43b1d2aa"
	repo.runs[id] = &models.AllocationRun{
		ID:        id,
		Mode:      "best",
		Status:    "saved",
		Attempts:  9,
		Snapshot:  types.JSONText(`{"types":["Core"],"scores":[{"type":"Core","attained":3,"total":4,"percent":75}]}`),
		CreatedAt: time.Now(),
	}

	resp, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusSaved, resp.Status)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 75.0, resp.Results[0].Total)

	_, err = svc.Get(context.Background(), "7d0c4a7e-0000-4000-8000-000000000000")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Get(context.Background(), "not-a-run")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestAllocationServiceEnqueueRunsInBackground(t *testing.T) {
	svc, _ := newAllocationServiceFixture(t, allocationFixtureConfig{})
	queue := jobs.NewQueue("allocation-runs", svc.HandleJob, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 4,
		OnFailure:  svc.HandleJobFailure,
		Logger:     zap.NewNop(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()
	svc.AttachQueue(queue)

	queued, err := svc.Enqueue(context.Background(), dto.RunRequest{Catalog: schoolCatalog(), Seed: 2})
	require.NoError(t, err)
	assert.Equal(t, dto.RunStatusQueued, queued.Status)

	require.Eventually(t, func() bool {
		resp, err := svc.Get(context.Background(), queued.RunID)
		return err == nil && resp.Status == dto.RunStatusCompleted
	}, 10*time.Second, 20*time.Millisecond)
}

func TestAllocationServiceEnqueueMarksExhaustedRunFailed(t *testing.T) {
	svc, _ := newAllocationServiceFixture(t, allocationFixtureConfig{})
	queue := jobs.NewQueue("allocation-runs", svc.HandleJob, jobs.QueueConfig{
		Workers:   1,
		OnFailure: svc.HandleJobFailure,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop()
	svc.AttachQueue(queue)

	queued, err := svc.Enqueue(context.Background(), dto.RunRequest{Catalog: impossibleCatalog(), MaxAttempts: 3, Seed: 1})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		resp, err := svc.Get(context.Background(), queued.RunID)
		return err == nil && resp.Status == dto.RunStatusFailed && resp.Error != ""
	}, 10*time.Second, 20*time.Millisecond)
}

func TestAllocationServiceEnqueueWithoutQueue(t *testing.T) {
	svc, _ := newAllocationServiceFixture(t, allocationFixtureConfig{})

	_, err := svc.Enqueue(context.Background(), dto.RunRequest{Catalog: schoolCatalog()})
	assert.True(t, errors.Is(err, appErrors.ErrServiceUnavailable))
}

func TestAllocationServiceExportRoundTrip(t *testing.T) {
	svc, _ := newAllocationServiceFixture(t, allocationFixtureConfig{})

	resp, err := svc.Run(context.Background(), dto.RunRequest{Catalog: schoolCatalog(), Seed: 4})
	require.NoError(t, err)

	link, err := svc.Export(context.Background(), dto.ExportRequest{RunID: resp.RunID, Format: "csv", Sheet: "sections"})
	require.NoError(t, err)
	assert.Equal(t, "csv", link.Format)
	assert.Equal(t, "/api/v1/exports/"+link.Token, link.URL)

	file, name, err := svc.OpenExport(link.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.Contains(t, name, "result-0-sections")
	body, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Contains(t, string(body), "course,section,shift,session,min,ideal,max,size,students")

	pdf, err := svc.Export(context.Background(), dto.ExportRequest{RunID: resp.RunID, Format: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, "pdf", pdf.Format)

	_, _, err = svc.OpenExport(link.Token + "x")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	_, err = svc.Export(context.Background(), dto.ExportRequest{RunID: resp.RunID, Result: 3})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

type allocationFixtureConfig struct {
	tx txProvider
}

func newAllocationServiceFixture(t *testing.T, cfg allocationFixtureConfig) (*AllocationService, *stubRunRepository) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := newStubRunRepository()
	validate := validator.New()
	svc := NewAllocationService(
		catalog.NewBuilder(validate),
		repo,
		cfg.tx,
		NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true),
		files,
		storage.NewSignedURLSigner("test-secret", time.Hour),
		NewMetricsService(),
		validate,
		zap.NewNop(),
		AllocationServiceConfig{
			Allocator: config.AllocatorConfig{
				Workers:       2,
				MaxAttempts:   1000,
				RunTimeout:    time.Minute,
				DemandRounds:  10,
				LevelTwoGrade: "Grade 12",
				CoreType:      "Core",
				ElectiveType:  "Elective",
				MathType:      "Math",
				ResearchType:  "Research",
			},
			APIPrefix: "/api/v1",
		},
	)
	return svc, repo
}

// schoolCatalog has two shifts of three sessions, two core and two
// elective courses, one math course, one research course and twelve
// students, three of them in one research group.
func schoolCatalog() dto.Catalog {
	grade := "Grade 11"
	ranked := func(courseType string) []dto.ClassificationSpec {
		return []dto.ClassificationSpec{{GradeLevel: grade, CourseType: courseType, Ranked: true}}
	}
	roomy := dto.CapacitySpec{Min: 1, Ideal: 10, Max: 15}
	cat := dto.Catalog{
		Shifts:      [][]string{{"A1", "A2", "A3"}, {"P1", "P2", "P3"}},
		ShiftNames:  []string{"AM", "PM"},
		GradeLevels: []string{grade},
		CourseTypes: []string{"Core", "Elective", "Math", "Research"},
		Courses: []dto.CourseSpec{
			{Alias: "Physics", Level: 1, Capacity: roomy, MaxSections: 4, Classification: ranked("Core")},
			{Alias: "Chemistry", Level: 1, Capacity: roomy, MaxSections: 4, Classification: ranked("Core")},
			{Alias: "Art", Level: 1, Capacity: roomy, MaxSections: 4, Classification: ranked("Elective")},
			{Alias: "Music", Level: 1, Capacity: roomy, MaxSections: 4, Classification: ranked("Elective")},
			{Alias: "Algebra", Level: 1, Capacity: dto.CapacitySpec{Min: 1, Ideal: 20, Max: 30}, MaxSections: 2, Classification: ranked("Math")},
			{Alias: "Lab", Level: 0, Capacity: dto.CapacitySpec{Min: 1, Ideal: 10, Max: 20}, MaxSections: 8, Classification: []dto.ClassificationSpec{{GradeLevel: grade, CourseType: "Research"}}},
		},
		ResearchGroups: []dto.GroupSpec{{Alias: "G1", Course: "Lab"}},
	}
	for i, alias := range []string{"Ana", "Ben", "Cal", "Dee", "Eli", "Fay", "Gus", "Hal", "Ivy", "Jon", "Kim", "Lou"} {
		cores := []string{"Physics", "Chemistry"}
		if i%2 == 1 {
			cores = []string{"Chemistry", "Physics"}
		}
		electives := []string{"Art", "Music"}
		if i%3 == 0 {
			electives = []string{"Music", "Art"}
		}
		st := dto.StudentSpec{
			GradeLevel: grade,
			Alias:      alias,
			Rankings:   map[string][]string{"Core": cores, "Elective": electives, "Math": {"Algebra"}},
		}
		if i < 3 {
			st.ResearchGroup = "G1"
		}
		cat.Students = append(cat.Students, st)
	}
	return cat
}

// impossibleCatalog cannot fill its only research course to the minimum.
func impossibleCatalog() dto.Catalog {
	cat := schoolCatalog()
	cat.Courses[5].Capacity = dto.CapacitySpec{Min: 5, Ideal: 10, Max: 20}
	cat.ResearchGroups = nil
	cat.Students = cat.Students[:2]
	for i := range cat.Students {
		cat.Students[i].ResearchGroup = ""
	}
	return cat
}

type stubRunRepository struct {
	runs        map[string]*models.AllocationRun
	created     *models.AllocationRun
	assignments []models.AllocationAssignment
	scores      []models.AllocationScore
	insertErr   error
}

func newStubRunRepository() *stubRunRepository {
	return &stubRunRepository{runs: make(map[string]*models.AllocationRun)}
}

func (s *stubRunRepository) Create(ctx context.Context, exec sqlx.ExtContext, run *models.AllocationRun) error {
	s.created = run
	s.runs[run.ID] = run
	return nil
}

func (s *stubRunRepository) InsertAssignments(ctx context.Context, exec sqlx.ExtContext, rows []models.AllocationAssignment) error {
	if s.insertErr != nil {
		delete(s.runs, s.created.ID)
		return s.insertErr
	}
	s.assignments = append(s.assignments, rows...)
	return nil
}

func (s *stubRunRepository) InsertScores(ctx context.Context, exec sqlx.ExtContext, scores []models.AllocationScore) error {
	s.scores = append(s.scores, scores...)
	return nil
}

func (s *stubRunRepository) FindByID(ctx context.Context, id string) (*models.AllocationRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return run, nil
}

func (s *stubRunRepository) List(ctx context.Context, limit int) ([]models.AllocationRun, error) {
	var out []models.AllocationRun
	for _, run := range s.runs {
		out = append(out, *run)
	}
	return out, nil
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlx.NewDb(db, "sqlmock")}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

func TestSavedResponseDecodesSnapshot(t *testing.T) {
	payload, err := json.Marshal(map[string]interface{}{"types": []string{"Core"}})
	require.NoError(t, err)

	resp, err := savedResponse(&models.AllocationRun{ID: "run", Status: "saved", Snapshot: types.JSONText(payload)})
	require.NoError(t, err)
	assert.Equal(t, []string{"Core"}, resp.Results[0].Snapshot.Types)

	_, err = savedResponse(&models.AllocationRun{Snapshot: types.JSONText(`{`)})
	assert.Error(t, err)
}
