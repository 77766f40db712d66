package memo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxnote-app/voxnote/internal/extract"
	inats "github.com/voxnote-app/voxnote/internal/nats"
	"github.com/voxnote-app/voxnote/internal/storage"
)

type stubFetcher struct {
	audio []byte
	err   error
	calls int
}

func (f *stubFetcher) Download(_ context.Context, _ string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

type stubTranscriber struct {
	transcript string
	err        error
	calls      int
	language   string
}

func (t *stubTranscriber) Transcribe(_ context.Context, _ []byte, language string) (string, error) {
	t.calls++
	t.language = language
	if t.err != nil {
		return "", t.err
	}
	return t.transcript, nil
}

type stubExtractor struct {
	result *extract.Result
	err    error
	calls  int
	now    time.Time
}

func (e *stubExtractor) Extract(_ context.Context, _ string, now time.Time) (*extract.Result, error) {
	e.calls++
	e.now = now
	if e.err != nil {
		return nil, e.err
	}
	return e.result, nil
}

type stubRepo struct {
	inserted []*Memo
	err      error
}

func (r *stubRepo) Insert(_ context.Context, m *Memo) error {
	if r.err != nil {
		return r.err
	}
	m.CreatedAt = time.Now()
	r.inserted = append(r.inserted, m)
	return nil
}

func (r *stubRepo) GetByID(_ context.Context, id, userID uuid.UUID) (*Memo, error) {
	for _, m := range r.inserted {
		if m.ID == id && m.UserID == userID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *stubRepo) ListByUser(_ context.Context, userID uuid.UUID, _, _ int) ([]Memo, int64, error) {
	var out []Memo
	for _, m := range r.inserted {
		if m.UserID == userID {
			out = append(out, *m)
		}
	}
	return out, int64(len(out)), nil
}

type stubPublisher struct {
	events []inats.MemoAnalyzedEvent
	err    error
}

func (p *stubPublisher) PublishMemoAnalyzed(_ context.Context, event inats.MemoAnalyzedEvent) error {
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

type pipelineStubs struct {
	fetcher     *stubFetcher
	transcriber *stubTranscriber
	extractor   *stubExtractor
	repo        *stubRepo
	publisher   *stubPublisher
}

// fixedNow is a Friday morning in Seoul, so "tomorrow at 3pm" resolves
// to Saturday 2024-03-16 15:00 KST.
var fixedNow = time.Date(2024, 3, 15, 2, 30, 0, 0, time.UTC)

func newTestService(t *testing.T, stubs pipelineStubs) *Service {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)

	if stubs.fetcher == nil {
		stubs.fetcher = &stubFetcher{audio: []byte("m4a-bytes")}
	}
	if stubs.transcriber == nil {
		stubs.transcriber = &stubTranscriber{transcript: "내일 3시 치과 예약"}
	}
	if stubs.extractor == nil {
		stubs.extractor = &stubExtractor{result: validResult()}
	}
	if stubs.repo == nil {
		stubs.repo = &stubRepo{}
	}
	if stubs.publisher == nil {
		stubs.publisher = &stubPublisher{}
	}

	return NewService(stubs.repo, stubs.fetcher, stubs.transcriber, stubs.extractor, stubs.publisher, Options{
		Language:          "ko",
		Location:          loc,
		FetchTimeout:      time.Second,
		TranscribeTimeout: time.Second,
		ExtractTimeout:    time.Second,
		Clock:             func() time.Time { return fixedNow },
	})
}

func analyzeReq() AnalyzeRequest {
	return AnalyzeRequest{
		AudioURL: "user-1/1700000000.m4a",
		UserID:   "a2f0bd92-57f3-4f18-9f0e-2f2f3c6ad1be",
	}
}

func TestAnalyze_ScheduleMemo(t *testing.T) {
	stubs := pipelineStubs{
		transcriber: &stubTranscriber{transcript: "내일 오후 3시에 강남역 치과 예약"},
		extractor: &stubExtractor{result: &extract.Result{
			Summary:     "치과 예약",
			PrimaryType: "SCHEDULE",
			Entities: extract.ResultEntities{
				TargetDate: strPtr("2024-03-16T15:00:00"),
				Location:   strPtr("강남역 치과"),
				Tags:       []string{"병원", "예약"},
			},
		}},
		repo:      &stubRepo{},
		publisher: &stubPublisher{},
	}
	svc := newTestService(t, stubs)

	m, err := svc.Analyze(context.Background(), analyzeReq())
	require.NoError(t, err)

	assert.Equal(t, TypeSchedule, m.PrimaryType)
	assert.Equal(t, StatusCompleted, m.Status)
	assert.Equal(t, "내일 오후 3시에 강남역 치과 예약", m.RawText)
	assert.Equal(t, "치과 예약", m.Summary)
	require.NotNil(t, m.AudioURL)
	assert.Equal(t, "user-1/1700000000.m4a", *m.AudioURL)

	// The relative date must land in Seoul, not the host zone.
	loc, _ := time.LoadLocation("Asia/Seoul")
	want := time.Date(2024, 3, 16, 15, 0, 0, 0, loc)
	require.NotNil(t, m.Entities.TargetDate)
	assert.True(t, m.Entities.TargetDate.Equal(want), "got %v, want %v", m.Entities.TargetDate, want)

	require.Len(t, stubs.repo.inserted, 1)
	assert.Equal(t, m.ID, stubs.repo.inserted[0].ID)

	require.Len(t, stubs.publisher.events, 1)
	assert.Equal(t, m.ID, stubs.publisher.events[0].MemoID)
	assert.Equal(t, "SCHEDULE", stubs.publisher.events[0].PrimaryType)
}

func TestAnalyze_NoteWithoutTargetDate(t *testing.T) {
	stubs := pipelineStubs{
		transcriber: &stubTranscriber{transcript: "오늘 점심은 뭐 먹지?"},
		extractor: &stubExtractor{result: &extract.Result{
			Summary:     "점심 메뉴 고민",
			PrimaryType: "NOTE",
		}},
		repo: &stubRepo{},
	}
	svc := newTestService(t, stubs)

	m, err := svc.Analyze(context.Background(), analyzeReq())
	require.NoError(t, err)

	assert.Equal(t, TypeNote, m.PrimaryType)
	assert.Nil(t, m.Entities.TargetDate)
	assert.Nil(t, m.Entities.Location)
	require.Len(t, stubs.repo.inserted, 1)
}

func TestAnalyze_ClockFlowsIntoExtraction(t *testing.T) {
	stubs := pipelineStubs{extractor: &stubExtractor{result: validResult()}}
	svc := newTestService(t, stubs)

	_, err := svc.Analyze(context.Background(), analyzeReq())
	require.NoError(t, err)
	assert.True(t, stubs.extractor.now.Equal(fixedNow))
}

func TestAnalyze_LanguageHintForwarded(t *testing.T) {
	stubs := pipelineStubs{transcriber: &stubTranscriber{transcript: "메모"}}
	svc := newTestService(t, stubs)

	_, err := svc.Analyze(context.Background(), analyzeReq())
	require.NoError(t, err)
	assert.Equal(t, "ko", stubs.transcriber.language)
}

func TestAnalyze_InvalidUserID(t *testing.T) {
	stubs := pipelineStubs{fetcher: &stubFetcher{audio: []byte("x")}}
	svc := newTestService(t, stubs)

	req := analyzeReq()
	req.UserID = "not-a-uuid"
	_, err := svc.Analyze(context.Background(), req)
	require.Error(t, err)
	assert.Zero(t, stubs.fetcher.calls)
}

func TestAnalyze_FetchNotFound(t *testing.T) {
	stubs := pipelineStubs{
		fetcher:     &stubFetcher{err: storage.ErrNotFound},
		transcriber: &stubTranscriber{},
		extractor:   &stubExtractor{},
		repo:        &stubRepo{},
	}
	svc := newTestService(t, stubs)

	_, err := svc.Analyze(context.Background(), analyzeReq())

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StageFetch, perr.Stage)
	assert.Equal(t, KindRetrieval, perr.Kind)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	// A missing recording must not trigger any downstream provider call.
	assert.Zero(t, stubs.transcriber.calls)
	assert.Zero(t, stubs.extractor.calls)
	assert.Empty(t, stubs.repo.inserted)
}

func TestAnalyze_StageFailuresLeaveRepositoryUntouched(t *testing.T) {
	cases := []struct {
		name      string
		stubs     pipelineStubs
		wantStage Stage
		wantKind  ErrorKind
	}{
		{
			name:      "fetch denied",
			stubs:     pipelineStubs{fetcher: &stubFetcher{err: storage.ErrAccessDenied}},
			wantStage: StageFetch,
			wantKind:  KindRetrieval,
		},
		{
			name:      "transcription fails",
			stubs:     pipelineStubs{transcriber: &stubTranscriber{err: errors.New("stt: status 500")}},
			wantStage: StageTranscribe,
			wantKind:  KindTranscription,
		},
		{
			name:      "extraction fails",
			stubs:     pipelineStubs{extractor: &stubExtractor{err: errors.New("model overloaded")}},
			wantStage: StageExtract,
			wantKind:  KindExtraction,
		},
		{
			name: "schema violation",
			stubs: pipelineStubs{extractor: &stubExtractor{result: &extract.Result{
				Summary:     "메모",
				PrimaryType: "DIARY",
			}}},
			wantStage: StageValidate,
			wantKind:  KindSchemaViolation,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubRepo{}
			tc.stubs.repo = repo
			svc := newTestService(t, tc.stubs)

			_, err := svc.Analyze(context.Background(), analyzeReq())

			var perr *PipelineError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, tc.wantStage, perr.Stage)
			assert.Equal(t, tc.wantKind, perr.Kind)
			assert.Empty(t, repo.inserted)
		})
	}
}

func TestAnalyze_PersistFailure(t *testing.T) {
	repo := &stubRepo{err: errors.New("connection reset")}
	publisher := &stubPublisher{}
	svc := newTestService(t, pipelineStubs{repo: repo, publisher: publisher})

	_, err := svc.Analyze(context.Background(), analyzeReq())

	var perr *PipelineError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, StagePersist, perr.Stage)
	assert.Equal(t, KindPersistence, perr.Kind)
	assert.Empty(t, publisher.events)
}

func TestAnalyze_CancelledBeforePersist(t *testing.T) {
	repo := &stubRepo{}
	// Cancel during extraction so the pre-persist check trips.
	ctx, cancel := context.WithCancel(context.Background())
	extractor := &stubExtractor{result: validResult()}
	cancellingExtractor := extractorFunc(func(c context.Context, transcript string, now time.Time) (*extract.Result, error) {
		cancel()
		return extractor.Extract(c, transcript, now)
	})
	svc := newTestService(t, pipelineStubs{repo: repo})
	svc.extractor = cancellingExtractor

	_, err := svc.Analyze(ctx, analyzeReq())
	require.Error(t, err)
	assert.Empty(t, repo.inserted)
}

type extractorFunc func(ctx context.Context, transcript string, now time.Time) (*extract.Result, error)

func (f extractorFunc) Extract(ctx context.Context, transcript string, now time.Time) (*extract.Result, error) {
	return f(ctx, transcript, now)
}

func TestAnalyze_SameInputTwiceYieldsTwoMemos(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, pipelineStubs{repo: repo})

	first, err := svc.Analyze(context.Background(), analyzeReq())
	require.NoError(t, err)
	second, err := svc.Analyze(context.Background(), analyzeReq())
	require.NoError(t, err)

	// Same recording, same deterministic content, distinct rows.
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Summary, second.Summary)
	assert.Equal(t, first.PrimaryType, second.PrimaryType)
	require.Len(t, repo.inserted, 2)
}

func TestAnalyze_PublishFailureDoesNotFailRun(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, pipelineStubs{
		repo:      repo,
		publisher: &stubPublisher{err: errors.New("nats: connection closed")},
	})

	m, err := svc.Analyze(context.Background(), analyzeReq())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, m.Status)
	require.Len(t, repo.inserted, 1)
}

func TestAnalyze_NilPublisher(t *testing.T) {
	repo := &stubRepo{}
	stubs := pipelineStubs{
		fetcher:     &stubFetcher{audio: []byte("x")},
		transcriber: &stubTranscriber{transcript: "메모"},
		extractor:   &stubExtractor{result: validResult()},
		repo:        repo,
	}
	loc, err := time.LoadLocation("Asia/Seoul")
	require.NoError(t, err)
	svc := NewService(stubs.repo, stubs.fetcher, stubs.transcriber, stubs.extractor, nil, Options{
		Language:          "ko",
		Location:          loc,
		FetchTimeout:      time.Second,
		TranscribeTimeout: time.Second,
		ExtractTimeout:    time.Second,
	})

	_, err = svc.Analyze(context.Background(), analyzeReq())
	require.NoError(t, err)
	require.Len(t, repo.inserted, 1)
}
