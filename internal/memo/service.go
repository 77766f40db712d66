package memo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/voxnote-app/voxnote/internal/extract"
	"github.com/voxnote-app/voxnote/internal/metrics"
	inats "github.com/voxnote-app/voxnote/internal/nats"
	"github.com/voxnote-app/voxnote/internal/storage"
	"github.com/voxnote-app/voxnote/internal/transcribe"
)

// EventPublisher announces completed analyses to realtime consumers.
type EventPublisher interface {
	PublishMemoAnalyzed(ctx context.Context, event inats.MemoAnalyzedEvent) error
}

// Options configures one pipeline service instance.
type Options struct {
	// Language is the source-language hint forwarded to transcription.
	Language string
	// Location is the canonical timezone for relative-date resolution.
	Location *time.Location
	// Per-stage timeouts for the three outbound calls.
	FetchTimeout      time.Duration
	TranscribeTimeout time.Duration
	ExtractTimeout    time.Duration
	// Clock supplies the invocation time embedded in the extraction
	// prompt. Overridable so tests can pin it.
	Clock func() time.Time
}

// Service runs the five-stage analysis pipeline: fetch, transcribe,
// extract, validate, persist. Stages are strictly sequential; a stage
// runs only if the previous one succeeded, and no partial memo is ever
// persisted.
type Service struct {
	repo        Repository
	fetcher     storage.Fetcher
	transcriber transcribe.Transcriber
	extractor   extract.Extractor
	publisher   EventPublisher
	opts        Options
}

// NewService creates a pipeline service. publisher may be nil when
// realtime events are not configured.
func NewService(
	repo Repository,
	fetcher storage.Fetcher,
	transcriber transcribe.Transcriber,
	extractor extract.Extractor,
	publisher EventPublisher,
	opts Options,
) *Service {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Service{
		repo:        repo,
		fetcher:     fetcher,
		transcriber: transcriber,
		extractor:   extractor,
		publisher:   publisher,
		opts:        opts,
	}
}

// Analyze runs one recording through the full pipeline and returns the
// persisted memo. Any stage failure aborts the run with a
// *PipelineError and leaves the repository untouched. Cancellation of
// ctx abandons in-flight provider calls and skips persistence.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*Memo, error) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, fmt.Errorf("parsing user id: %w", err)
	}

	// Stage 1: fetch audio bytes
	audio, perr := s.fetchAudio(ctx, req.AudioURL)
	if perr != nil {
		return nil, s.fail(req, perr)
	}

	// Stage 2: speech-to-text
	transcript, perr := s.transcribeAudio(ctx, audio)
	if perr != nil {
		return nil, s.fail(req, perr)
	}

	// Stage 3: structured extraction, clocked in the canonical zone
	result, perr := s.extractResult(ctx, transcript)
	if perr != nil {
		return nil, s.fail(req, perr)
	}

	// Stage 4: validation gate between provider output and the domain
	analysis, perr := s.validateResult(result)
	if perr != nil {
		return nil, s.fail(req, perr)
	}

	// Cancellation must not leak a memo into the repository.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stage 5: persist exactly one COMPLETED memo
	m, perr := s.persistMemo(ctx, userID, req.AudioURL, transcript, analysis)
	if perr != nil {
		return nil, s.fail(req, perr)
	}

	s.publishAnalyzed(ctx, m)

	metrics.MemosAnalyzedTotal.WithLabelValues("completed").Inc()
	slog.Info("memo analyzed",
		"memo_id", m.ID,
		"user_id", m.UserID,
		"primary_type", m.PrimaryType,
	)
	return m, nil
}

func (s *Service) fetchAudio(ctx context.Context, ref string) ([]byte, *PipelineError) {
	var audio []byte
	err := s.runStage(StageFetch, func() error {
		cctx, cancel := context.WithTimeout(ctx, s.opts.FetchTimeout)
		defer cancel()
		var err error
		audio, err = s.fetcher.Download(cctx, ref)
		return err
	})
	if err != nil {
		msg := "could not retrieve audio"
		switch {
		case errors.Is(err, storage.ErrNotFound):
			msg = "audio reference not found"
		case errors.Is(err, storage.ErrAccessDenied):
			msg = "audio access denied"
		}
		return nil, newPipelineError(StageFetch, KindRetrieval, msg, err)
	}
	return audio, nil
}

func (s *Service) transcribeAudio(ctx context.Context, audio []byte) (string, *PipelineError) {
	var transcript string
	err := s.runStage(StageTranscribe, func() error {
		cctx, cancel := context.WithTimeout(ctx, s.opts.TranscribeTimeout)
		defer cancel()
		var err error
		transcript, err = s.transcriber.Transcribe(cctx, audio, s.opts.Language)
		return err
	})
	if err != nil {
		return "", newPipelineError(StageTranscribe, KindTranscription, "could not transcribe audio", err)
	}
	return transcript, nil
}

func (s *Service) extractResult(ctx context.Context, transcript string) (*extract.Result, *PipelineError) {
	var result *extract.Result
	err := s.runStage(StageExtract, func() error {
		cctx, cancel := context.WithTimeout(ctx, s.opts.ExtractTimeout)
		defer cancel()
		var err error
		result, err = s.extractor.Extract(cctx, transcript, s.opts.Clock())
		return err
	})
	if err != nil {
		return nil, newPipelineError(StageExtract, KindExtraction, "could not analyze transcript", err)
	}
	return result, nil
}

func (s *Service) validateResult(result *extract.Result) (*Analysis, *PipelineError) {
	var analysis *Analysis
	err := s.runStage(StageValidate, func() error {
		var violation *SchemaViolation
		analysis, violation = ValidateResult(result, s.opts.Location)
		if violation != nil {
			return violation
		}
		return nil
	})
	if err != nil {
		var violation *SchemaViolation
		msg := "analysis result did not match the expected schema"
		if errors.As(err, &violation) {
			msg = fmt.Sprintf("analysis result has an invalid %s field", violation.Field)
		}
		return nil, newPipelineError(StageValidate, KindSchemaViolation, msg, err)
	}
	return analysis, nil
}

func (s *Service) persistMemo(ctx context.Context, userID uuid.UUID, audioURL, transcript string, analysis *Analysis) (*Memo, *PipelineError) {
	m := &Memo{
		ID:          uuid.New(),
		UserID:      userID,
		RawText:     transcript,
		Summary:     analysis.Summary,
		ContentBody: analysis.ContentBody,
		PrimaryType: analysis.PrimaryType,
		Entities:    analysis.Entities,
		Status:      StatusCompleted,
		AudioURL:    &audioURL,
	}
	err := s.runStage(StagePersist, func() error {
		return s.repo.Insert(ctx, m)
	})
	if err != nil {
		return nil, newPipelineError(StagePersist, KindPersistence, "could not save memo", err)
	}
	return m, nil
}

// List returns a user's memos, newest first, with the total count.
func (s *Service) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Memo, int64, error) {
	return s.repo.ListByUser(ctx, userID, page, pageSize)
}

// Get returns a single memo, or nil when it does not exist.
func (s *Service) Get(ctx context.Context, id, userID uuid.UUID) (*Memo, error) {
	return s.repo.GetByID(ctx, id, userID)
}

// runStage executes fn and records its duration and failure metrics
// under the stage label.
func (s *Service) runStage(stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.PipelineStageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PipelineStageFailures.WithLabelValues(string(stage)).Inc()
	}
	return err
}

// publishAnalyzed emits the realtime event. Delivery is best effort:
// the memo is already durable and pg_notify fired with the insert.
func (s *Service) publishAnalyzed(ctx context.Context, m *Memo) {
	if s.publisher == nil {
		return
	}
	event := inats.MemoAnalyzedEvent{
		MemoID:      m.ID,
		UserID:      m.UserID,
		PrimaryType: string(m.PrimaryType),
		Summary:     m.Summary,
		CreatedAt:   m.CreatedAt,
	}
	if err := s.publisher.PublishMemoAnalyzed(ctx, event); err != nil {
		slog.Warn("publishing memo analyzed event", "error", err, "memo_id", m.ID)
	}
}

// fail logs the stage failure with debugging context and counts it.
// The returned error carries only the caller-safe message.
func (s *Service) fail(req AnalyzeRequest, perr *PipelineError) error {
	metrics.MemosAnalyzedTotal.WithLabelValues("failed").Inc()
	slog.Error("memo analysis failed",
		"stage", perr.Stage,
		"kind", perr.Kind,
		"user_id", req.UserID,
		"audio_url", req.AudioURL,
		"error", perr.Err,
	)
	return perr
}
