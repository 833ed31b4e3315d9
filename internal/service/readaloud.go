package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/folioapp/folio-server/internal/domain"
	domainerrors "github.com/folioapp/folio-server/internal/errors"
	"github.com/folioapp/folio-server/internal/normalize"
	"github.com/folioapp/folio-server/internal/tts"
)

// ReadaloudService turns chapters into synthesized speech by proxying
// the external speech vendor. Job records and fetched audio live in the
// short-lived cache; the polling worker settles jobs in the background.
type ReadaloudService struct {
	client   *tts.Client
	cache    *tts.Cache
	novels   *NovelService
	chapters *ChapterService
	logger   *slog.Logger
}

// NewReadaloudService creates a new readaloud service.
func NewReadaloudService(
	client *tts.Client,
	cache *tts.Cache,
	novels *NovelService,
	chapters *ChapterService,
	logger *slog.Logger,
) *ReadaloudService {
	return &ReadaloudService{
		client:   client,
		cache:    cache,
		novels:   novels,
		chapters: chapters,
		logger:   logger,
	}
}

// CreateReadaloudRequest asks for one chapter to be synthesized.
type CreateReadaloudRequest struct {
	ChapterIndex int     `json:"chapter_index" validate:"min=0"`
	Voice        string  `json:"voice" validate:"required"`
	Rate         float64 `json:"rate,omitempty" validate:"omitempty,min=0.5,max=2"`
}

// CreateJob submits a chapter for synthesis. The chapter is fetched
// first if its text is not cached yet, so a job can be started straight
// from the table of contents.
func (s *ReadaloudService) CreateJob(ctx context.Context, ownerID, novelID string, req CreateReadaloudRequest) (*domain.ReadaloudJob, error) {
	if err := validate.Validate(req); err != nil {
		return nil, err
	}

	chapter, err := s.chapters.GetChapter(ctx, ownerID, novelID, req.ChapterIndex)
	if err != nil {
		return nil, err
	}
	if chapter.Content == "" {
		return nil, domainerrors.Conflict("chapter has no text to synthesize")
	}

	rate := req.Rate
	if rate == 0 {
		rate = 1.0
	}

	vendorJob, err := s.client.CreateJob(ctx, chapter.Content, req.Voice, rate)
	if err != nil {
		return nil, vendorError(err)
	}

	now := time.Now()
	job := &domain.ReadaloudJob{
		ID:           vendorJob.ID,
		OwnerID:      ownerID,
		NovelID:      novelID,
		ChapterIndex: req.ChapterIndex,
		Voice:        req.Voice,
		Status:       vendorJob.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if job.Status == "" {
		job.Status = domain.ReadaloudStatusPending
	}

	if err := s.cache.PutJob(job); err != nil {
		return nil, fmt.Errorf("cache readaloud job: %w", err)
	}

	s.logger.Info("readaloud job created",
		"job_id", job.ID,
		"novel_id", novelID,
		"chapter_idx", req.ChapterIndex,
		"voice", req.Voice,
	)

	return job, nil
}

// GetJob returns one of the owner's jobs. Jobs age out of the cache an
// hour after their last update; an expired job reads as not found.
func (s *ReadaloudService) GetJob(ctx context.Context, ownerID, jobID string) (*domain.ReadaloudJob, error) {
	job, err := s.cache.GetJob(jobID)
	if err != nil {
		if errors.Is(err, tts.ErrCacheMiss) {
			return nil, domainerrors.NotFound("readaloud job not found or expired")
		}
		return nil, fmt.Errorf("get readaloud job: %w", err)
	}
	if job.OwnerID != ownerID {
		return nil, domainerrors.NotFound("readaloud job not found or expired")
	}
	return job, nil
}

// ListJobs returns the owner's cached jobs, newest first.
func (s *ReadaloudService) ListJobs(ctx context.Context, ownerID string) ([]*domain.ReadaloudJob, error) {
	jobs, err := s.cache.JobsForOwner(ownerID)
	if err != nil {
		return nil, fmt.Errorf("list readaloud jobs: %w", err)
	}
	return jobs, nil
}

// SegmentAudio streams one segment of a completed job. Audio is served
// from the cache when present and fetched from the vendor on a miss.
func (s *ReadaloudService) SegmentAudio(ctx context.Context, ownerID, jobID string, index int) ([]byte, string, error) {
	job, err := s.GetJob(ctx, ownerID, jobID)
	if err != nil {
		return nil, "", err
	}
	if job.Status != domain.ReadaloudStatusCompleted {
		return nil, "", domainerrors.Conflict("readaloud job is still rendering")
	}
	if index < 0 || index >= len(job.Segments) {
		return nil, "", domainerrors.NotFound("segment not found")
	}
	format := job.Segments[index].Format

	audio, err := s.cache.GetSegmentAudio(jobID, index)
	if err == nil {
		return audio, format, nil
	}
	if !errors.Is(err, tts.ErrCacheMiss) {
		return nil, "", fmt.Errorf("read segment audio: %w", err)
	}

	// Cache expired under the job record; ask the vendor again.
	vendorJob, err := s.client.GetJob(ctx, jobID)
	if err != nil {
		return nil, "", vendorError(err)
	}
	var audioURL string
	for _, seg := range vendorJob.Segments {
		if seg.Index == index {
			audioURL = seg.AudioURL
			break
		}
	}
	if audioURL == "" {
		return nil, "", domainerrors.NotFound("segment not found")
	}

	audio, err = s.client.FetchSegmentAudio(ctx, jobID, audioURL)
	if err != nil {
		return nil, "", vendorError(err)
	}

	if err := s.cache.PutSegmentAudio(jobID, index, audio); err != nil {
		s.logger.Warn("failed to cache segment audio", "job_id", jobID, "segment", index, "error", err)
	}

	return audio, format, nil
}

// Cancel stops a job and drops its cached record and audio. Cancelling
// a job the vendor already forgot still clears the local record.
func (s *ReadaloudService) Cancel(ctx context.Context, ownerID, jobID string) error {
	if _, err := s.GetJob(ctx, ownerID, jobID); err != nil {
		return err
	}

	if err := s.client.DeleteJob(ctx, jobID); err != nil && !errors.Is(err, tts.ErrNotFound) {
		return vendorError(err)
	}

	if err := s.cache.DeleteJob(jobID); err != nil {
		return fmt.Errorf("drop readaloud job: %w", err)
	}

	s.logger.Info("readaloud job cancelled", "job_id", jobID)
	return nil
}

// Voices lists the vendor's voices, optionally narrowed to a language.
// Matching is on the base language code, so "en" finds "en-US" voices.
func (s *ReadaloudService) Voices(ctx context.Context, language string) ([]domain.ReadaloudVoice, error) {
	voices, err := s.client.Voices(ctx)
	if err != nil {
		return nil, vendorError(err)
	}

	if language == "" {
		return voices, nil
	}

	want := normalize.LanguageCode(language)
	filtered := make([]domain.ReadaloudVoice, 0, len(voices))
	for _, v := range voices {
		if normalize.LanguageCode(v.Language) == want {
			filtered = append(filtered, v)
		}
	}
	return filtered, nil
}

// vendorError maps speech vendor failures onto domain errors.
func vendorError(err error) error {
	switch {
	case errors.Is(err, tts.ErrNotFound):
		return domainerrors.NotFound("readaloud job not found or expired").WithCause(err)
	case errors.Is(err, tts.ErrRateLimited):
		return domainerrors.RateLimited("speech service is busy, try again shortly").WithCause(err)
	case errors.Is(err, tts.ErrBadRequest):
		return domainerrors.Validation("speech service rejected the request").WithCause(err)
	default:
		return domainerrors.Upstream("speech service unavailable").WithCause(err)
	}
}
