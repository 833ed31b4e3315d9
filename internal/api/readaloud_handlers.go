package api

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/http/response"
	"github.com/folioapp/folio-server/internal/service"
)

func (s *Server) registerReadaloudRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "createReadaloudJob",
		Method:        http.MethodPost,
		Path:          "/api/v1/novels/{novelID}/readaloud",
		Summary:       "Start read-aloud synthesis",
		Description:   "Submits one chapter to the speech service and returns the tracking job",
		Tags:          []string{"Readaloud"},
		DefaultStatus: http.StatusCreated,
		Security:      []map[string][]string{{"bearer": {}}},
	}, s.handleCreateReadaloudJob)

	huma.Register(s.api, huma.Operation{
		OperationID: "listReadaloudJobs",
		Method:      http.MethodGet,
		Path:        "/api/v1/readaloud",
		Summary:     "List read-aloud jobs",
		Description: "Returns the caller's cached synthesis jobs, newest first",
		Tags:        []string{"Readaloud"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListReadaloudJobs)

	huma.Register(s.api, huma.Operation{
		OperationID: "listReadaloudVoices",
		Method:      http.MethodGet,
		Path:        "/api/v1/readaloud/voices",
		Summary:     "List available voices",
		Description: "Returns the speech service's voices, optionally filtered by language",
		Tags:        []string{"Readaloud"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListReadaloudVoices)

	huma.Register(s.api, huma.Operation{
		OperationID: "getReadaloudJob",
		Method:      http.MethodGet,
		Path:        "/api/v1/readaloud/{jobID}",
		Summary:     "Get read-aloud job",
		Description: "Returns job status and, once completed, its audio segment listing",
		Tags:        []string{"Readaloud"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetReadaloudJob)

	huma.Register(s.api, huma.Operation{
		OperationID: "cancelReadaloudJob",
		Method:      http.MethodDelete,
		Path:        "/api/v1/readaloud/{jobID}",
		Summary:     "Cancel read-aloud job",
		Description: "Stops a synthesis job and drops its cached audio",
		Tags:        []string{"Readaloud"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCancelReadaloudJob)
}

// === DTOs ===

// CreateReadaloudRequest asks for one chapter to be synthesized.
type CreateReadaloudRequest struct {
	ChapterIndex int     `json:"chapter_index" minimum:"0" doc:"Chapter to synthesize"`
	Voice        string  `json:"voice" validate:"required" doc:"Voice ID from the voices listing"`
	Rate         float64 `json:"rate,omitempty" minimum:"0.5" maximum:"2" doc:"Speech rate multiplier (default 1.0)"`
}

// CreateReadaloudInput wraps the create request for Huma.
type CreateReadaloudInput struct {
	AuthenticatedInput
	NovelID string `path:"novelID" doc:"Novel ID"`
	Body    CreateReadaloudRequest
}

// WordTimingInfo maps one spoken word to its offset in the audio.
type WordTimingInfo struct {
	Word     string  `json:"word" doc:"Spoken word"`
	StartSec float64 `json:"start_sec" doc:"Start offset in seconds"`
	EndSec   float64 `json:"end_sec" doc:"End offset in seconds"`
}

// ReadaloudSegmentInfo describes one audio chunk of a completed job.
type ReadaloudSegmentInfo struct {
	Index       int              `json:"index" doc:"Segment index"`
	Format      string           `json:"format" doc:"Audio format (mp3)"`
	DurationSec float64          `json:"duration_sec" doc:"Segment duration in seconds"`
	Timings     []WordTimingInfo `json:"timings,omitempty" doc:"Word-level timings for text highlighting"`
}

// ReadaloudJobResponse contains synthesis job data for API responses.
type ReadaloudJobResponse struct {
	ID           string                 `json:"id" doc:"Job ID"`
	NovelID      string                 `json:"novel_id" doc:"Novel the chapter belongs to"`
	ChapterIndex int                    `json:"chapter_index" doc:"Chapter being synthesized"`
	Voice        string                 `json:"voice" doc:"Voice used"`
	Status       string                 `json:"status" doc:"Job status: pending, processing, completed, failed"`
	Error        string                 `json:"error,omitempty" doc:"Failure reason when status is failed"`
	Segments     []ReadaloudSegmentInfo `json:"segments,omitempty" doc:"Audio segments, present once completed"`
	CreatedAt    time.Time              `json:"created_at" doc:"Job creation time"`
	UpdatedAt    time.Time              `json:"updated_at" doc:"Last status change"`
}

// ReadaloudJobOutput wraps a job response for Huma.
type ReadaloudJobOutput struct {
	Body ReadaloudJobResponse
}

// ReadaloudJobInput identifies one job.
type ReadaloudJobInput struct {
	AuthenticatedInput
	JobID string `path:"jobID" doc:"Job ID"`
}

// ReadaloudJobListOutput wraps the job listing for Huma.
type ReadaloudJobListOutput struct {
	Body struct {
		Jobs []ReadaloudJobResponse `json:"jobs" doc:"Cached synthesis jobs, newest first"`
	}
}

// VoicesInput contains the optional language filter for voice listing.
type VoicesInput struct {
	AuthenticatedInput
	Language string `query:"language" validate:"omitempty,max=20" doc:"Language filter, base code matches regional variants (en matches en-US)"`
}

// VoiceResponse describes one available voice.
type VoiceResponse struct {
	ID       string `json:"id" doc:"Voice ID"`
	Name     string `json:"name" doc:"Display name"`
	Language string `json:"language" doc:"Language code"`
	Gender   string `json:"gender,omitempty" doc:"Voice gender if reported"`
}

// VoicesOutput wraps the voice listing for Huma.
type VoicesOutput struct {
	Body struct {
		Voices []VoiceResponse `json:"voices" doc:"Available voices"`
	}
}

// === Handlers ===

func (s *Server) handleCreateReadaloudJob(ctx context.Context, input *CreateReadaloudInput) (*ReadaloudJobOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	job, err := s.services.Readaloud.CreateJob(ctx, userID, input.NovelID, serviceCreateReadaloudRequest(input.Body))
	if err != nil {
		return nil, err
	}

	return &ReadaloudJobOutput{Body: mapReadaloudJobResponse(job)}, nil
}

func (s *Server) handleGetReadaloudJob(ctx context.Context, input *ReadaloudJobInput) (*ReadaloudJobOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	job, err := s.services.Readaloud.GetJob(ctx, userID, input.JobID)
	if err != nil {
		return nil, err
	}

	return &ReadaloudJobOutput{Body: mapReadaloudJobResponse(job)}, nil
}

func (s *Server) handleListReadaloudJobs(ctx context.Context, input *AuthenticatedInput) (*ReadaloudJobListOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	jobs, err := s.services.Readaloud.ListJobs(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := &ReadaloudJobListOutput{}
	resp.Body.Jobs = make([]ReadaloudJobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp.Body.Jobs = append(resp.Body.Jobs, mapReadaloudJobResponse(job))
	}
	return resp, nil
}

func (s *Server) handleCancelReadaloudJob(ctx context.Context, input *ReadaloudJobInput) (*MessageOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	if err := s.services.Readaloud.Cancel(ctx, userID, input.JobID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Read-aloud job cancelled"}}, nil
}

func (s *Server) handleListReadaloudVoices(ctx context.Context, input *VoicesInput) (*VoicesOutput, error) {
	if _, err := s.authenticateRequest(ctx, input.Authorization); err != nil {
		return nil, err
	}

	voices, err := s.services.Readaloud.Voices(ctx, input.Language)
	if err != nil {
		return nil, err
	}

	resp := &VoicesOutput{}
	resp.Body.Voices = make([]VoiceResponse, 0, len(voices))
	for _, v := range voices {
		resp.Body.Voices = append(resp.Body.Voices, VoiceResponse{
			ID:       v.ID,
			Name:     v.Name,
			Language: v.Language,
			Gender:   v.Gender,
		})
	}
	return resp, nil
}

// handleSegmentAudio streams one audio segment of a completed job. Served
// outside Huma so playback clients get Range request support, with the
// token query parameter fallback for audio elements.
func (s *Server) handleSegmentAudio(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.rawRequestUserID(r)
	if !ok {
		response.Unauthorized(w, "Authentication required", s.logger)
		return
	}

	jobID := chi.URLParam(r, "jobID")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		response.BadRequest(w, "Invalid segment index", s.logger)
		return
	}

	audio, format, err := s.services.Readaloud.SegmentAudio(r.Context(), userID, jobID, index)
	if err != nil {
		response.HandleError(w, err, s.logger)
		return
	}

	w.Header().Set("Content-Type", audioContentType(format))
	w.Header().Set("Cache-Control", CacheOneDayPrivate) // Rendered segments are immutable

	// ServeContent handles Range requests so clients can scrub playback.
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(audio))
}

// === Helpers ===

func serviceCreateReadaloudRequest(req CreateReadaloudRequest) service.CreateReadaloudRequest {
	return service.CreateReadaloudRequest{
		ChapterIndex: req.ChapterIndex,
		Voice:        req.Voice,
		Rate:         req.Rate,
	}
}

func mapReadaloudJobResponse(job *domain.ReadaloudJob) ReadaloudJobResponse {
	resp := ReadaloudJobResponse{
		ID:           job.ID,
		NovelID:      job.NovelID,
		ChapterIndex: job.ChapterIndex,
		Voice:        job.Voice,
		Status:       string(job.Status),
		Error:        job.Error,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
	for _, seg := range job.Segments {
		info := ReadaloudSegmentInfo{
			Index:       seg.Index,
			Format:      seg.Format,
			DurationSec: seg.DurationSec,
		}
		for _, t := range seg.Timings {
			info.Timings = append(info.Timings, WordTimingInfo{
				Word:     t.Word,
				StartSec: t.StartSec,
				EndSec:   t.EndSec,
			})
		}
		resp.Segments = append(resp.Segments, info)
	}
	return resp
}

func audioContentType(format string) string {
	switch strings.ToLower(format) {
	case "mp3":
		return "audio/mpeg"
	case "ogg", "opus":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
