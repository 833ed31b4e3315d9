// Package tts talks to the speech synthesis sidecar that renders chapter
// text into audio. The sidecar owns the synthesis pipeline; this package
// submits jobs, polls their status, pulls finished segment audio, and
// caches results locally so repeat listens don't re-render.
package tts

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/folioapp/folio-server/internal/domain"
)

const (
	// HTTP client settings
	defaultTimeout = 60 * time.Second

	// Segment audio runs a few MB per minute of speech.
	maxAudioBytes = 50 << 20
)

// Client is an HTTP client for the speech vendor sidecar.
type Client struct {
	http    *http.Client
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a vendor client against the given base URL,
// e.g. http://localhost:5050.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		http: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Job is the vendor's view of a synthesis job. It carries no owner or
// novel context; Folio attaches those when it records the job.
type Job struct {
	ID       string
	Status   domain.ReadaloudStatus
	Voice    string
	Error    string
	Segments []Segment
}

// Segment is one rendered audio chunk as reported by the vendor.
// AudioURL is vendor-relative and only meaningful to this client.
type Segment struct {
	ID          string
	Index       int
	AudioURL    string
	Format      string
	DurationSec float64
	Timings     []domain.WordTiming
}

// CreateJob submits text for synthesis and returns the pending job.
// A rate of 0 means the vendor default speed.
func (c *Client) CreateJob(ctx context.Context, text, voice string, rate float64) (*Job, error) {
	if strings.TrimSpace(text) == "" {
		return nil, wrapError("createJob", "", ErrBadRequest)
	}

	payload := createJobRequest{
		Text:  text,
		Voice: voice,
		Rate:  rate,
	}

	body, err := c.doRequest(ctx, http.MethodPost, "/v1/tts/jobs", payload)
	if err != nil {
		return nil, wrapError("createJob", "", err)
	}

	var raw rawJob
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, wrapError("createJob", "", fmt.Errorf("parse response: %w", err))
	}
	if raw.JobID == "" {
		return nil, wrapError("createJob", "", fmt.Errorf("vendor returned no job ID"))
	}

	return jobFromRaw(&raw), nil
}

// GetJob fetches the current status of a job, including segments and
// word timings once the vendor has finished rendering.
func (c *Client) GetJob(ctx context.Context, jobID string) (*Job, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/tts/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, wrapError("getJob", jobID, err)
	}

	var raw rawJob
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, wrapError("getJob", jobID, fmt.Errorf("parse response: %w", err))
	}

	return jobFromRaw(&raw), nil
}

// DeleteJob removes a job and its rendered audio from the vendor.
func (c *Client) DeleteJob(ctx context.Context, jobID string) error {
	_, err := c.doRequest(ctx, http.MethodDelete, "/v1/tts/jobs/"+url.PathEscape(jobID), nil)
	if err != nil {
		return wrapError("deleteJob", jobID, err)
	}
	return nil
}

// FetchSegmentAudio downloads the rendered audio for one segment. The
// audioURL comes from a Segment returned by GetJob and may be relative
// to the vendor base URL.
func (c *Client) FetchSegmentAudio(ctx context.Context, jobID, audioURL string) ([]byte, error) {
	full, err := c.resolveURL(audioURL)
	if err != nil {
		return nil, wrapError("segment", jobID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return nil, wrapError("segment", jobID, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", "folio-server/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, wrapError("segment", jobID, fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	if err := statusError(resp.StatusCode); err != nil {
		return nil, wrapError("segment", jobID, err)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, wrapError("segment", jobID, fmt.Errorf("read audio: %w", err))
	}
	return data, nil
}

// Voices lists the voices the vendor offers.
func (c *Client) Voices(ctx context.Context) ([]domain.ReadaloudVoice, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/v1/tts/voices", nil)
	if err != nil {
		return nil, wrapError("voices", "", err)
	}

	var raw rawVoiceList
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, wrapError("voices", "", fmt.Errorf("parse response: %w", err))
	}

	voices := make([]domain.ReadaloudVoice, 0, len(raw.Voices))
	for _, v := range raw.Voices {
		voices = append(voices, domain.ReadaloudVoice{
			ID:       v.ID,
			Name:     v.Name,
			Language: v.Locale,
			Gender:   v.Gender,
		})
	}
	return voices, nil
}

// Health checks whether the vendor sidecar is reachable.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return wrapError("health", "", err)
	}
	return nil
}

// doRequest executes a JSON request against the vendor.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "folio-server/1.0")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("tts vendor request",
		"method", method,
		"path", path,
	)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := statusError(resp.StatusCode); err != nil {
		if err == ErrBadRequest || err == ErrVendor {
			return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(body)))
		}
		return nil, err
	}
	return body, nil
}

// statusError maps a vendor HTTP status to a sentinel error, or nil for
// success statuses.
func statusError(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrRateLimited
	case code == http.StatusBadRequest:
		return ErrBadRequest
	case code >= 500:
		return ErrVendor
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}

// resolveURL makes a vendor audio URL absolute.
func (c *Client) resolveURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("empty audio URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse audio URL: %w", err)
	}
	if u.IsAbs() {
		return raw, nil
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return c.baseURL + raw, nil
}

// Vendor wire types. The sidecar reports word timings in milliseconds
// and formats as MIME types; conversion to domain shapes happens here.

type createJobRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Rate  float64 `json:"rate,omitempty"`
}

type rawJob struct {
	JobID    string       `json:"job_id"`
	Status   string       `json:"status"`
	Voice    string       `json:"voice"`
	Error    string       `json:"error"`
	Segments []rawSegment `json:"segments"`
}

type rawSegment struct {
	ID          string          `json:"id"`
	Index       int             `json:"index"`
	AudioURL    string          `json:"audio_url"`
	Format      string          `json:"format"`
	Duration    float64         `json:"duration"`
	WordTimings []rawWordTiming `json:"word_timings"`
}

type rawWordTiming struct {
	Text     string  `json:"text"`
	Offset   float64 `json:"offset"`   // milliseconds
	Duration float64 `json:"duration"` // milliseconds
}

type rawVoiceList struct {
	Voices []rawVoice `json:"voices"`
}

type rawVoice struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Gender string `json:"gender"`
	Locale string `json:"locale"`
}

// jobFromRaw converts a vendor job response.
func jobFromRaw(raw *rawJob) *Job {
	job := &Job{
		ID:     raw.JobID,
		Status: domain.ReadaloudStatus(raw.Status),
		Voice:  raw.Voice,
		Error:  raw.Error,
	}
	for _, seg := range raw.Segments {
		job.Segments = append(job.Segments, segmentFromRaw(&seg))
	}
	return job
}

// segmentFromRaw converts one vendor segment, normalizing the audio
// format and deriving a duration from word timings when the vendor
// omits one.
func segmentFromRaw(raw *rawSegment) Segment {
	timings := make([]domain.WordTiming, 0, len(raw.WordTimings))
	for _, wt := range raw.WordTimings {
		timings = append(timings, domain.WordTiming{
			Word:     wt.Text,
			StartSec: wt.Offset / 1000,
			EndSec:   (wt.Offset + wt.Duration) / 1000,
		})
	}

	duration := raw.Duration
	if duration == 0 && len(timings) > 0 {
		duration = timings[len(timings)-1].EndSec
	}

	return Segment{
		ID:          raw.ID,
		Index:       raw.Index,
		AudioURL:    raw.AudioURL,
		Format:      normalizeFormat(raw.Format),
		DurationSec: duration,
		Timings:     timings,
	}
}

// normalizeFormat turns vendor MIME types ("audio/mpeg") into short
// format names ("mp3").
func normalizeFormat(format string) string {
	format = strings.TrimPrefix(strings.ToLower(format), "audio/")
	switch format {
	case "mpeg", "":
		return "mp3"
	default:
		return format
	}
}
