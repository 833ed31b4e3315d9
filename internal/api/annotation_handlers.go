package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/service"
)

func (s *Server) registerAnnotationRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "syncAnnotations",
		Method:      http.MethodPost,
		Path:        "/api/v1/novels/{novelID}/annotations/sync",
		Summary:     "Sync annotations",
		Description: "Reconciles a batch of offline annotation changes against the server. Deletions always win, new records are inserted, and concurrent edits resolve by last-write-wins on updated_at with ties going to the client. The response reports per-record outcomes and the full authoritative snapshot for the novel.",
		Tags:        []string{"Annotations"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSyncAnnotations)

	huma.Register(s.api, huma.Operation{
		OperationID: "listAnnotations",
		Method:      http.MethodGet,
		Path:        "/api/v1/novels/{novelID}/annotations",
		Summary:     "List annotations",
		Description: "Returns the novel's annotations ordered by chapter and start offset, optionally filtered to one chapter",
		Tags:        []string{"Annotations"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListAnnotations)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createAnnotation",
		Method:        http.MethodPost,
		Path:          "/api/v1/novels/{novelID}/annotations",
		Summary:       "Create annotation",
		Description:   "Creates a single annotation outside of a sync batch. The ID may be client-generated; the server assigns one when omitted.",
		Tags:          []string{"Annotations"},
		Security:      []map[string][]string{{"bearer": {}}},
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateAnnotation)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateAnnotation",
		Method:      http.MethodPatch,
		Path:        "/api/v1/annotations/{id}",
		Summary:     "Update annotation",
		Description: "Changes the color or note of one annotation",
		Tags:        []string{"Annotations"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpdateAnnotation)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteAnnotation",
		Method:      http.MethodDelete,
		Path:        "/api/v1/annotations/{id}",
		Summary:     "Delete annotation",
		Description: "Deletes one annotation",
		Tags:        []string{"Annotations"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteAnnotation)
}

// === DTOs ===

// AnnotationPayload is the wire form of an annotation in requests.
// Timestamps are flexible: e-reader plugins send epoch milliseconds,
// web clients send RFC3339.
// Every field is schema-optional and unconstrained: tombstones carry
// only an ID, and a bad record must land in the sync response's
// validation_failures rather than rejecting the whole batch, so range
// checks live in the domain layer, not the schema.
type AnnotationPayload struct {
	ID                   string    `json:"id,omitempty" doc:"Client-generated annotation ID"`
	ChapterIndex         int       `json:"chapter_index,omitempty" doc:"Zero-based chapter index"`
	ChapterURL           string    `json:"chapter_url,omitempty" doc:"Source URL of the chapter"`
	Kind                 string    `json:"kind,omitempty" doc:"Annotation kind (highlight, note, underline)"`
	Color                string    `json:"color,omitempty" doc:"Display color; unknown values fall back to yellow"`
	SelectedText         string    `json:"selected_text,omitempty" doc:"The annotated text"`
	Note                 string    `json:"note,omitempty" doc:"Attached note"`
	StartOffset          int       `json:"start_offset,omitempty" doc:"Rune offset where the range starts"`
	EndOffset            int       `json:"end_offset,omitempty" doc:"Rune offset where the range ends (exclusive)"`
	ParagraphIndex       *int      `json:"paragraph_index,omitempty" doc:"Paragraph hint for re-anchoring"`
	ParagraphTextPreview string    `json:"paragraph_text_preview,omitempty" doc:"Paragraph text hint for re-anchoring"`
	CreatedAt            *FlexTime `json:"created_at,omitempty" doc:"Client creation time (RFC3339 or epoch millis)"`
	UpdatedAt            *FlexTime `json:"updated_at,omitempty" doc:"Client modification time (RFC3339 or epoch millis)"`
}

// AnnotationChangePayload is one record in a sync batch: either a full
// annotation or a tombstone marked with deleted.
type AnnotationChangePayload struct {
	AnnotationPayload
	Deleted bool `json:"deleted,omitempty" doc:"Tombstone flag; only the ID is needed when set"`
}

// AnnotationSyncRequest is the request body for a sync batch.
type AnnotationSyncRequest struct {
	Annotations  []AnnotationChangePayload `json:"annotations" doc:"Changes accumulated while offline, in client order"`
	LastSyncTime *FlexTime                 `json:"last_sync_time,omitempty" doc:"Client's last known server time; accepted for compatibility, the response always carries the full snapshot"`
}

// AnnotationSyncInput wraps the sync request for Huma.
type AnnotationSyncInput struct {
	AuthenticatedInput
	NovelID string `path:"novelID" doc:"Novel ID"`
	Body    AnnotationSyncRequest
}

// AnnotationResponse contains annotation data in API responses.
type AnnotationResponse struct {
	ID                   string    `json:"id" doc:"Annotation ID"`
	NovelID              string    `json:"novel_id" doc:"Novel the annotation belongs to"`
	ChapterIndex         int       `json:"chapter_index" doc:"Zero-based chapter index"`
	ChapterURL           string    `json:"chapter_url,omitempty" doc:"Source URL of the chapter"`
	Kind                 string    `json:"kind" doc:"Annotation kind"`
	Color                string    `json:"color" doc:"Display color"`
	SelectedText         string    `json:"selected_text" doc:"The annotated text"`
	Note                 string    `json:"note,omitempty" doc:"Attached note"`
	StartOffset          int       `json:"start_offset" doc:"Rune offset where the range starts"`
	EndOffset            int       `json:"end_offset" doc:"Rune offset where the range ends (exclusive)"`
	ParagraphIndex       *int      `json:"paragraph_index,omitempty" doc:"Paragraph hint for re-anchoring"`
	ParagraphTextPreview string    `json:"paragraph_text_preview,omitempty" doc:"Paragraph text hint for re-anchoring"`
	CreatedAt            time.Time `json:"created_at" doc:"Creation time"`
	UpdatedAt            time.Time `json:"updated_at" doc:"Last modification time"`
	SyncedAt             time.Time `json:"synced_at" doc:"When the server last accepted this record"`
}

// ConflictResponse reports a client edit that lost last-write-wins.
type ConflictResponse struct {
	ID              string    `json:"id" doc:"Annotation ID"`
	ClientUpdatedAt time.Time `json:"client_updated_at" doc:"The client's modification time"`
	ServerUpdatedAt time.Time `json:"server_updated_at" doc:"The newer server modification time"`
}

// SyncFailureResponse reports a record skipped by validation.
type SyncFailureResponse struct {
	ID     string `json:"id" doc:"Annotation ID, may be empty when the record carried none"`
	Reason string `json:"reason" doc:"Why the record was rejected"`
}

// AnnotationSyncResponse is the response body for a sync batch.
type AnnotationSyncResponse struct {
	Created            int                   `json:"created" doc:"Records inserted"`
	Updated            int                   `json:"updated" doc:"Records overwritten by newer client edits"`
	Deleted            int                   `json:"deleted" doc:"Records removed by tombstones"`
	Conflicts          []ConflictResponse    `json:"conflicts" doc:"Client edits rejected as stale"`
	ValidationFailures []SyncFailureResponse `json:"validation_failures" doc:"Records skipped by validation"`
	ServerTime         time.Time             `json:"server_time" doc:"Authoritative server clock for the batch"`
	Annotations        []AnnotationResponse  `json:"annotations" doc:"Full post-sync snapshot, ordered by chapter and start offset"`
}

// AnnotationSyncOutput wraps the sync response for Huma.
type AnnotationSyncOutput struct {
	Body AnnotationSyncResponse
}

// ListAnnotationsInput wraps the list request for Huma.
type ListAnnotationsInput struct {
	AuthenticatedInput
	NovelID      string `path:"novelID" doc:"Novel ID"`
	ChapterIndex *int   `query:"chapter_index" doc:"Restrict to one chapter"`
}

// AnnotationListOutput wraps the list response for Huma.
type AnnotationListOutput struct {
	Body struct {
		Annotations []AnnotationResponse `json:"annotations" doc:"Annotations ordered by chapter and start offset"`
	}
}

// CreateAnnotationInput wraps the create request for Huma.
type CreateAnnotationInput struct {
	AuthenticatedInput
	NovelID string `path:"novelID" doc:"Novel ID"`
	Body    AnnotationPayload
}

// AnnotationOutput wraps a single annotation response for Huma.
type AnnotationOutput struct {
	Body AnnotationResponse
}

// UpdateAnnotationRequest is the request body for interactive edits.
type UpdateAnnotationRequest struct {
	Color *string `json:"color,omitempty" doc:"New display color"`
	Note  *string `json:"note,omitempty" validate:"omitempty,max=10000" doc:"New note text, empty string clears it"`
}

// UpdateAnnotationInput wraps the update request for Huma.
type UpdateAnnotationInput struct {
	AuthenticatedInput
	ID   string `path:"id" doc:"Annotation ID"`
	Body UpdateAnnotationRequest
}

// AnnotationIDInput identifies one annotation by path parameter.
type AnnotationIDInput struct {
	AuthenticatedInput
	ID string `path:"id" doc:"Annotation ID"`
}

// === Handlers ===

func (s *Server) handleSyncAnnotations(ctx context.Context, input *AnnotationSyncInput) (*AnnotationSyncOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	changes := make([]domain.AnnotationChange, 0, len(input.Body.Annotations))
	for _, payload := range input.Body.Annotations {
		changes = append(changes, payload.toChange(userID, input.NovelID))
	}

	result, err := s.services.Annotation.Sync(ctx, userID, input.NovelID, changes)
	if err != nil {
		return nil, err
	}

	return &AnnotationSyncOutput{Body: mapSyncResponse(result)}, nil
}

func (s *Server) handleListAnnotations(ctx context.Context, input *ListAnnotationsInput) (*AnnotationListOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	annotations, err := s.services.Annotation.List(ctx, userID, input.NovelID, input.ChapterIndex)
	if err != nil {
		return nil, err
	}

	out := &AnnotationListOutput{}
	out.Body.Annotations = mapAnnotationResponses(annotations)
	return out, nil
}

func (s *Server) handleCreateAnnotation(ctx context.Context, input *CreateAnnotationInput) (*AnnotationOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	created, err := s.services.Annotation.Create(ctx, userID, input.NovelID, input.Body.toDomain(userID, input.NovelID))
	if err != nil {
		return nil, err
	}

	return &AnnotationOutput{Body: mapAnnotationResponse(created)}, nil
}

func (s *Server) handleUpdateAnnotation(ctx context.Context, input *UpdateAnnotationInput) (*AnnotationOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	updated, err := s.services.Annotation.Update(ctx, userID, input.ID, service.UpdateAnnotationRequest{
		Color: input.Body.Color,
		Note:  input.Body.Note,
	})
	if err != nil {
		return nil, err
	}

	return &AnnotationOutput{Body: mapAnnotationResponse(updated)}, nil
}

func (s *Server) handleDeleteAnnotation(ctx context.Context, input *AnnotationIDInput) (*MessageOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	if err := s.services.Annotation.Delete(ctx, userID, input.ID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Annotation deleted"}}, nil
}

// === Helpers ===

// toDomain converts a wire payload to a domain annotation. Zero client
// timestamps stay zero; the reconciler substitutes the server clock.
func (p AnnotationPayload) toDomain(ownerID, novelID string) *domain.Annotation {
	a := &domain.Annotation{
		ID:                   p.ID,
		OwnerID:              ownerID,
		NovelID:              novelID,
		ChapterIndex:         p.ChapterIndex,
		ChapterURL:           p.ChapterURL,
		Kind:                 domain.AnnotationKind(p.Kind),
		Color:                domain.AnnotationColor(p.Color),
		SelectedText:         p.SelectedText,
		Note:                 p.Note,
		StartOffset:          p.StartOffset,
		EndOffset:            p.EndOffset,
		ParagraphIndex:       p.ParagraphIndex,
		ParagraphTextPreview: p.ParagraphTextPreview,
	}
	if p.CreatedAt != nil {
		a.CreatedAt = p.CreatedAt.ToTime()
	}
	if p.UpdatedAt != nil {
		a.UpdatedAt = p.UpdatedAt.ToTime()
	}
	return a
}

// toChange resolves the wire shape into the tagged change form so the
// service layer never sniffs deleted flags.
func (p AnnotationChangePayload) toChange(ownerID, novelID string) domain.AnnotationChange {
	if p.Deleted {
		return domain.AnnotationChange{ID: p.ID, Deleted: true}
	}
	return domain.AnnotationChange{
		ID:         p.ID,
		Annotation: p.AnnotationPayload.toDomain(ownerID, novelID),
	}
}

func mapAnnotationResponse(a *domain.Annotation) AnnotationResponse {
	return AnnotationResponse{
		ID:                   a.ID,
		NovelID:              a.NovelID,
		ChapterIndex:         a.ChapterIndex,
		ChapterURL:           a.ChapterURL,
		Kind:                 string(a.Kind),
		Color:                string(a.Color),
		SelectedText:         a.SelectedText,
		Note:                 a.Note,
		StartOffset:          a.StartOffset,
		EndOffset:            a.EndOffset,
		ParagraphIndex:       a.ParagraphIndex,
		ParagraphTextPreview: a.ParagraphTextPreview,
		CreatedAt:            a.CreatedAt,
		UpdatedAt:            a.UpdatedAt,
		SyncedAt:             a.SyncedAt,
	}
}

func mapAnnotationResponses(annotations []*domain.Annotation) []AnnotationResponse {
	out := make([]AnnotationResponse, 0, len(annotations))
	for _, a := range annotations {
		out = append(out, mapAnnotationResponse(a))
	}
	return out
}

func mapSyncResponse(result *domain.AnnotationSyncResult) AnnotationSyncResponse {
	resp := AnnotationSyncResponse{
		Created:            result.Created,
		Updated:            result.Updated,
		Deleted:            result.Deleted,
		Conflicts:          make([]ConflictResponse, 0, len(result.Conflicts)),
		ValidationFailures: make([]SyncFailureResponse, 0, len(result.ValidationFailures)),
		ServerTime:         result.ServerTime,
		Annotations:        mapAnnotationResponses(result.Annotations),
	}
	for _, c := range result.Conflicts {
		resp.Conflicts = append(resp.Conflicts, ConflictResponse{
			ID:              c.ID,
			ClientUpdatedAt: c.ClientUpdatedAt,
			ServerUpdatedAt: c.ServerUpdatedAt,
		})
	}
	for _, f := range result.ValidationFailures {
		resp.ValidationFailures = append(resp.ValidationFailures, SyncFailureResponse{
			ID:     f.ID,
			Reason: f.Reason,
		})
	}
	return resp
}
