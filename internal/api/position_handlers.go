package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/folioapp/folio-server/internal/domain"
	"github.com/folioapp/folio-server/internal/service"
)

func (s *Server) registerPositionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "reportPosition",
		Method:      http.MethodPut,
		Path:        "/api/v1/novels/{novelID}/position",
		Summary:     "Report reading position",
		Description: "Upserts the reading position for a novel. The newest updated_at wins; the response carries whichever position stands after the write, so a stale device learns the fresher one in the same round trip.",
		Tags:        []string{"Positions"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleReportPosition)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPosition",
		Method:      http.MethodGet,
		Path:        "/api/v1/novels/{novelID}/position",
		Summary:     "Get reading position",
		Description: "Returns the current reading position for a novel",
		Tags:        []string{"Positions"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetPosition)

	huma.Register(s.api, huma.Operation{
		OperationID: "deletePosition",
		Method:      http.MethodDelete,
		Path:        "/api/v1/novels/{novelID}/position",
		Summary:     "Delete reading position",
		Description: "Clears the reading position for a novel",
		Tags:        []string{"Positions"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeletePosition)

	huma.Register(s.api, huma.Operation{
		OperationID: "continueReading",
		Method:      http.MethodGet,
		Path:        "/api/v1/positions",
		Summary:     "Continue reading",
		Description: "Returns the most recently touched reading positions across the library",
		Tags:        []string{"Positions"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleContinueReading)
}

// === DTOs ===

// PositionResponse contains reading position data in API responses.
type PositionResponse struct {
	NovelID      string    `json:"novel_id" doc:"Novel ID"`
	ChapterIndex int       `json:"chapter_index" doc:"Zero-based chapter index"`
	Offset       int       `json:"offset" doc:"Rune offset within the chapter"`
	Percent      float64   `json:"percent" doc:"Progress through the novel, 0.0 to 1.0"`
	UpdatedAt    time.Time `json:"updated_at" doc:"When the reader was last here"`
	SyncedAt     time.Time `json:"synced_at" doc:"When the server last accepted this position"`
}

// PositionOutput wraps a single position response for Huma.
type PositionOutput struct {
	Body PositionResponse
}

// ReportPositionRequest is the request body for position reports.
type ReportPositionRequest struct {
	ChapterIndex int       `json:"chapter_index" minimum:"0" doc:"Zero-based chapter index"`
	Offset       int       `json:"offset" minimum:"0" doc:"Rune offset within the chapter"`
	Percent      float64   `json:"percent" minimum:"0" maximum:"1" doc:"Progress through the novel, 0.0 to 1.0"`
	UpdatedAt    *FlexTime `json:"updated_at,omitempty" doc:"Client clock for the report (RFC3339 or epoch millis); defaults to server time"`
}

// ReportPositionInput wraps the position report for Huma.
type ReportPositionInput struct {
	AuthenticatedInput
	NovelID string `path:"novelID" doc:"Novel ID"`
	Body    ReportPositionRequest
}

// PositionNovelInput identifies a position by novel path parameter.
type PositionNovelInput struct {
	AuthenticatedInput
	NovelID string `path:"novelID" doc:"Novel ID"`
}

// ContinueReadingInput wraps the continue reading request for Huma.
type ContinueReadingInput struct {
	AuthenticatedInput
	Limit int `query:"limit" doc:"Maximum positions to return (default 20, max 100)"`
}

// ContinueReadingOutput wraps the continue reading response for Huma.
type ContinueReadingOutput struct {
	Body struct {
		Positions []PositionResponse `json:"positions" doc:"Positions ordered by most recent activity"`
	}
}

// === Handlers ===

func (s *Server) handleReportPosition(ctx context.Context, input *ReportPositionInput) (*PositionOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	req := service.ReportPositionRequest{
		ChapterIndex: input.Body.ChapterIndex,
		Offset:       input.Body.Offset,
		Percent:      input.Body.Percent,
	}
	if input.Body.UpdatedAt != nil {
		req.UpdatedAt = input.Body.UpdatedAt.ToTime()
	}

	pos, err := s.services.Position.Report(ctx, userID, input.NovelID, req)
	if err != nil {
		return nil, err
	}

	return &PositionOutput{Body: mapPositionResponse(pos)}, nil
}

func (s *Server) handleGetPosition(ctx context.Context, input *PositionNovelInput) (*PositionOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	pos, err := s.services.Position.Get(ctx, userID, input.NovelID)
	if err != nil {
		return nil, err
	}

	return &PositionOutput{Body: mapPositionResponse(pos)}, nil
}

func (s *Server) handleDeletePosition(ctx context.Context, input *PositionNovelInput) (*MessageOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	if err := s.services.Position.Delete(ctx, userID, input.NovelID); err != nil {
		return nil, err
	}

	return &MessageOutput{Body: MessageResponse{Message: "Position cleared"}}, nil
}

func (s *Server) handleContinueReading(ctx context.Context, input *ContinueReadingInput) (*ContinueReadingOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	positions, err := s.services.Position.ContinueReading(ctx, userID, input.Limit)
	if err != nil {
		return nil, err
	}

	out := &ContinueReadingOutput{}
	out.Body.Positions = make([]PositionResponse, 0, len(positions))
	for _, pos := range positions {
		out.Body.Positions = append(out.Body.Positions, mapPositionResponse(pos))
	}
	return out, nil
}

// === Helpers ===

func mapPositionResponse(pos *domain.ReadingPosition) PositionResponse {
	return PositionResponse{
		NovelID:      pos.NovelID,
		ChapterIndex: pos.ChapterIndex,
		Offset:       pos.Offset,
		Percent:      pos.Percent,
		UpdatedAt:    pos.UpdatedAt,
		SyncedAt:     pos.SyncedAt,
	}
}
