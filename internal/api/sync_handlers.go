package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerSyncRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getSyncManifest",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/manifest",
		Summary:     "Get sync manifest",
		Description: "Returns everything a device needs to decide what to sync: the library, all reading positions, and per-novel annotation counts, stamped with the server clock.",
		Tags:        []string{"Sync"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetSyncManifest)
}

// SyncManifestResponse is the device sync planning document.
type SyncManifestResponse struct {
	Novels           []NovelResponse    `json:"novels" doc:"Every novel in the library"`
	Positions        []PositionResponse `json:"positions" doc:"Every reading position"`
	AnnotationCounts map[string]int     `json:"annotation_counts" doc:"Annotation count per novel ID"`
	ServerTime       time.Time          `json:"server_time" doc:"Authoritative server clock"`
}

// SyncManifestInput wraps the manifest request for Huma.
type SyncManifestInput struct {
	AuthenticatedInput
}

// SyncManifestOutput wraps the manifest response for Huma.
type SyncManifestOutput struct {
	Body SyncManifestResponse
}

func (s *Server) handleGetSyncManifest(ctx context.Context, input *SyncManifestInput) (*SyncManifestOutput, error) {
	userID, err := s.authenticateRequest(ctx, input.Authorization)
	if err != nil {
		return nil, err
	}

	manifest, err := s.services.Position.Manifest(ctx, userID)
	if err != nil {
		return nil, err
	}

	resp := SyncManifestResponse{
		Novels:           make([]NovelResponse, 0, len(manifest.Novels)),
		Positions:        make([]PositionResponse, 0, len(manifest.Positions)),
		AnnotationCounts: manifest.AnnotationCounts,
		ServerTime:       manifest.ServerTime,
	}
	for _, novel := range manifest.Novels {
		resp.Novels = append(resp.Novels, mapNovelResponse(novel))
	}
	for _, pos := range manifest.Positions {
		resp.Positions = append(resp.Positions, mapPositionResponse(pos))
	}

	return &SyncManifestOutput{Body: resp}, nil
}
