package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/folioapp/folio-server/internal/backup"
	"github.com/folioapp/folio-server/internal/http/response"
)

func (s *Server) registerAdminBackupRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "createBackup",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/backups",
		Summary:     "Create backup",
		Description: "Creates a backup archive of users, novels, chapters, annotations, bookmarks, and positions. With async=true the backup runs in the background and progress is reported over SSE. Requires admin.",
		Tags:        []string{"Admin", "Backup"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleCreateBackup)

	huma.Register(s.api, huma.Operation{
		OperationID: "listBackups",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/backups",
		Summary:     "List backups",
		Description: "Lists archives in the backup directory, newest first. Requires admin.",
		Tags:        []string{"Admin", "Backup"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleListBackups)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBackup",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/backups/{id}",
		Summary:     "Get backup details",
		Description: "Returns details of one backup archive. Requires admin.",
		Tags:        []string{"Admin", "Backup"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleGetBackup)

	huma.Register(s.api, huma.Operation{
		OperationID: "downloadBackup",
		Method:      http.MethodGet,
		Path:        "/api/v1/admin/backups/{id}/download",
		Summary:     "Download backup",
		Description: "Streams a backup archive. Requires admin.",
		Tags:        []string{"Admin", "Backup"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDownloadBackup)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteBackup",
		Method:      http.MethodDelete,
		Path:        "/api/v1/admin/backups/{id}",
		Summary:     "Delete backup",
		Description: "Removes a backup archive from disk. Requires admin.",
		Tags:        []string{"Admin", "Backup"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleDeleteBackup)

	huma.Register(s.api, huma.Operation{
		OperationID: "validateBackup",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/backups/validate",
		Summary:     "Validate backup",
		Description: "Checks a backup archive's manifest and contents without restoring. Requires admin.",
		Tags:        []string{"Admin", "Backup"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleValidateBackup)

	huma.Register(s.api, huma.Operation{
		OperationID: "restore",
		Method:      http.MethodPost,
		Path:        "/api/v1/admin/restore",
		Summary:     "Restore from backup",
		Description: "Restores all data from a backup archive on the server, replacing current contents. Requires admin.",
		Tags:        []string{"Admin", "Backup"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleRestore)
}

// === DTOs ===

// CreateBackupRequest is the request body for creating a backup.
type CreateBackupRequest struct {
	IncludeCovers bool `json:"include_covers,omitempty" doc:"Include downloaded cover images (increases archive size)"`
	Async         bool `json:"async,omitempty" doc:"Run in the background and report progress over SSE"`
}

// CreateBackupInput is the Huma input for creating a backup.
type CreateBackupInput struct {
	AuthenticatedInput
	Body CreateBackupRequest
}

// EntityCountsResponse reports how many entities a backup holds.
type EntityCountsResponse struct {
	Users       int `json:"users" doc:"User accounts"`
	Novels      int `json:"novels" doc:"Novels"`
	Chapters    int `json:"chapters" doc:"Chapters"`
	Annotations int `json:"annotations" doc:"Annotations"`
	Bookmarks   int `json:"bookmarks" doc:"Bookmarks"`
	Positions   int `json:"positions" doc:"Reading positions"`
	Covers      int `json:"covers,omitempty" doc:"Cover images, when included"`
}

// BackupResponse represents a backup archive in API responses.
type BackupResponse struct {
	ID        string                `json:"id" doc:"Backup identifier"`
	Path      string                `json:"path" doc:"Archive path on the server"`
	Size      int64                 `json:"size" doc:"Archive size in bytes"`
	CreatedAt time.Time             `json:"created_at" doc:"When the backup was created"`
	Checksum  string                `json:"checksum,omitempty" doc:"SHA-256 checksum of the archive"`
	Counts    *EntityCountsResponse `json:"counts,omitempty" doc:"Entity counts, present on freshly created backups"`
	Duration  string                `json:"duration,omitempty" doc:"How long the backup took"`
}

// CreateBackupResponse is the result of a backup trigger. Exactly one of
// backup or job_id is set, depending on the async flag.
type CreateBackupResponse struct {
	Backup *BackupResponse `json:"backup,omitempty" doc:"Completed backup (synchronous mode)"`
	JobID  string          `json:"job_id,omitempty" doc:"Background job ID, progress arrives over SSE (async mode)"`
}

// CreateBackupOutput is the Huma output for creating a backup.
type CreateBackupOutput struct {
	Body CreateBackupResponse
}

// BackupIDInput identifies one backup archive.
type BackupIDInput struct {
	AuthenticatedInput
	ID string `path:"id" doc:"Backup identifier"`
}

// ListBackupsOutput is the Huma output for listing backups.
type ListBackupsOutput struct {
	Body struct {
		Backups []BackupResponse `json:"backups" doc:"Available backup archives, newest first"`
	}
}

// BackupOutput is the Huma output for a single backup.
type BackupOutput struct {
	Body BackupResponse
}

// ValidateBackupRequest names the archive to validate.
type ValidateBackupRequest struct {
	BackupID string `json:"backup_id" validate:"required" doc:"ID of the backup to validate"`
}

// ValidateBackupInput is the Huma input for validating a backup.
type ValidateBackupInput struct {
	AuthenticatedInput
	Body ValidateBackupRequest
}

// ValidationResponse is the API response for backup validation.
type ValidationResponse struct {
	Valid          bool           `json:"valid" doc:"Whether the archive can be restored"`
	Version        string         `json:"version,omitempty" doc:"Backup format version"`
	ServerID       string         `json:"server_id,omitempty" doc:"Source instance ID"`
	ServerName     string         `json:"server_name,omitempty" doc:"Source instance name"`
	ExpectedCounts map[string]int `json:"expected_counts,omitempty" doc:"Entity counts recorded in the manifest"`
	Errors         []string       `json:"errors,omitempty" doc:"Validation errors"`
	Warnings       []string       `json:"warnings,omitempty" doc:"Validation warnings"`
}

// ValidateBackupOutput is the Huma output for validating a backup.
type ValidateBackupOutput struct {
	Body ValidationResponse
}

// RestoreRequest names the archive to restore from.
type RestoreRequest struct {
	BackupID string `json:"backup_id" validate:"required" doc:"ID of the backup to restore from"`
}

// RestoreInput is the Huma input for restoring from backup.
type RestoreInput struct {
	AuthenticatedInput
	Body RestoreRequest
}

// RestoreResponse is the API response for restore operations.
type RestoreResponse struct {
	Imported map[string]int        `json:"imported" doc:"Entities imported by type"`
	Errors   []backup.RestoreError `json:"errors,omitempty" doc:"Records skipped during restore"`
	Duration string                `json:"duration" doc:"Total restore duration"`
}

// RestoreOutput is the Huma output for restore operations.
type RestoreOutput struct {
	Body RestoreResponse
}

// === Handlers ===

func (s *Server) handleCreateBackup(ctx context.Context, input *CreateBackupInput) (*CreateBackupOutput, error) {
	if _, err := s.authenticateAndRequireAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}

	opts := backup.BackupOptions{IncludeCovers: input.Body.IncludeCovers}

	if input.Body.Async {
		jobID, err := s.backup.CreateAsync(opts)
		if err != nil {
			if errors.Is(err, backup.ErrBackupRunning) {
				return nil, huma.Error409Conflict("a backup is already running")
			}
			return nil, huma.Error500InternalServerError("failed to start backup", err)
		}
		return &CreateBackupOutput{Body: CreateBackupResponse{JobID: jobID}}, nil
	}

	result, err := s.backup.Create(ctx, opts)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to create backup", err)
	}

	counts := mapEntityCounts(result.Counts)
	return &CreateBackupOutput{
		Body: CreateBackupResponse{
			Backup: &BackupResponse{
				ID:        backup.IDFromPath(result.Path),
				Path:      result.Path,
				Size:      result.Size,
				CreatedAt: time.Now(),
				Checksum:  result.Checksum,
				Counts:    &counts,
				Duration:  result.Duration.String(),
			},
		},
	}, nil
}

func (s *Server) handleListBackups(ctx context.Context, input *AuthenticatedInput) (*ListBackupsOutput, error) {
	if _, err := s.authenticateAndRequireAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}

	backups, err := s.backup.List(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list backups", err)
	}

	resp := &ListBackupsOutput{}
	resp.Body.Backups = make([]BackupResponse, 0, len(backups))
	for _, b := range backups {
		resp.Body.Backups = append(resp.Body.Backups, BackupResponse{
			ID:        b.ID,
			Path:      b.Path,
			Size:      b.Size,
			CreatedAt: b.CreatedAt,
		})
	}
	return resp, nil
}

func (s *Server) handleGetBackup(ctx context.Context, input *BackupIDInput) (*BackupOutput, error) {
	if _, err := s.authenticateAndRequireAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}

	b, err := s.backup.Get(ctx, input.ID)
	if err != nil {
		if errors.Is(err, backup.ErrBackupNotFound) {
			return nil, huma.Error404NotFound("backup not found")
		}
		return nil, huma.Error500InternalServerError("failed to get backup", err)
	}

	return &BackupOutput{
		Body: BackupResponse{
			ID:        b.ID,
			Path:      b.Path,
			Size:      b.Size,
			CreatedAt: b.CreatedAt,
		},
	}, nil
}

func (s *Server) handleDownloadBackup(ctx context.Context, input *BackupIDInput) (*huma.StreamResponse, error) {
	if _, err := s.authenticateAndRequireAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}

	b, err := s.backup.Get(ctx, input.ID)
	if err != nil {
		if errors.Is(err, backup.ErrBackupNotFound) {
			return nil, huma.Error404NotFound("backup not found")
		}
		return nil, huma.Error500InternalServerError("failed to get backup", err)
	}

	f, err := os.Open(b.Path)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to open backup file", err)
	}

	return &huma.StreamResponse{
		Body: func(hctx huma.Context) {
			hctx.SetHeader("Content-Type", "application/gzip")
			hctx.SetHeader("Content-Disposition", "attachment; filename=\""+b.ID+".folio.tar.gz\"")
			io.Copy(hctx.BodyWriter(), f)
			f.Close()
		},
	}, nil
}

func (s *Server) handleDeleteBackup(ctx context.Context, input *BackupIDInput) (*MessageOutput, error) {
	if _, err := s.authenticateAndRequireAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}

	if err := s.backup.Delete(ctx, input.ID); err != nil {
		if errors.Is(err, backup.ErrBackupNotFound) {
			return nil, huma.Error404NotFound("backup not found")
		}
		return nil, huma.Error500InternalServerError("failed to delete backup", err)
	}

	return &MessageOutput{Body: MessageResponse{Message: "Backup deleted"}}, nil
}

func (s *Server) handleValidateBackup(ctx context.Context, input *ValidateBackupInput) (*ValidateBackupOutput, error) {
	if _, err := s.authenticateAndRequireAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}
	if err := validBackupID(input.Body.BackupID); err != nil {
		return nil, err
	}

	path := s.backup.GetPath(input.Body.BackupID)
	result, err := s.restore.Validate(ctx, path)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to validate backup", err)
	}

	resp := ValidationResponse{
		Valid:    result.Valid,
		Errors:   result.Errors,
		Warnings: result.Warnings,
	}

	if result.Manifest != nil {
		resp.Version = result.Manifest.Version
		resp.ServerID = result.Manifest.ServerID
		resp.ServerName = result.Manifest.ServerName
		resp.ExpectedCounts = map[string]int{
			"users":       result.ExpectedCounts.Users,
			"novels":      result.ExpectedCounts.Novels,
			"chapters":    result.ExpectedCounts.Chapters,
			"annotations": result.ExpectedCounts.Annotations,
			"bookmarks":   result.ExpectedCounts.Bookmarks,
			"positions":   result.ExpectedCounts.Positions,
		}
	}

	return &ValidateBackupOutput{Body: resp}, nil
}

func (s *Server) handleRestore(ctx context.Context, input *RestoreInput) (*RestoreOutput, error) {
	if _, err := s.authenticateAndRequireAdmin(ctx, input.Authorization); err != nil {
		return nil, err
	}
	if err := validBackupID(input.Body.BackupID); err != nil {
		return nil, err
	}

	path := s.backup.GetPath(input.Body.BackupID)
	result, err := s.restore.Restore(ctx, path)
	if err != nil {
		if errors.Is(err, backup.ErrInvalidManifest) || errors.Is(err, backup.ErrVersionMismatch) || errors.Is(err, backup.ErrCorruptedBackup) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to restore backup", err)
	}

	return &RestoreOutput{Body: mapRestoreResponse(result)}, nil
}

// handleUploadRestore restores from an uploaded archive. This is a chi
// handler because Huma doesn't easily support multipart forms.
func (s *Server) handleUploadRestore(w http.ResponseWriter, r *http.Request) {
	if _, err := s.RequireAdmin(r.Context()); err != nil {
		response.Forbidden(w, "Admin access required", s.logger)
		return
	}

	// Text-heavy archives stay small; covers can add tens of MB.
	r.Body = http.MaxBytesReader(w, r.Body, 1<<28)

	file, header, err := r.FormFile("archive")
	if err != nil {
		response.BadRequest(w, "No archive uploaded. Use 'archive' field in multipart form", s.logger)
		return
	}
	defer file.Close()

	tmp, err := os.CreateTemp("", "folio-restore-*.tar.gz")
	if err != nil {
		s.logger.Error("Failed to create temp file for restore", "error", err)
		response.InternalError(w, "Failed to stage uploaded archive", s.logger)
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, file); err != nil {
		tmp.Close()
		s.logger.Error("Failed to write uploaded archive", "error", err)
		response.InternalError(w, "Failed to stage uploaded archive", s.logger)
		return
	}
	tmp.Close()

	s.logger.Info("Restore archive uploaded", "filename", header.Filename, "size", header.Size)

	result, err := s.restore.Restore(r.Context(), tmpPath)
	if err != nil {
		if errors.Is(err, backup.ErrInvalidManifest) || errors.Is(err, backup.ErrVersionMismatch) || errors.Is(err, backup.ErrCorruptedBackup) {
			response.BadRequest(w, err.Error(), s.logger)
			return
		}
		s.logger.Error("Restore from upload failed", "error", err)
		response.InternalError(w, "Failed to restore backup", s.logger)
		return
	}

	response.Success(w, mapRestoreResponse(result), s.logger)
}

// === Helpers ===

// validBackupID rejects IDs that could escape the backup directory.
func validBackupID(id string) error {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return huma.Error400BadRequest("invalid backup ID")
	}
	return nil
}

func mapEntityCounts(c backup.EntityCounts) EntityCountsResponse {
	return EntityCountsResponse{
		Users:       c.Users,
		Novels:      c.Novels,
		Chapters:    c.Chapters,
		Annotations: c.Annotations,
		Bookmarks:   c.Bookmarks,
		Positions:   c.Positions,
		Covers:      c.Covers,
	}
}

func mapRestoreResponse(result *backup.RestoreResult) RestoreResponse {
	return RestoreResponse{
		Imported: result.Imported,
		Errors:   result.Errors,
		Duration: result.Duration.String(),
	}
}
