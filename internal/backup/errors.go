// Package backup provides backup and restore functionality for Folio.
package backup

import "errors"

var (
	// ErrInvalidManifest indicates the manifest is missing or malformed.
	ErrInvalidManifest = errors.New("invalid or missing manifest")

	// ErrVersionMismatch indicates the backup version is not supported.
	ErrVersionMismatch = errors.New("backup version not supported")

	// ErrCorruptedBackup indicates the backup archive could not be read.
	ErrCorruptedBackup = errors.New("backup archive corrupted")

	// ErrBackupNotFound indicates the requested backup does not exist.
	ErrBackupNotFound = errors.New("backup not found")

	// ErrBackupRunning indicates a backup job is already in flight.
	ErrBackupRunning = errors.New("backup already running")
)
