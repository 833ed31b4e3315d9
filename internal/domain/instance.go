package domain

import "time"

// Instance represents the singleton server instance configuration.
// HasRootUser flips to true once initial setup has created the first account.
type Instance struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	LocalUrl    string    `json:"local_url,omitempty"`
	RemoteUrl   string    `json:"remote_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ID          string    `json:"id"`
	HasRootUser bool      `json:"has_root_user"`
}

// IsSetupRequired reports whether the server still needs its first account.
func (i *Instance) IsSetupRequired() bool {
	return !i.HasRootUser
}

// MarkRootUserCreated records that setup has completed.
func (i *Instance) MarkRootUserCreated() {
	i.HasRootUser = true
	i.UpdatedAt = time.Now()
}
