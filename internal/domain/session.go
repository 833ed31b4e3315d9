package domain

import "time"

// Session represents an active user session with refresh token.
// Each device gets its own session, so users can see what's connected
// and revoke a lost ereader without touching the others.
type Session struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	RefreshTokenHash string    `json:"refresh_token_hash,omitempty"` // Stored hashed, filter from API responses
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	IPAddress        string    `json:"ip_address,omitempty"`

	// Device information - structured data from client
	DeviceType      string `json:"device_type"`            // ereader, mobile, desktop, web
	Platform        string `json:"platform"`               // KOReader, iOS, Android, Web
	PlatformVersion string `json:"platform_version"`       // 2024.11, 17.2, etc.
	ClientName      string `json:"client_name"`            // Folio Reader, Folio Web
	ClientVersion   string `json:"client_version"`         // 1.0.0
	DeviceName      string `json:"device_name,omitempty"`  // Mia's Kobo (optional, user-set)
	DeviceModel     string `json:"device_model,omitempty"` // Kobo Clara BW, Boox Page (optional)
}

// Touch updates the session's last seen timestamp.
func (s *Session) Touch() {
	s.LastSeenAt = time.Now()
}

// IsExpired checks if the session has passed its expiration time.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// DisplayName returns a human-readable description of the device.
func (s *Session) DisplayName() string {
	if s.DeviceName != "" {
		return s.DeviceName
	}

	if s.DeviceModel != "" {
		// "Kobo Clara BW - KOReader 2024.11"
		if s.PlatformVersion != "" {
			return s.DeviceModel + " - " + s.Platform + " " + s.PlatformVersion
		}
		return s.DeviceModel
	}

	if s.Platform != "" {
		if s.PlatformVersion != "" {
			return s.Platform + " " + s.PlatformVersion
		}
		return s.Platform
	}

	// "Folio Reader 1.0.0"
	if s.ClientVersion != "" {
		return s.ClientName + " " + s.ClientVersion
	}

	if s.ClientName != "" {
		return s.ClientName
	}

	return "Unknown Device"
}
