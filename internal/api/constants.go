package api

// Cache-Control header values for raw asset endpoints. Covers and
// rendered audio are immutable per URL but scoped to the owner, so
// they cache privately; proxied chapter images may change upstream.
const (
	CacheOneDayPrivate = "private, max-age=86400"
	CacheNoStore       = "no-cache"
)
