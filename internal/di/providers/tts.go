package providers

import (
	"github.com/samber/do/v2"

	"github.com/folioapp/folio-server/internal/config"
	"github.com/folioapp/folio-server/internal/logger"
	"github.com/folioapp/folio-server/internal/tts"
)

// TTSClientHandle wraps the speech vendor client.
type TTSClientHandle struct {
	*tts.Client
}

// ProvideTTSClient provides the speech vendor API client.
// The client is always constructed; the readaloud feature gate only
// controls whether the worker polls and routes accept jobs.
func ProvideTTSClient(i do.Injector) (*TTSClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := tts.NewClient(cfg.Readaloud.VendorURL, log.Logger)
	log.Info("Speech vendor client initialized",
		"vendor_url", cfg.Readaloud.VendorURL,
		"enabled", cfg.Readaloud.Enabled,
	)

	return &TTSClientHandle{Client: client}, nil
}

// TTSCacheHandle wraps the rendered-audio cache with shutdown capability.
type TTSCacheHandle struct {
	*tts.Cache
}

// Shutdown implements do.Shutdownable.
func (h *TTSCacheHandle) Shutdown() error {
	return h.Cache.Close()
}

// ProvideTTSCache provides the on-disk cache for rendered audio segments.
func ProvideTTSCache(i do.Injector) (*TTSCacheHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	cache, err := tts.NewCache(cfg.Readaloud.CachePath, cfg.Readaloud.CacheTTL, log.Logger)
	if err != nil {
		return nil, err
	}

	log.Info("Readaloud cache initialized",
		"path", cfg.Readaloud.CachePath,
		"ttl", cfg.Readaloud.CacheTTL,
	)

	return &TTSCacheHandle{Cache: cache}, nil
}
