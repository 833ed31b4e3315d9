package providers

import (
	"github.com/samber/do/v2"

	"github.com/folioapp/folio-server/internal/config"
	"github.com/folioapp/folio-server/internal/logger"
	"github.com/folioapp/folio-server/internal/scraper"
)

// ScraperHandle wraps the scraper client with shutdown capability.
type ScraperHandle struct {
	*scraper.Client
}

// Shutdown implements do.Shutdownable.
func (h *ScraperHandle) Shutdown() error {
	h.Client.Close()
	return nil
}

// ProvideScraper provides the web scraper client for source sites.
func ProvideScraper(i do.Injector) (*ScraperHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := scraper.NewWithOptions(scraper.Options{
		UserAgent:    cfg.Scraper.UserAgent,
		Timeout:      cfg.Scraper.RequestTimeout,
		PerHostRPS:   cfg.Scraper.PerHostRPS,
		MaxBodyBytes: cfg.Scraper.MaxBodyBytes,
	}, log.Logger)

	log.Info("Scraper client initialized",
		"user_agent", cfg.Scraper.UserAgent,
		"per_host_rps", cfg.Scraper.PerHostRPS,
	)

	return &ScraperHandle{Client: client}, nil
}
