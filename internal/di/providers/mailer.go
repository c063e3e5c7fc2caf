package providers

import (
	"github.com/samber/do/v2"

	"github.com/codedrip/codedrip-server/internal/config"
	"github.com/codedrip/codedrip-server/internal/logger"
	"github.com/codedrip/codedrip-server/internal/mailer"
)

// SenderHandle wraps the mail sender with shutdown capability.
type SenderHandle struct {
	mailer.Sender
}

// Shutdown implements do.Shutdownable.
func (h *SenderHandle) Shutdown() error {
	h.Close()
	return nil
}

// ProvideSender provides the outbound mail sender. Without a configured
// provider it falls back to the in-memory mock so development setups can run
// the full pipeline without sending real mail.
func ProvideSender(i do.Injector) (*SenderHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	if cfg.Mailer.BaseURL == "" {
		log.Warn("No mail provider configured, using mock sender")
		return &SenderHandle{Sender: mailer.NewMock()}, nil
	}

	client := mailer.NewClient(cfg.Mailer, log.Logger)
	log.Info("Mail provider configured", "base_url", cfg.Mailer.BaseURL, "from", cfg.Mailer.FromEmail)

	return &SenderHandle{Sender: client}, nil
}
