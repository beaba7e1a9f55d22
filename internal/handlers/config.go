package handlers

import (
	"net/http"

	"github.com/tonebox/backend/internal/config"
	"github.com/tonebox/backend/internal/models"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// ConfigHandler serves the public device configuration.
type ConfigHandler struct {
	cfg        *config.Config
	deviceName string
}

// NewConfigHandler creates a ConfigHandler. deviceName is the resolved display
// name, generated at startup when not configured.
func NewConfigHandler(cfg *config.Config, deviceName string) *ConfigHandler {
	return &ConfigHandler{cfg: cfg, deviceName: deviceName}
}

// PublicConfig returns non-sensitive configuration for the frontend.
func (h *ConfigHandler) PublicConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.ConfigResponse{
		DeviceName:   h.deviceName,
		MaxFileSize:  h.cfg.MaxUploadBytes,
		Version:      Version,
		LibraryWatch: h.cfg.WatchLibrary,
	})
}
