package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/banprobe-project/banprobe/internal/config"
	"github.com/banprobe-project/banprobe/internal/events"
)

const redacted = "********"

// liveSections are read on every use; changes to other sections apply after
// a restart.
var liveSections = map[string]bool{
	"discord": true,
	"history": true,
}

// handleGetConfig returns the current configuration with secrets redacted.
func (s *Server) handleGetConfig(c *gin.Context) {
	discordCfg := s.cfg.GetDiscord()
	if discordCfg.WebhookURL != "" {
		discordCfg.WebhookURL = redacted
	}

	c.JSON(http.StatusOK, gin.H{
		"probe":    s.cfg.GetProbe(),
		"identity": s.cfg.GetIdentity(),
		"output":   s.cfg.GetOutput(),
		"history":  s.cfg.GetHistory(),
		"api":      s.cfg.GetAPI(),
		"mqtt":     s.cfg.GetMQTT(),
		"discord":  discordCfg,
		"logging":  s.cfg.GetLogging(),
	})
}

type configUpdate struct {
	Section string      `json:"section" binding:"required"`
	Key     string      `json:"key" binding:"required"`
	Value   interface{} `json:"value"`
}

// handleUpdateConfig sets one field. The change is validated on a copy
// first and only applied and saved when the result is valid.
func (s *Server) handleUpdateConfig(c *gin.Context) {
	var body configUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	candidate, err := s.cfg.Clone()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := candidate.UpdateField(body.Section, body.Key, body.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := config.Validate(candidate)
	if !result.IsValid() {
		errs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			errs = append(errs, e.Error())
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "invalid configuration",
			"errors": errs,
		})
		return
	}

	if err := s.cfg.UpdateField(body.Section, body.Key, body.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	s.eventBus.Emit(c.Request.Context(), events.New(events.EventConfigChanged, "api", events.ConfigChangedPayload{
		Section: body.Section,
		Key:     body.Key,
	}))

	log.Info().Str("section", body.Section).Str("key", body.Key).Msg("API: configuration updated")

	warnings := make([]string, 0, len(result.Warnings))
	for _, w := range result.Warnings {
		warnings = append(warnings, w.Error())
	}

	c.JSON(http.StatusOK, gin.H{
		"status":           "updated",
		"restart_required": !liveSections[body.Section],
		"warnings":         warnings,
	})
}
