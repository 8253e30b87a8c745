package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/banprobe-project/banprobe/internal/db"
)

// handleCheck runs a check for the access token in the Authorization header.
func (s *Server) handleCheck(c *gin.Context) {
	token := extractBearerToken(c.GetHeader("Authorization"))
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error": "missing or invalid authorization header",
		})
		return
	}

	if !s.checks.TryAcquire(1) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "too many checks in progress",
		})
		return
	}
	defer s.checks.Release(1)

	result, err := s.deps.Checker.Check(c.Request.Context(), token)
	if err != nil {
		log.Warn().Err(err).Msg("API: check failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleListHistory returns the most recent stored results.
func (s *Server) handleListHistory(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}

	entries, err := s.deps.History.List(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleAccountHistory returns stored results for one account. The uuid may
// be dashed or undashed.
func (s *Server) handleAccountHistory(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}

	id, err := NormalizeUUID(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account uuid"})
		return
	}

	entries, err := s.deps.History.ForAccount(c.Request.Context(), id, queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mc_uuid": id,
		"entries": entries,
		"count":   len(entries),
	})
}

// handleLatestResult returns the newest stored result for one account.
func (s *Server) handleLatestResult(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}

	id, err := NormalizeUUID(c.Param("uuid"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account uuid"})
		return
	}

	entry, err := s.deps.History.Latest(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entry == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no results for account"})
		return
	}

	c.JSON(http.StatusOK, entry)
}

// handleHistoryStats returns the number of stored results per status.
func (s *Server) handleHistoryStats(c *gin.Context) {
	if !s.requireHistory(c) {
		return
	}

	counts, err := s.deps.History.CountByStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if counts == nil {
		counts = []db.StatusCount{}
	}

	c.JSON(http.StatusOK, gin.H{"statuses": counts})
}

func (s *Server) requireHistory(c *gin.Context) bool {
	if s.deps.History == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "history is disabled"})
		return false
	}
	return true
}

// queryLimit reads ?limit=N. Invalid values select the store default.
func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		return 0
	}
	return limit
}

// NormalizeUUID returns id in the undashed lower-case form the profile
// service uses.
func NormalizeUUID(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(parsed.String(), "-", ""), nil
}
