package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/banprobe-project/banprobe/internal/util"
)

const (
	defaultLogCount = 100
	maxLogCount     = 1000
	maxLogLineBytes = 64 * 1024
)

// handleGetLogEntries returns recent entries from today's log file.
// ?count=N bounds the result; ?level=warn keeps warn and above.
func (s *Server) handleGetLogEntries(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", strconv.Itoa(defaultLogCount)))
	if err != nil || count < 1 {
		count = defaultLogCount
	}
	if count > maxLogCount {
		count = maxLogCount
	}

	minLevel := zerolog.TraceLevel
	if raw := c.Query("level"); raw != "" {
		minLevel, err = zerolog.ParseLevel(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown level %q", raw)})
			return
		}
	}

	entries, err := readRecentLogEntries(s.cfg.GetLogging().Directory, count, minLevel)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

type logEntry struct {
	Timestamp string                 `json:"timestamp,omitempty"`
	Level     string                 `json:"level,omitempty"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// newestLogFile returns the newest log file in dir, or "" when there is none.
// Names carry the date, so lexical order is chronological.
func newestLogFile(dir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, util.LogFilePrefix+"*.log"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", nil
	}
	sort.Strings(matches)
	return matches[len(matches)-1], nil
}

// readRecentLogEntries keeps the last count entries at or above minLevel
// from the newest log file. Lines that are not JSON are returned as plain
// messages and are never filtered out.
func readRecentLogEntries(logDir string, count int, minLevel zerolog.Level) ([]logEntry, error) {
	path, err := newestLogFile(logDir)
	if err != nil || path == "" {
		return []logEntry{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []logEntry{}, nil
		}
		return nil, err
	}
	defer f.Close()

	// Ring of the last count matching entries.
	ring := make([]logEntry, 0, count)
	next := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 4096), maxLogLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, level := parseLogLine(line)
		if level < minLevel {
			continue
		}
		if len(ring) < count {
			ring = append(ring, entry)
			continue
		}
		ring[next] = entry
		next = (next + 1) % count
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return append(ring[next:], ring[:next]...), nil
}

// parseLogLine decodes one zerolog JSON line. Unknown keys end up in Fields.
func parseLogLine(line string) (logEntry, zerolog.Level) {
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return logEntry{Message: line}, zerolog.NoLevel
	}

	entry := logEntry{
		Timestamp: popString(raw, zerolog.TimestampFieldName),
		Level:     popString(raw, zerolog.LevelFieldName),
		Component: popString(raw, "component"),
		Message:   popString(raw, zerolog.MessageFieldName),
	}
	delete(raw, zerolog.CallerFieldName)
	if len(raw) > 0 {
		entry.Fields = raw
	}

	level, err := zerolog.ParseLevel(entry.Level)
	if err != nil {
		level = zerolog.NoLevel
	}
	return entry, level
}

func popString(m map[string]interface{}, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	delete(m, key)
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
