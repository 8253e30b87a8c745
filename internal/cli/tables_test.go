package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banprobe-project/banprobe/internal/checker"
	"github.com/banprobe-project/banprobe/internal/db"
)

func TestRenderResult(t *testing.T) {
	var buf bytes.Buffer
	RenderResult(&buf, &checker.Result{
		MCName:   "Notch",
		MCUUID:   "069a79f444e94726a5befca90e38aaf5",
		Status:   "banned",
		Reason:   "Cheating through the use of unfair game advantages.",
		TimeLeft: "29d 23h 59m 59s",
		BanID:    "#ABC123",
	})

	out := buf.String()
	assert.Contains(t, out, "Notch")
	assert.Contains(t, out, "BANNED")
	assert.Contains(t, out, "29d 23h 59m 59s")
	assert.Contains(t, out, "#ABC123")
}

func TestRenderHistory(t *testing.T) {
	checked := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	long := strings.Repeat("x", 80)

	var buf bytes.Buffer
	RenderHistory(&buf, []db.HistoryEntry{
		{MCName: "Notch", Status: "banned", Reason: long, TimeLeft: "Permanent", BanID: "#1", CheckedAt: checked, Duration: 1500 * time.Millisecond},
		{MCName: "jeb_", Status: "timeout", Reason: "N/A", TimeLeft: "N/A", BanID: "N/A", CheckedAt: checked},
	}, time.UTC)

	out := buf.String()
	assert.Contains(t, out, "2026-03-01 12:30:00")
	assert.Contains(t, out, "BANNED")
	assert.Contains(t, out, "TIMEOUT")
	assert.Contains(t, out, strings.Repeat("x", maxReasonWidth-3)+"...")
	assert.NotContains(t, out, long)
	assert.Contains(t, out, "1.5s")
}

func TestRenderHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderHistory(&buf, nil, nil)
	assert.Equal(t, "No stored results.\n", buf.String())
}

func TestRenderStats(t *testing.T) {
	var buf bytes.Buffer
	RenderStats(&buf, []db.StatusCount{
		{Status: "banned", Count: 3},
		{Status: "unbanned", Count: 4},
	})

	out := buf.String()
	assert.Contains(t, out, "UNBANNED")
	assert.Contains(t, out, "7")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "§§§§§§§...", truncate(strings.Repeat("§", 20), 10))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "-", formatDuration(0))
	assert.Equal(t, "250ms", formatDuration(250*time.Millisecond))
	assert.Equal(t, "8s", formatDuration(8*time.Second))
}
