package banparse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banprobe-project/banprobe/internal/chat"
)

const hypixelTempBan = "§cYou are temporarily banned for §f29d 23h 59m 59s §cfrom this server!\n\n" +
	"§7Reason: §fCheating through the use of unfair game advantages.\n" +
	"§7Find out more: §b§nhttps://www.hypixel.net/appeal\n\n" +
	"§7Ban ID: §f#8B5C3D1A\n" +
	"§7Sharing your Ban ID may affect the processing of your appeal!"

func TestParseHypixelTemporaryBan(t *testing.T) {
	rec := Parse(hypixelTempBan)
	assert.Equal(t, Record{
		Reason:   "Cheating through the use of unfair game advantages.",
		TimeLeft: "29d 23h 59m 59s",
		BanID:    "#8B5C3D1A",
	}, rec)
}

func TestParseReasonStopsAtBanID(t *testing.T) {
	rec := Parse("Reason: Cheating\nBan ID: ABC123")
	assert.Equal(t, "Cheating", rec.Reason)
	assert.Equal(t, "ABC123", rec.BanID)
	assert.Equal(t, DefaultTimeLeft, rec.TimeLeft)
}

func TestParsePermanentBan(t *testing.T) {
	rec := Parse("You have been permanently banned\nReason: Use of hacks")
	assert.Equal(t, "Permanent", rec.TimeLeft)
	assert.Equal(t, "Use of hacks", rec.Reason)
	assert.Equal(t, DefaultBanID, rec.BanID)
}

func TestParseFallbackReason(t *testing.T) {
	t.Run("banned line is last", func(t *testing.T) {
		rec := Parse("25d 21h 4m 46s remaining\nYou were banned for cheating")
		assert.Equal(t, "25d 21h 4m 46s", rec.TimeLeft)
		assert.Equal(t, "You were banned for cheating", rec.Reason)
	})

	t.Run("lines after banned line", func(t *testing.T) {
		rec := Parse("You were banned for cheating\n25d 21h 4m 46s remaining\nAppeal at hypixel.net")
		assert.Equal(t, "25d 21h 4m 46s", rec.TimeLeft)
		assert.Equal(t, "25d 21h 4m 46s remaining Appeal at hypixel.net", rec.Reason)
	})

	t.Run("no banned line", func(t *testing.T) {
		rec := Parse("Connection throttled\nPlease wait")
		assert.Equal(t, DefaultReason, rec.Reason)
	})
}

func TestParseSuspiciousActivityOverridesDuration(t *testing.T) {
	rec := Parse("Your account has been blocked for suspicious activity.\n\n29d 23h 59m 59s\nBan ID: #1234")
	assert.Equal(t, TimeLeftNA, rec.TimeLeft)
	assert.Equal(t, "#1234", rec.BanID)
	assert.Equal(t, DefaultReason, rec.Reason)
}

func TestParseMultiLineReason(t *testing.T) {
	rec := Parse("Reason: Cheating\nthrough the use of\nunfair advantages\nFind out more: https://hypixel.net/appeal\nExtra line")
	assert.Equal(t, "Cheating through the use of unfair advantages", rec.Reason)
}

func TestParseReasonStopsAtSharingNotice(t *testing.T) {
	rec := Parse("REASON: Boosting\nSharing your Ban ID may affect the processing of your appeal!")
	assert.Equal(t, "Boosting", rec.Reason)
}

func TestParseCaseInsensitivePrefixes(t *testing.T) {
	rec := Parse("reason: Griefing\nBAN ID:   XYZ ")
	assert.Equal(t, "Griefing", rec.Reason)
	assert.Equal(t, "XYZ", rec.BanID)
}

func TestParseTimeLeft(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"full duration", "banned for 1d 2h 3m 4s", "1d 2h 3m 4s"},
		{"days and hours", "banned for 3d 4h", "3d 4h"},
		{"hours and minutes", "muted for 5h 6m", "5h 6m"},
		{"days only", "ban lasts 2d", "2d"},
		{"leftmost match wins", "3d 4h then 5h 6m", "3d 4h"},
		{"permanently", "You are permanently banned", DefaultTimeLeft},
		{"temporarily", "You are temporarily banned", TimeLeftTemporary},
		{"nothing", "Kicked", DefaultTimeLeft},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.text).TimeLeft)
		})
	}
}

func TestParseEmptyText(t *testing.T) {
	assert.Equal(t, Record{Reason: DefaultReason, TimeLeft: DefaultTimeLeft, BanID: DefaultBanID}, Parse(""))
	assert.Equal(t, Record{Reason: DefaultReason, TimeLeft: DefaultTimeLeft, BanID: DefaultBanID}, Parse("\n \n"))
}

func TestParseExtractedReasonIsStable(t *testing.T) {
	for _, text := range []string{
		hypixelTempBan,
		"Reason: Cheating\nBan ID: ABC123",
		"Reason: Cheating\nthrough hacks\nFind out more: x",
		"You were banned for cheating\nAppeal at hypixel.net",
	} {
		reason := Parse(text).Reason
		assert.Equal(t, reason, chat.StripFormatting(reason), text)
		assert.Equal(t, reason, Parse("Reason: "+reason).Reason, text)
	}
}
