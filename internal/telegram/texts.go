package telegram

import (
	"fmt"
	"strings"
	"time"

	"casguard/backend/internal/config"
	"casguard/backend/internal/models"
)

// casLink points at the public CAS record for a user.
func casLink(userID int64) string {
	return fmt.Sprintf("https://api.cas.chat/check?user_id=%d", userID)
}

func msgNotify(fullName string, userID int64, reason string) string {
	return fmt.Sprintf(
		"⚠️ Suspicious account detected: <b>%s</b> (ID: <code>%d</code>). "+
			"Reason: <b>%s</b>. Details: <a href=\"%s\">CAS check</a>.",
		fullName, userID, reason, casLink(userID))
}

func msgBanned(fullName string, userID int64, reason string) string {
	return fmt.Sprintf(
		"🛡 Removed <b>%s</b> (ID: <code>%d</code>) — "+
			"Reason: <b>%s</b>. Details: <a href=\"%s\">CAS check</a>.",
		fullName, userID, reason, casLink(userID))
}

func msgModeSet(mode models.Mode) string {
	return fmt.Sprintf("✅ Mode set to: <b>%s</b>", mode)
}

func msgSilentSet(silent bool) string {
	if silent {
		return "🔇 Silent mode enabled: actions run without public announcements."
	}
	return "🔊 Silent mode disabled."
}

func msgUnbanOK(userID int64) string {
	return fmt.Sprintf("✅ User <code>%d</code> added to whitelist for this chat (bot will ignore).", userID)
}

func msgUnbanUsage() string {
	return "Usage: /unban &lt;user_id&gt;"
}

func msgNotAdmin() string {
	return "⛔ This command is available only for chat administrators."
}

// msgStatus renders the /status reply: policy, intervals, index size and the
// last refresh per source.
func msgStatus(policy *models.ChatPolicy, recheck time.Duration, indexSize int, canModerate bool, updates []models.SourceUpdate) string {
	var b strings.Builder
	b.WriteString("<b>Status</b>\n")
	fmt.Fprintf(&b, "Mode: <b>%s</b>\n", policy.Mode)
	fmt.Fprintf(&b, "Silent: <b>%t</b>\n", policy.Silent)
	fmt.Fprintf(&b, "Ban rights: <b>%t</b>\n", canModerate)
	fmt.Fprintf(&b, "Recheck interval: <b>%s</b>\n", config.FormatDuration(policy.RecheckInterval(recheck)))
	fmt.Fprintf(&b, "Whitelisted users: <b>%d</b>\n", len(policy.Whitelist))
	fmt.Fprintf(&b, "Local blacklist size: <b>%d</b>\n", indexSize)
	for _, u := range updates {
		fmt.Fprintf(&b, "Source <b>%s</b>: %d IDs, refreshed %s\n",
			u.Name, u.Count, u.RefreshedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// msgStats renders the /stats reply over the 24h/7d/30d windows.
func msgStats(day, week, month models.ActionStats) string {
	var b strings.Builder
	b.WriteString("<b>Stats</b>\n")
	writeStatsWindow(&b, "24h", day)
	writeStatsWindow(&b, "7d", week)
	writeStatsWindow(&b, "30d", month)
	return b.String()
}

func writeStatsWindow(b *strings.Builder, window string, s models.ActionStats) {
	fmt.Fprintf(b, "<b>%s</b>: total %d (notify %d, quickban %d) — local %d, CAS %d, failed %d, users %d\n",
		window, s.Total, s.Notify, s.Quickban, s.Local, s.CAS, s.Failed, s.UniqueUsers)
}
