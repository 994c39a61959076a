package telegram

import (
	"fmt"
	"html"
	"strings"

	"github.com/melisync/melisync/internal/models"
)

// formatTokenAlert asks for a new seed token for an account whose refresh
// token was rejected.
func formatTokenAlert(account string, r models.SyncResult, reminder bool) string {
	title := "🔴 <b>Token rejected</b>"
	if reminder {
		title = "🔴 <b>Token still rejected</b>"
	}

	var sb strings.Builder
	sb.WriteString(title + "\n\n")
	sb.WriteString(fmt.Sprintf("<b>Account:</b> %s\n", html.EscapeString(account)))
	sb.WriteString(fmt.Sprintf("<b>Empresa:</b> %s\n", html.EscapeString(r.Empresa)))
	sb.WriteString(fmt.Sprintf("<b>Date:</b> %s\n", html.EscapeString(r.Date)))
	if r.Error != "" {
		sb.WriteString(fmt.Sprintf("<b>Error:</b> <code>%s</code>\n", html.EscapeString(truncate(r.Error, 300))))
	}
	sb.WriteString(fmt.Sprintf("\nAuthorize the app again and set <code>MELI_%s_REFRESH_TOKEN</code>.", html.EscapeString(account)))
	return sb.String()
}

func formatRecovery(account string, r models.SyncResult) string {
	return fmt.Sprintf(
		"🟢 <b>Token recovered</b>\n\n<b>Account:</b> %s\n<b>Empresa:</b> %s\n<b>Status:</b> %s",
		html.EscapeString(account),
		html.EscapeString(r.Empresa),
		html.EscapeString(string(r.Status)),
	)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
