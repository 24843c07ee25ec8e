// Package device reduces a User-Agent header to a short "browser/os" label
// suitable for audit records.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

const unknown = "unknown"

// Summarize returns "<browser>/<os>", "bot/<name>" for crawlers and
// "unknown" when the header is empty.
func Summarize(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return unknown
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if ua.Bot() {
		return "bot/" + orUnknown(browser)
	}
	label := orUnknown(browser) + "/" + orUnknown(ua.OS())
	if ua.Mobile() {
		label += " (mobile)"
	}
	return label
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}
