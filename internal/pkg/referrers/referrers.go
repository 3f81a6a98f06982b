package referrers

import "strings"

// Category groups a known referrer host.
type Category string

const (
	CategorySearch   Category = "search"
	CategorySocial   Category = "social"
	CategoryEmail    Category = "email"
	CategoryOther    Category = "other"
	categoryUnlisted Category = ""
)

type referrer struct {
	name     string
	category Category
}

// Common referrer hostnames mapped to friendly display names
var knownReferrers = map[string]referrer{
	// Search engines
	"google.com":     {"Google", CategorySearch},
	"google.co.uk":   {"Google", CategorySearch},
	"google.de":      {"Google", CategorySearch},
	"google.fr":      {"Google", CategorySearch},
	"google.es":      {"Google", CategorySearch},
	"google.it":      {"Google", CategorySearch},
	"google.ca":      {"Google", CategorySearch},
	"google.com.au":  {"Google", CategorySearch},
	"google.co.jp":   {"Google", CategorySearch},
	"google.com.br":  {"Google", CategorySearch},
	"bing.com":       {"Bing", CategorySearch},
	"duckduckgo.com": {"DuckDuckGo", CategorySearch},
	"yahoo.com":      {"Yahoo", CategorySearch},
	"baidu.com":      {"Baidu", CategorySearch},
	"yandex.ru":      {"Yandex", CategorySearch},
	"ecosia.org":     {"Ecosia", CategorySearch},
	"kagi.com":       {"Kagi", CategorySearch},

	// Social media
	"x.com":           {"X/Twitter", CategorySocial},
	"twitter.com":     {"X/Twitter", CategorySocial},
	"t.co":            {"X/Twitter", CategorySocial},
	"facebook.com":    {"Facebook", CategorySocial},
	"fb.com":          {"Facebook", CategorySocial},
	"l.facebook.com":  {"Facebook", CategorySocial},
	"lm.facebook.com": {"Facebook", CategorySocial},
	"instagram.com":   {"Instagram", CategorySocial},
	"l.instagram.com": {"Instagram", CategorySocial},
	"linkedin.com":    {"LinkedIn", CategorySocial},
	"lnkd.in":         {"LinkedIn", CategorySocial},
	"tiktok.com":      {"TikTok", CategorySocial},
	"pinterest.com":   {"Pinterest", CategorySocial},
	"reddit.com":      {"Reddit", CategorySocial},
	"old.reddit.com":  {"Reddit", CategorySocial},
	"threads.net":     {"Threads", CategorySocial},
	"bsky.app":        {"Bluesky", CategorySocial},
	"mastodon.social": {"Mastodon", CategorySocial},
	"youtube.com":     {"YouTube", CategorySocial},
	"youtu.be":        {"YouTube", CategorySocial},
	"snapchat.com":    {"Snapchat", CategorySocial},
	"discord.com":     {"Discord", CategorySocial},
	"discordapp.com":  {"Discord", CategorySocial},
	"whatsapp.com":    {"WhatsApp", CategorySocial},
	"wa.me":           {"WhatsApp", CategorySocial},
	"telegram.org":    {"Telegram", CategorySocial},
	"t.me":            {"Telegram", CategorySocial},
	"slack.com":       {"Slack", CategorySocial},

	// Communities
	"news.ycombinator.com": {"Hacker News", categoryUnlisted},
	"producthunt.com":      {"Product Hunt", categoryUnlisted},
	"medium.com":           {"Medium", categoryUnlisted},
	"substack.com":         {"Substack", categoryUnlisted},
	"github.com":           {"GitHub", categoryUnlisted},
	"stackoverflow.com":    {"Stack Overflow", categoryUnlisted},
	"quora.com":            {"Quora", categoryUnlisted},

	// Email providers (for newsletter clicks)
	"mail.google.com":    {"Gmail", CategoryEmail},
	"outlook.live.com":   {"Outlook", CategoryEmail},
	"outlook.office.com": {"Outlook", CategoryEmail},
	"mail.yahoo.com":     {"Yahoo Mail", CategoryEmail},
	"protonmail.com":     {"Proton Mail", CategoryEmail},
	"mail.proton.me":     {"Proton Mail", CategoryEmail},

	// Link shorteners
	"bit.ly":      {"Bitly", categoryUnlisted},
	"tinyurl.com": {"TinyURL", categoryUnlisted},
	"ow.ly":       {"Hootsuite", categoryUnlisted},
}

// lookup resolves hostname, then hostname without www., then any known
// parent domain. Subdomains of a known host inherit its entry.
func lookup(hostname string) (referrer, bool) {
	hostname = strings.TrimPrefix(strings.ToLower(hostname), "www.")

	if ref, ok := knownReferrers[hostname]; ok {
		return ref, true
	}

	// Walk up the labels so "m.facebook.com" resolves to "facebook.com"
	for idx := strings.Index(hostname, "."); idx >= 0; idx = strings.Index(hostname, ".") {
		hostname = hostname[idx+1:]
		if ref, ok := knownReferrers[hostname]; ok {
			return ref, true
		}
	}
	return referrer{}, false
}

// FriendlyName returns a human-friendly name for a referrer hostname.
// If the hostname is not in the known list, it returns the hostname
// with common prefixes like "www." removed and first letter capitalized.
func FriendlyName(hostname string) string {
	if ref, ok := lookup(hostname); ok {
		return ref.name
	}
	return capitalizeFirst(strings.TrimPrefix(strings.ToLower(hostname), "www."))
}

// CategoryFor returns the category of a known host, or "" when unknown.
func CategoryFor(hostname string) Category {
	ref, _ := lookup(hostname)
	return ref.category
}

// capitalizeFirst capitalizes the first letter of a string
func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
