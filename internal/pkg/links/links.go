// Package links canonicalizes clicked link URLs and extracts profile handles
// for known platforms.
package links

import (
	"net/url"
	"strings"

	"go.elara.ws/pcre"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalized is the canonical form of a clicked link.
type Normalized struct {
	URL      string
	Display  string
	Handle   string
	Platform string
	External bool
}

type platformPattern struct {
	platform string
	hosts    []string
	handle   *pcre.Regexp
	// display renders the handle; defaults to "@handle"
	display func(handle string) string
}

func at(handle string) string { return "@" + handle }

var platforms = []platformPattern{
	{
		platform: "instagram",
		hosts:    []string{"instagram.com", "instagr.am"},
		handle:   pcre.MustCompile(`^/([A-Za-z0-9._]{1,30})/?$`),
	},
	{
		platform: "facebook",
		hosts:    []string{"facebook.com", "fb.com", "fb.me"},
		handle:   pcre.MustCompile(`^/(?:profile\.php\?id=)?([A-Za-z0-9.\-]{2,})/?$`),
	},
	{
		platform: "twitter",
		hosts:    []string{"twitter.com", "x.com"},
		handle:   pcre.MustCompile(`^/([A-Za-z0-9_]{1,15})/?$`),
	},
	{
		platform: "tiktok",
		hosts:    []string{"tiktok.com"},
		handle:   pcre.MustCompile(`^/@([A-Za-z0-9._]{2,24})/?$`),
	},
	{
		platform: "youtube",
		hosts:    []string{"youtube.com", "youtu.be"},
		handle:   pcre.MustCompile(`^/(?:@|c/|channel/|user/)([A-Za-z0-9_.\-]{2,})/?$`),
	},
	{
		platform: "linkedin",
		hosts:    []string{"linkedin.com"},
		handle:   pcre.MustCompile(`^/(?:in|company)/([A-Za-z0-9\-_%]{2,})/?$`),
		display:  func(handle string) string { return handle },
	},
	{
		platform: "github",
		hosts:    []string{"github.com"},
		handle:   pcre.MustCompile(`^/([A-Za-z0-9\-]{1,39})/?$`),
	},
	{
		platform: "telegram",
		hosts:    []string{"t.me", "telegram.me"},
		handle:   pcre.MustCompile(`^/([A-Za-z0-9_]{5,32})/?$`),
	},
	{
		platform: "whatsapp",
		hosts:    []string{"wa.me", "whatsapp.com", "api.whatsapp.com"},
		handle:   pcre.MustCompile(`^/(\+?[0-9]{6,15})/?$`),
		display:  func(handle string) string { return "+" + strings.TrimPrefix(handle, "+") },
	},
}

var titleCaser = cases.Title(language.English)

// Normalize canonicalizes rawURL. platformHint (for example the click's
// socialPlatform) is used when the host alone does not identify a platform.
// selfHost marks links to the page's own site as internal.
func Normalize(rawURL, platformHint, selfHost string) Normalized {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return Normalized{Platform: strings.ToLower(platformHint)}
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "mailto:"):
		address := strings.SplitN(raw[len("mailto:"):], "?", 2)[0]
		return Normalized{URL: "mailto:" + strings.ToLower(address), Display: strings.ToLower(address), Handle: strings.ToLower(address), Platform: "email", External: true}
	case strings.HasPrefix(lower, "tel:"):
		number := digitsOnly(raw[len("tel:"):])
		return Normalized{URL: "tel:" + number, Display: number, Handle: number, Platform: "phone", External: true}
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return Normalized{URL: strings.TrimSpace(rawURL), Display: strings.TrimSpace(rawURL), Platform: strings.ToLower(platformHint)}
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimPrefix(host, "m.")
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	if u.Scheme == "http" || u.Scheme == "" {
		u.Scheme = "https"
	}
	stripTracking(u)

	n := Normalized{
		URL:      strings.TrimSuffix(u.String(), "/"),
		Display:  host + strings.TrimSuffix(u.EscapedPath(), "/"),
		External: !sameSite(host, selfHost),
	}

	if p, ok := platformFor(host, platformHint); ok {
		n.Platform = p.platform
		path := u.Path
		if p.platform == "facebook" && u.Query().Get("id") != "" {
			path = "/profile.php?id=" + u.Query().Get("id")
		}
		if m := p.handle.FindStringSubmatch(path); len(m) > 1 {
			n.Handle = m[1]
			if p.display != nil {
				n.Display = p.display(m[1])
			} else {
				n.Display = at(m[1])
			}
		}
		return n
	}

	n.Platform = strings.ToLower(platformHint)
	if n.Platform == "" {
		n.Platform = "website"
	}
	return n
}

// PlatformLabel renders a platform key for display, e.g. "linkedin" -> "Linkedin".
func PlatformLabel(platform string) string {
	if platform == "" {
		return ""
	}
	return titleCaser.String(strings.ReplaceAll(platform, "_", " "))
}

func platformFor(host, hint string) (platformPattern, bool) {
	for _, p := range platforms {
		for _, h := range p.hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return p, true
			}
		}
	}
	hint = strings.ToLower(hint)
	for _, p := range platforms {
		if hint != "" && p.platform == hint && hostLooksLike(host, p) {
			return p, true
		}
	}
	return platformPattern{}, false
}

func hostLooksLike(host string, p platformPattern) bool {
	for _, h := range p.hosts {
		if strings.Contains(host, strings.SplitN(h, ".", 2)[0]) {
			return true
		}
	}
	return false
}

func stripTracking(u *url.URL) {
	q := u.Query()
	changed := false
	for key := range q {
		k := strings.ToLower(key)
		if strings.HasPrefix(k, "utm_") || k == "fbclid" || k == "gclid" || k == "igshid" {
			q.Del(key)
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
}

func sameSite(host, selfHost string) bool {
	if selfHost == "" {
		return false
	}
	self := strings.TrimPrefix(strings.ToLower(selfHost), "www.")
	return host == self || strings.HasSuffix(host, "."+self)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for i, r := range s {
		if (r >= '0' && r <= '9') || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
