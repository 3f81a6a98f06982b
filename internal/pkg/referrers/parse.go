package referrers

import (
	"net/url"
	"strings"
)

// Source is the classified origin of a visit.
type Source string

const (
	SourceDirect   Source = "direct"
	SourceSearch   Source = "search"
	SourceSocial   Source = "social"
	SourceEmail    Source = "email"
	SourceQRCode   Source = "qr_code"
	SourceReferral Source = "referral"
	SourceOther    Source = "other"
)

// Input carries the raw signals available for one request.
type Input struct {
	// Referer header, or the client-reported document.referrer.
	Referer string
	// PageURL is the landing page; its query may hold utm_* and ref params.
	PageURL string
	// Query holds explicit parameters; they win over PageURL's query.
	Query map[string]string
	// SelfHost suppresses referrers from the page's own site.
	SelfHost string
}

// Referral is the parsed referral block.
type Referral struct {
	Source       Source `json:"source"`
	Medium       string `json:"medium,omitempty"`
	Campaign     string `json:"campaign,omitempty"`
	ReferrerURL  string `json:"referrerUrl,omitempty"`
	ReferrerName string `json:"referrerName,omitempty"`
	SearchQuery  string `json:"searchQuery,omitempty"`
	UTMSource    string `json:"utmSource,omitempty"`
	UTMMedium    string `json:"utmMedium,omitempty"`
	UTMCampaign  string `json:"utmCampaign,omitempty"`
	UTMTerm      string `json:"utmTerm,omitempty"`
	UTMContent   string `json:"utmContent,omitempty"`
}

var (
	qrMarkers     = map[string]bool{"qr": true, "qr_code": true, "qrcode": true, "qr-code": true}
	emailMediums  = map[string]bool{"email": true, "e-mail": true, "newsletter": true, "mail": true}
	searchMediums = map[string]bool{"cpc": true, "ppc": true, "paid": true, "paidsearch": true, "search": true, "organic": true}
	socialMediums = map[string]bool{"social": true, "social-media": true, "social_media": true, "paid_social": true, "sm": true}

	searchQueryParams = []string{"q", "p", "query", "text", "wd"}
)

// Parse classifies a request into a Referral. With no signal at all the
// source is direct.
func Parse(in Input) Referral {
	params := collectParams(in)

	ref := Referral{
		UTMSource:   params["utm_source"],
		UTMMedium:   params["utm_medium"],
		UTMCampaign: params["utm_campaign"],
		UTMTerm:     params["utm_term"],
		UTMContent:  params["utm_content"],
		Campaign:    params["utm_campaign"],
	}

	refHost := ""
	if in.Referer != "" {
		if u, err := url.Parse(strings.TrimSpace(in.Referer)); err == nil && u.Hostname() != "" {
			if !IsSelfReferral(u.Hostname(), in.SelfHost) {
				refHost = strings.ToLower(u.Hostname())
				ref.ReferrerURL = u.String()
				ref.ReferrerName = FriendlyName(refHost)
				ref.SearchQuery = firstParam(u.Query(), searchQueryParams)
			}
		}
	}

	medium := strings.ToLower(ref.UTMMedium)
	utmSource := strings.ToLower(ref.UTMSource)
	marker := strings.ToLower(params["ref"])

	switch {
	case qrMarkers[medium] || qrMarkers[utmSource] || qrMarkers[marker]:
		ref.Source = SourceQRCode
	case emailMediums[medium]:
		ref.Source = SourceEmail
	case socialMediums[medium]:
		ref.Source = SourceSocial
	case searchMediums[medium]:
		ref.Source = SourceSearch
	case refHost != "":
		ref.Source = sourceForCategory(CategoryFor(refHost), SourceReferral)
	case utmSource != "":
		ref.Source = sourceForCategory(categoryForName(utmSource), SourceOther)
	case medium != "" || ref.UTMCampaign != "":
		ref.Source = SourceOther
	default:
		ref.Source = SourceDirect
	}

	if ref.Source != SourceSearch {
		ref.SearchQuery = ""
	} else if ref.SearchQuery == "" {
		ref.SearchQuery = ref.UTMTerm
	}

	ref.Medium = ref.UTMMedium
	if ref.Medium == "" {
		ref.Medium = defaultMedium(ref.Source)
	}
	return ref
}

func collectParams(in Input) map[string]string {
	params := make(map[string]string)
	if in.PageURL != "" {
		if u, err := url.Parse(in.PageURL); err == nil {
			for key, values := range u.Query() {
				if len(values) > 0 && values[0] != "" {
					params[strings.ToLower(key)] = values[0]
				}
			}
		}
	}
	for key, value := range in.Query {
		if value != "" {
			params[strings.ToLower(key)] = value
		}
	}
	return params
}

func firstParam(values url.Values, keys []string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(values.Get(key)); v != "" {
			return v
		}
	}
	return ""
}

// categoryForName resolves bare utm_source values like "facebook".
func categoryForName(name string) Category {
	if c := CategoryFor(name); c != categoryUnlisted {
		return c
	}
	return CategoryFor(name + ".com")
}

func sourceForCategory(c Category, fallback Source) Source {
	switch c {
	case CategorySearch:
		return SourceSearch
	case CategorySocial:
		return SourceSocial
	case CategoryEmail:
		return SourceEmail
	default:
		return fallback
	}
}

func defaultMedium(s Source) string {
	switch s {
	case SourceSearch:
		return "organic"
	case SourceSocial:
		return "social"
	case SourceEmail:
		return "email"
	case SourceQRCode:
		return "qr"
	case SourceReferral:
		return "referral"
	case SourceDirect:
		return "none"
	default:
		return "unknown"
	}
}

// IsSelfReferral reports whether refHost belongs to the same site as selfHost,
// ignoring a leading www.
func IsSelfReferral(refHost, selfHost string) bool {
	if refHost == "" || selfHost == "" {
		return false
	}
	a := strings.TrimPrefix(strings.ToLower(refHost), "www.")
	b := strings.TrimPrefix(strings.ToLower(selfHost), "www.")
	return a == b || strings.HasSuffix(a, "."+b)
}
