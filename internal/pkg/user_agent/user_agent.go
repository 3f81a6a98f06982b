package user_agent

import (
	"embed"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Device classes reported by DeviceType.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceOther   = "other"

	Unknown = "Unknown"
)

type UserAgent struct {
	UserAgent string
	OS        string
	OSVersion string
	Browser   string
	Device    string
	Model     string
	Mobile    bool
	Tablet    bool
	Desktop   bool
	Bot       bool
}

// DeviceType collapses the parsed flags into mobile, tablet, desktop or other.
func (ua UserAgent) DeviceType() string {
	switch {
	case ua.Bot:
		return DeviceOther
	case ua.Tablet:
		return DeviceTablet
	case ua.Mobile:
		return DeviceMobile
	case ua.Desktop:
		return DeviceDesktop
	default:
		return DeviceOther
	}
}

// Classified reports whether anything useful was recognized.
func (ua UserAgent) Classified() bool {
	return ua.Bot || ua.Browser != Unknown || ua.OS != Unknown
}

// The database files are a trimmed subset of matomo-org/device-detector's
// regexes/ tree. Refresh by copying the same paths from a release.
//
//go:embed database/bots.yml
//go:embed database/oss.yml
//go:embed database/client/browsers.yml
//go:embed database/device/mobiles.yml
//go:embed database/device/notebooks.yml
//go:embed database/device/televisions.yml
//go:embed database/device/consoles.yml
var databaseFiles embed.FS

type BrowserEntry struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type OSEntry struct {
	Regex   string `yaml:"regex"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type DeviceModel struct {
	Regex  string `yaml:"regex"`
	Model  string `yaml:"model"`
	Device string `yaml:"device"`
}

type DeviceEntry struct {
	Brand  string        `yaml:"-"`
	Regex  string        `yaml:"regex"`
	Device string        `yaml:"device"`
	Model  string        `yaml:"model"`
	Models []DeviceModel `yaml:"models"`
}

type BotEntry struct {
	Regex    string `yaml:"regex"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
}

// RegexCache compiles each pattern once.
type RegexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func newRegexCache() *RegexCache {
	return &RegexCache{
		compiled: make(map[string]*pcre.Regexp),
	}
}

func (rc *RegexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

var (
	parser *DeviceDetectorParser
	once   sync.Once
)

type DeviceDetectorParser struct {
	browsers   []BrowserEntry
	oss        []OSEntry
	devices    []DeviceEntry
	bots       []BotEntry
	regexCache *RegexCache
}

func loadYAML(file string, out interface{}) {
	data, err := databaseFiles.ReadFile(file)
	if err != nil {
		slog.Default().Error("Missing user agent database file", slog.String("file", file), slog.Any("error", err))
		return
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		slog.Default().Error("Error parsing user agent database file", slog.String("file", file), slog.Any("error", err))
	}
}

func getParser() *DeviceDetectorParser {
	once.Do(func() {
		parser = &DeviceDetectorParser{regexCache: newRegexCache()}

		loadYAML("database/client/browsers.yml", &parser.browsers)
		loadYAML("database/oss.yml", &parser.oss)
		loadYAML("database/bots.yml", &parser.bots)

		deviceFiles := []string{
			"database/device/mobiles.yml",
			"database/device/notebooks.yml",
			"database/device/televisions.yml",
			"database/device/consoles.yml",
		}
		for _, file := range deviceFiles {
			var brands map[string]DeviceEntry
			loadYAML(file, &brands)
			for brand, entry := range brands {
				entry.Brand = brand
				parser.devices = append(parser.devices, entry)
			}
		}
		// Map order is random; keep matching deterministic.
		sort.Slice(parser.devices, func(i, j int) bool {
			return parser.devices[i].Brand < parser.devices[j].Brand
		})
	})
	return parser
}

// expand replaces $1, $2... in template with the submatches.
func expand(template string, matches []string) string {
	if template == "" || len(matches) < 2 {
		return strings.ReplaceAll(template, "$1", "")
	}
	out := template
	for i, match := range matches[1:] {
		out = strings.ReplaceAll(out, fmt.Sprintf("$%d", i+1), match)
	}
	return strings.TrimSpace(out)
}

func (p *DeviceDetectorParser) parseBot(userAgent string) *BotEntry {
	for i := range p.bots {
		if regex, err := p.regexCache.get(p.bots[i].Regex); err == nil {
			if regex.MatchString(userAgent) {
				return &p.bots[i]
			}
		}
	}
	return nil
}

func (p *DeviceDetectorParser) parseBrowser(userAgent string) (string, string) {
	for _, entry := range p.browsers {
		if regex, err := p.regexCache.get(entry.Regex); err == nil {
			if matches := regex.FindStringSubmatch(userAgent); len(matches) > 0 {
				return entry.Name, expand(entry.Version, matches)
			}
		}
	}
	return Unknown, ""
}

func (p *DeviceDetectorParser) parseOS(userAgent string) (string, string) {
	for _, entry := range p.oss {
		if regex, err := p.regexCache.get(entry.Regex); err == nil {
			if matches := regex.FindStringSubmatch(userAgent); len(matches) > 0 {
				return entry.Name, strings.ReplaceAll(expand(entry.Version, matches), "_", ".")
			}
		}
	}
	return Unknown, ""
}

// parseDevice returns brand, model and device class ("smartphone", "tablet", ...).
func (p *DeviceDetectorParser) parseDevice(userAgent string) (string, string, string, bool) {
	for _, entry := range p.devices {
		regex, err := p.regexCache.get(entry.Regex)
		if err != nil {
			continue
		}
		matches := regex.FindStringSubmatch(userAgent)
		if len(matches) == 0 {
			continue
		}

		deviceType := entry.Device
		model := ""
		for _, modelEntry := range entry.Models {
			modelRegex, err := p.regexCache.get(modelEntry.Regex)
			if err != nil {
				continue
			}
			if modelMatches := modelRegex.FindStringSubmatch(userAgent); modelMatches != nil {
				model = expand(modelEntry.Model, modelMatches)
				if modelEntry.Device != "" {
					deviceType = modelEntry.Device
				}
				break
			}
		}
		if model == "" && entry.Model != "" {
			model = expand(entry.Model, matches)
		}
		if model == "" {
			model = entry.Brand
		}
		return entry.Brand, model, deviceType, true
	}
	return "", "", "", false
}

// fallbackDeviceClass guesses the device class from plain substrings when no
// brand matched.
func fallbackDeviceClass(userAgent, os string) string {
	ua := strings.ToLower(userAgent)

	// Tablets often contain "mobile" too, so check them first
	if strings.Contains(ua, "tablet") || strings.Contains(ua, "ipad") {
		return "tablet"
	}
	if strings.Contains(ua, "android") && !strings.Contains(ua, "mobile") {
		return "tablet"
	}
	if strings.Contains(ua, "mobile") || strings.Contains(ua, "android") ||
		strings.Contains(ua, "iphone") || strings.Contains(ua, "ipod") ||
		strings.Contains(ua, "blackberry") || strings.Contains(ua, "windows phone") {
		return "smartphone"
	}
	switch os {
	case "Windows", "Mac", "GNU/Linux", "Chrome OS":
		return "desktop"
	}
	return ""
}

// ParseUserAgent classifies a raw User-Agent header. Empty or unrecognized
// input yields Unknown fields and DeviceType "other".
func ParseUserAgent(userAgent string) UserAgent {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return UserAgent{OS: Unknown, Browser: Unknown}
	}

	parser := getParser()

	if bot := parser.parseBot(userAgent); bot != nil {
		return UserAgent{
			UserAgent: userAgent,
			OS:        Unknown,
			Browser:   bot.Name,
			Device:    "Bot",
			Bot:       true,
		}
	}

	browser, _ := parser.parseBrowser(userAgent)
	os, osVersion := parser.parseOS(userAgent)

	brand, model, class, matched := parser.parseDevice(userAgent)
	if !matched {
		class = fallbackDeviceClass(userAgent, os)
	}

	result := UserAgent{
		UserAgent: userAgent,
		OS:        os,
		OSVersion: osVersion,
		Browser:   browser,
		Device:    brand,
		Model:     model,
		Mobile:    class == "smartphone" || class == "feature phone" || class == "phablet",
		Tablet:    class == "tablet",
		Desktop:   class == "desktop" || class == "notebook",
	}
	if !result.Classified() {
		result.Mobile, result.Tablet, result.Desktop = false, false, false
	}
	return result
}
