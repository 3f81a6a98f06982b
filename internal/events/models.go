package events

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"pagelens/internal/pkg/referrers"
	"pagelens/internal/visitors"
)

// TargetType is the kind of entity an event is about.
type TargetType string

const (
	TargetBusiness    TargetType = "business"
	TargetProfile     TargetType = "profile"
	TargetSocialMedia TargetType = "socialMedia"
	TargetFavorite    TargetType = "favorite"
	TargetOther       TargetType = "other"
)

// TargetTypes lists every accepted target type.
var TargetTypes = []TargetType{TargetBusiness, TargetProfile, TargetSocialMedia, TargetFavorite, TargetOther}

func (t TargetType) Valid() bool {
	for _, v := range TargetTypes {
		if t == v {
			return true
		}
	}
	return false
}

type InteractionType string

const (
	InteractionView         InteractionType = "view"
	InteractionClick        InteractionType = "click"
	InteractionShare        InteractionType = "share"
	InteractionFavorite     InteractionType = "favorite"
	InteractionContact      InteractionType = "contact"
	InteractionVisitWebsite InteractionType = "visit_website"
	InteractionCall         InteractionType = "call"
	InteractionEmail        InteractionType = "email"
)

var InteractionTypes = []InteractionType{
	InteractionView, InteractionClick, InteractionShare, InteractionFavorite,
	InteractionContact, InteractionVisitWebsite, InteractionCall, InteractionEmail,
}

func (i InteractionType) Valid() bool {
	for _, v := range InteractionTypes {
		if i == v {
			return true
		}
	}
	return false
}

// IsInteraction reports whether the event counts as an interaction rather
// than a plain view.
func (i InteractionType) IsInteraction() bool {
	return i != InteractionView
}

// Event is one recorded view or interaction. Rows are written once and
// never updated.
type Event struct {
	ID              string              `gorm:"primaryKey;size:36" json:"id"`
	TargetID        string              `gorm:"index:idx_target_created,priority:1;size:128;not null" json:"targetId"`
	TargetType      TargetType          `gorm:"index:idx_target_created,priority:2;size:32;not null" json:"targetType"`
	ViewerID        *string             `gorm:"index;size:128" json:"viewerId,omitempty"`
	ViewerType      visitors.ViewerType `gorm:"size:16;not null" json:"viewerType"`
	SessionID       string              `gorm:"index;size:128;not null" json:"sessionId"`
	InteractionType InteractionType     `gorm:"index;size:32;not null" json:"interactionType"`
	Location        Location            `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	Device          Device              `gorm:"embedded;embeddedPrefix:device_" json:"deviceInfo"`
	Referral        referrers.Referral  `gorm:"embedded;embeddedPrefix:referral_" json:"referral"`
	HasLinkData     bool                `gorm:"index;not null;default:false" json:"-"`
	LinkData        LinkData            `gorm:"embedded;embeddedPrefix:link_" json:"linkData,omitzero"`
	Timing          Timing              `gorm:"embedded;embeddedPrefix:timing_" json:"timing"`
	Metrics         Metrics             `gorm:"embedded;embeddedPrefix:metric_" json:"metrics"`
	Metadata        Metadata            `gorm:"embedded;embeddedPrefix:meta_" json:"metadata"`
	CreatedAt       time.Time           `gorm:"index:idx_target_created,priority:3;not null" json:"createdAt"`
}

type Location struct {
	Country     string   `gorm:"size:128" json:"country,omitempty"`
	CountryCode string   `gorm:"size:2" json:"countryCode,omitempty"`
	Region      string   `gorm:"size:128" json:"region,omitempty"`
	City        string   `gorm:"size:128" json:"city,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	IPAddress   string   `gorm:"size:45" json:"ipAddress,omitempty"`
	Timezone    string   `gorm:"size:64" json:"timezone,omitempty"`
	// Accuracy is the radius in kilometers.
	Accuracy *int `json:"accuracy,omitempty"`
}

type Device struct {
	Type             string `gorm:"size:16;not null;default:other" json:"type"`
	OS               string `gorm:"size:64" json:"os,omitempty"`
	Browser          string `gorm:"size:64" json:"browser,omitempty"`
	ScreenResolution string `gorm:"size:32" json:"screenResolution,omitempty"`
	UserAgent        string `gorm:"type:text" json:"userAgent,omitempty"`
}

// LinkData is only populated for click events.
type LinkData struct {
	Type           string `gorm:"size:64;index" json:"linkType,omitempty"`
	URL            string `gorm:"type:text" json:"linkUrl,omitempty"`
	Text           string `gorm:"size:512" json:"linkText,omitempty"`
	Position       *int   `json:"linkPosition,omitempty"`
	SocialPlatform string `gorm:"size:64;index" json:"socialPlatform,omitempty"`
	WasExternal    bool   `json:"wasExternal"`
	Display        string `gorm:"size:512" json:"display,omitempty"`
	Handle         string `gorm:"size:128" json:"handle,omitempty"`
}

// Timing is derived from CreatedAt once, at write time.
type Timing struct {
	Hour                  int    `json:"hour"`
	DayOfWeek             int    `json:"dayOfWeek"`
	DayOfMonth            int    `json:"dayOfMonth"`
	Month                 int    `json:"month"`
	Year                  int    `json:"year"`
	Quarter               int    `json:"quarter"`
	Week                  int    `json:"week"`
	TimezoneName          string `gorm:"size:64" json:"timezoneName"`
	TimezoneOffsetMinutes int    `json:"timezoneOffsetMinutes"`
}

type Metrics struct {
	LoadTimeMs         *float64 `json:"loadTime,omitempty"`
	Bounced            bool     `json:"bounceRate"`
	TimeOnPageSeconds  *float64 `json:"timeOnPage,omitempty"`
	ScrollDepthPercent *float64 `json:"scrollDepth,omitempty"`
	EngagementScore    float64  `json:"engagementScore"`
}

type CustomDimension struct {
	Key   string `json:"key" validate:"required,max=64"`
	Value string `json:"value" validate:"max=256"`
}

// Metadata holds the known optional page fields plus Extra for anything
// clients send that has no column of its own.
type Metadata struct {
	PageTitle        string                                `gorm:"size:512" json:"pageTitle,omitempty"`
	PageURL          string                                `gorm:"type:text" json:"pageUrl,omitempty"`
	PreviousPage     string                                `gorm:"type:text" json:"previousPage,omitempty"`
	ABTestVariant    string                                `gorm:"size:64" json:"abTestVariant,omitempty"`
	CustomDimensions datatypes.JSONSlice[CustomDimension]  `json:"customDimensions,omitempty"`
	Tags             datatypes.JSONSlice[string]           `json:"tags,omitempty"`
	Extra            datatypes.JSONType[map[string]string] `json:"extra"`
}

// BeforeCreate assigns the id and freezes CreatedAt and Timing.
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	e.Timing = DeriveTiming(e.CreatedAt)
	if e.ViewerID != nil && *e.ViewerID == "" {
		e.ViewerID = nil
	}
	e.ViewerType = visitors.ViewerTypeFor(e.Viewer())
	if e.InteractionType != InteractionClick {
		e.LinkData = LinkData{}
	}
	e.HasLinkData = e.LinkData != (LinkData{})
	return nil
}

// Viewer returns the viewer id or "" for anonymous events.
func (e *Event) Viewer() string {
	if e.ViewerID == nil {
		return ""
	}
	return *e.ViewerID
}
