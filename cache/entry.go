package cache

import (
	"math"
	"time"
)

// Source identifies the tier an entry was last served from.
type Source string

const (
	SourceNetwork  Source = "network"
	SourceDurable  Source = "durable"
	SourceVolatile Source = "volatile"
)

// PageKind classifies the page a cached payload belongs to.
// Dashboard and profile pages are revisited most, so they carry
// the highest base priority.
type PageKind int

const (
	PageOther PageKind = iota
	PageDashboard
	PageProfile
	PageTimetable
	PageSettings
)

func (k PageKind) String() string {
	switch k {
	case PageDashboard:
		return "dashboard"
	case PageProfile:
		return "profile"
	case PageTimetable:
		return "timetable"
	case PageSettings:
		return "settings"
	default:
		return "other"
	}
}

// ParsePageKind maps a page kind name to its enum value.
// Unknown names map to PageOther.
func ParsePageKind(s string) PageKind {
	switch s {
	case "dashboard":
		return PageDashboard
	case "profile":
		return PageProfile
	case "timetable":
		return PageTimetable
	case "settings":
		return PageSettings
	default:
		return PageOther
	}
}

// ContentKind classifies the payload itself.
// User-generated content outranks personalized, which outranks generic.
type ContentKind int

const (
	ContentGeneric ContentKind = iota
	ContentPersonalized
	ContentUserGenerated
)

func (k ContentKind) String() string {
	switch k {
	case ContentUserGenerated:
		return "user-generated"
	case ContentPersonalized:
		return "personalized"
	default:
		return "generic"
	}
}

// ParseContentKind maps a content kind name to its enum value.
// Unknown names map to ContentGeneric.
func ParseContentKind(s string) ContentKind {
	switch s {
	case "user-generated":
		return ContentUserGenerated
	case "personalized":
		return ContentPersonalized
	default:
		return ContentGeneric
	}
}

var pageKindPriority = map[PageKind]float64{
	PageDashboard: 50,
	PageProfile:   50,
	PageTimetable: 40,
	PageSettings:  40,
	PageOther:     25,
}

var contentKindPriority = map[ContentKind]float64{
	ContentUserGenerated: 40,
	ContentPersonalized:  30,
	ContentGeneric:       15,
}

// BasePriority returns the classification-based priority assigned to a
// freshly written entry, before any access-pattern scoring kicks in.
func BasePriority(page PageKind, content ContentKind) float64 {
	return clampPriority(pageKindPriority[page] + contentKindPriority[content])
}

// Metadata carries bookkeeping about a cache entry's lifecycle.
type Metadata struct {
	CreatedAt         time.Time   `json:"createdAt"`
	LastAccessedAt    time.Time   `json:"lastAccessedAt"`
	AccessCount       int64       `json:"accessCount"`
	Source            Source      `json:"source"`
	PageKind          PageKind    `json:"pageKind"`
	ContentKind       ContentKind `json:"contentKind"`
	HasUnsavedChanges bool        `json:"hasUnsavedChanges,omitempty"`
}

// Entry is a single cached page payload plus its eviction and
// staleness bookkeeping. Data is an opaque serialized blob; callers
// marshal and unmarshal it themselves.
type Entry struct {
	Data      []byte    `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	ExpiresAt time.Time `json:"expiresAt"`
	Priority  float64   `json:"priority"`
	SizeBytes int64     `json:"sizeBytes"`
	Tags      []string  `json:"tags,omitempty"`
	Stale     bool      `json:"stale"`
	Metadata  Metadata  `json:"metadata"`
}

// Expired reports whether the entry's freshness window has passed.
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Age returns the time elapsed since the entry's data was produced.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.Timestamp)
}

// Touch records an access and recomputes the entry's priority from its
// access frequency and recency. Recency is measured against the access
// time prior to this one, so a long-idle entry re-enters with a low
// recency score and earns its way back up.
func (e *Entry) Touch(now time.Time, w Weights) {
	idle := now.Sub(e.Metadata.LastAccessedAt)
	e.Metadata.AccessCount++
	e.Metadata.LastAccessedAt = now
	e.Priority = clampPriority(
		frequencyScore(e.Metadata.AccessCount)*w.Frequency +
			recencyScore(idle)*w.Recency)
}

// HasTag reports whether the entry carries the given tag.
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// frequencyScore grows logarithmically with access count and caps at 100.
func frequencyScore(count int64) float64 {
	return math.Min(100, math.Log10(float64(count)+1)*50)
}

// recencyScore decays exponentially with a 24-hour half-life-ish curve.
func recencyScore(idle time.Duration) float64 {
	return math.Max(0, 100*math.Exp(-idle.Hours()/24))
}

func clampPriority(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
