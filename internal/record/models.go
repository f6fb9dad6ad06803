package record

import "time"

// MaxSlides is the LinkedIn carousel slide limit. Slide 1 is the hook.
const MaxSlides = 7

// PostType distinguishes plain text posts from multi-image carousels.
type PostType string

const (
	PostTypeText     PostType = "text"
	PostTypeCarousel PostType = "carousel"
)

// PostState is the lifecycle state of a ContentItem. The progression is
// strictly forward except for the universal escape to StateFailed.
type PostState string

const (
	StateIdeaCaptured   PostState = "IDEA_CAPTURED"
	StateContentReady   PostState = "CONTENT_READY"
	StateAssetsRequired PostState = "ASSETS_REQUIRED"
	StateAssetsAttached PostState = "ASSETS_ATTACHED"
	StateVisualsReady   PostState = "VISUALS_READY"
	StateReadyToPost    PostState = "READY_TO_POST"
	StateScheduled      PostState = "SCHEDULED"
	StatePosted         PostState = "POSTED"
	StateFailed         PostState = "FAILED"
)

// Terminal reports whether no further transitions are allowed from s.
func (s PostState) Terminal() bool {
	return s == StatePosted || s == StateFailed
}

// Category is the closed classification set for memories.
type Category string

const (
	CategoryUnclassified Category = "unclassified"
	CategoryWorkLog      Category = "work_log"
	CategoryInsight      Category = "insight"
	CategoryFailure      Category = "failure"
	CategoryIdea         Category = "idea"
	CategoryMisc         Category = "misc"
)

// ParseCategory maps a raw LLM label onto the closed category set,
// defaulting to CategoryMisc for anything unrecognized.
func ParseCategory(s string) Category {
	switch Category(s) {
	case CategoryWorkLog, CategoryInsight, CategoryFailure, CategoryIdea, CategoryMisc:
		return Category(s)
	default:
		return CategoryMisc
	}
}

// HasContext is a tri-state flag for whether a memory carries enough
// surrounding detail to draft from directly.
type HasContext string

const (
	ContextYes     HasContext = "yes"
	ContextNo      HasContext = "no"
	ContextUnknown HasContext = "unknown"
)

// Memory is one captured raw note. Immutable once created except for
// Category, HasContext and Used.
type Memory struct {
	ID         string     `json:"id"`
	Timestamp  time.Time  `json:"timestamp"`
	Source     string     `json:"source"`
	Text       string     `json:"text"`
	Category   Category   `json:"category"`
	HasContext HasContext `json:"has_context"`
	Used       bool       `json:"used"`
}

// ContentItem is one content unit moving through the pipeline.
type ContentItem struct {
	ID              string    `json:"id"`
	CreatedAt       time.Time `json:"created_at"`
	PostType        PostType  `json:"post_type"`
	BodyText        string    `json:"body_text"`
	SlideTexts      []string  `json:"slide_texts"`
	SourceMemoryIDs []string  `json:"source_memory_ids"`
	State           PostState `json:"state"`
	DesignIntent    string    `json:"design_intent"`
	RequiredAssets  string    `json:"required_assets"`
	AssetLinks      []string  `json:"asset_links"`
	VisualLinks     []string  `json:"visual_links"`
	ScheduledTime   time.Time `json:"scheduled_time"`
	PostedTime      time.Time `json:"posted_time"`
	PostingStatus   string    `json:"posting_status"`
	ErrorLog        string    `json:"error_log"`
}

// Caption returns the text that goes into the LinkedIn composer: the body
// for text posts, the hook slide for carousels.
func (c *ContentItem) Caption() string {
	if c.PostType == PostTypeCarousel && len(c.SlideTexts) > 0 {
		return c.SlideTexts[0]
	}
	return c.BodyText
}
