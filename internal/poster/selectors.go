package poster

import "time"

// LinkedIn DOM selectors
// These are isolated here because LinkedIn changes their DOM frequently.
// Every composer step carries a primary selector and one fallback; a step
// only fails once both have been exhausted within its timeout.

// URLs
const (
	loginURL = "https://www.linkedin.com/login"
	feedURL  = "https://www.linkedin.com/feed/"
)

// URL fragments that identify auth state
const (
	feedURLFragment      = "/feed"
	loginURLFragment     = "login"
	authwallURLFragment  = "authwall"
	challengeURLFragment = "challenge"
	chkpointURLFragment  = "checkpoint"
	postURLFragment      = "feed/update"
)

// step is one UI interaction with an ordered list of candidate selectors.
type step struct {
	name      string
	selectors []string
	timeout   time.Duration
}

// Login form
var (
	stepLoginEmail = step{
		name:      "login email field",
		selectors: []string{`input[name="session_key"]`, `#username`},
		timeout:   10 * time.Second,
	}
	stepLoginPassword = step{
		name:      "login password field",
		selectors: []string{`input[name="session_password"]`, `#password`},
		timeout:   10 * time.Second,
	}
	stepLoginSubmit = step{
		name:      "login submit button",
		selectors: []string{`button[type="submit"]`, `button[data-litms-control-urn="login-submit"]`},
		timeout:   10 * time.Second,
	}
)

// Composer
var (
	stepOpenComposer = step{
		name:      "start a post button",
		selectors: []string{`button[aria-label*="Start a post"]`, `.share-box-feed-entry__trigger`},
		timeout:   5 * time.Second,
	}
	stepComposerDialog = step{
		name:      "composer dialog",
		selectors: []string{`div[role="dialog"]`, `.share-box-modal`},
		timeout:   10 * time.Second,
	}
	stepAddMedia = step{
		name:      "add media button",
		selectors: []string{`button[aria-label*="Add a photo"]`, `button[aria-label*="Add media"]`},
		timeout:   5 * time.Second,
	}
	stepFileInput = step{
		name:      "file input",
		selectors: []string{`input[type="file"]`, `input[accept*="image"]`},
		timeout:   10 * time.Second,
	}
	stepCaptionField = step{
		name:      "caption editor",
		selectors: []string{`div[contenteditable="true"]`, `.ql-editor`},
		timeout:   10 * time.Second,
	}
	stepPublish = step{
		name:      "post button",
		selectors: []string{`button.share-actions__primary-action`, `button[aria-label*="Post"]`},
		timeout:   5 * time.Second,
	}
)

// Scheduling sub-dialog
var (
	stepOpenScheduler = step{
		name:      "schedule button",
		selectors: []string{`button[aria-label*="Schedule"]`, `button.share-actions__scheduled-post-btn`},
		timeout:   5 * time.Second,
	}
	stepScheduleDate = step{
		name:      "schedule date field",
		selectors: []string{`input[type="date"]`, `input[name="scheduleDate"]`},
		timeout:   5 * time.Second,
	}
	stepScheduleTime = step{
		name:      "schedule time field",
		selectors: []string{`input[type="time"]`, `input[name="scheduleTime"]`},
		timeout:   5 * time.Second,
	}
	stepScheduleConfirm = step{
		name:      "schedule confirm button",
		selectors: []string{`button[aria-label*="Schedule"]`, `button.share-actions__primary-action`},
		timeout:   5 * time.Second,
	}
)

// Wait windows that aren't tied to a selector
const (
	loginRedirectTimeout = 30 * time.Second
	mediaSettleWait      = 8 * time.Second
	composerSettleWait   = 3 * time.Second
	publishSettleWait    = 5 * time.Second
	sessionCheckTimeout  = 15 * time.Second
)
