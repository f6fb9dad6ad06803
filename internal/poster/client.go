// Package poster drives a real LinkedIn session in a headless browser to
// authenticate and publish carousel posts. It tolerates cosmetic UI drift
// with two-tier selectors and recovers from scheduling-dialog breakage by
// falling back to an immediate publish.
package poster

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"github.com/linconhq/lincon/internal/browser"
	"github.com/linconhq/lincon/internal/session"
)

var (
	// ErrBrowserInit means the browser failed to launch.
	ErrBrowserInit = errors.New("browser init failed")
	// ErrLoginIncomplete means credentials were submitted but the session
	// never reached the feed, even after the challenge grace window.
	ErrLoginIncomplete = errors.New("login incomplete - check 2FA/verification")
	// ErrBusy means another login/post operation is already in flight on
	// this client. Callers retry later; operations are never interleaved.
	ErrBusy = errors.New("automation client busy")
)

// Result is the outcome of a publish attempt.
type Result struct {
	Success bool   `json:"success"`
	PostURL string `json:"post_url,omitempty"`
	Error   string `json:"error,omitempty"`
	// ScheduleFellBack is set when the scheduling dialog failed and the
	// post was published immediately instead. Deliberate robustness
	// policy, surfaced so the operator knows the schedule was not kept.
	ScheduleFellBack bool `json:"schedule_fell_back,omitempty"`
	// Busy means another operation held the browser and no publish was
	// attempted. Unlike other failures this one is safe to retry.
	Busy bool `json:"busy,omitempty"`
}

// Client owns exactly one browser session per process. Login and
// PostCarousel must not run concurrently; an in-flight guard enforces that.
type Client struct {
	sessions      *session.Store
	headless      bool
	challengeWait time.Duration
	redirectWait  time.Duration
	screenshotDir string
	log           *logrus.Entry

	inFlight sync.Mutex

	initOnce    bool
	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
	drv         driver
}

// New creates an automation client. Initialize must be called before any
// other operation.
func New(sessions *session.Store, headless bool, challengeWait time.Duration, screenshotDir string, log *logrus.Entry) *Client {
	if challengeWait <= 0 {
		challengeWait = 60 * time.Second
	}
	return &Client{
		sessions:      sessions,
		headless:      headless,
		challengeWait: challengeWait,
		redirectWait:  loginRedirectTimeout,
		screenshotDir: screenshotDir,
		log:           log,
	}
}

// newWithDriver wires a scripted driver for tests.
func newWithDriver(drv driver, sessions *session.Store, log *logrus.Entry) *Client {
	return &Client{
		sessions:      sessions,
		challengeWait: time.Millisecond,
		redirectWait:  10 * time.Millisecond,
		drv:           drv,
		initOnce:      true,
		log:           log,
	}
}

// Initialize launches the browser and restores the persisted session if one
// exists. Fails with ErrBrowserInit when the browser cannot start.
func (c *Client) Initialize(ctx context.Context) error {
	if c.initOnce {
		return nil
	}

	opts := browser.Options(c.headless)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, ctxCancel := chromedp.NewContext(allocCtx)

	// A no-op run forces the browser process to actually launch.
	launchCtx, cancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer cancel()
	if err := chromedp.Run(launchCtx); err != nil {
		ctxCancel()
		allocCancel()
		return fmt.Errorf("%w: %v", ErrBrowserInit, err)
	}

	c.allocCancel = allocCancel
	c.ctxCancel = ctxCancel
	c.drv = &chromeDriver{browserCtx: browserCtx}
	c.initOnce = true

	if c.sessions.Exists() {
		if !c.sessions.IsValid() {
			c.log.Warn("persisted session is stale or incomplete, continuing unauthenticated")
			return nil
		}
		cookies, err := c.sessions.LinkedInCookies()
		if err != nil {
			c.log.WithError(err).Warn("could not load persisted session, continuing unauthenticated")
		} else if err := c.drv.SetCookies(ctx, cookies); err != nil {
			c.log.WithError(err).Warn("could not restore persisted session")
		} else {
			c.log.Info("restored persisted LinkedIn session")
		}
	}

	return nil
}

// Login submits credentials and waits for the feed redirect. A redirect to
// a checkpoint/challenge page suspends for the grace window so the human
// can complete verification out of band; if the session still isn't on the
// feed afterwards, ErrLoginIncomplete is returned. On success the new
// session is persisted, overwriting the old one - this is the only path
// that refreshes the session. Not auto-retried: retry policy belongs to
// the caller.
func (c *Client) Login(ctx context.Context, email, password string) error {
	if c.drv == nil {
		return fmt.Errorf("%w: client not initialized", ErrBrowserInit)
	}
	if !c.inFlight.TryLock() {
		return ErrBusy
	}
	defer c.inFlight.Unlock()

	if err := c.drv.Navigate(ctx, loginURL); err != nil {
		return fmt.Errorf("navigate to login page: %w", err)
	}

	if err := c.fillStep(ctx, stepLoginEmail, email); err != nil {
		return err
	}
	if err := c.fillStep(ctx, stepLoginPassword, password); err != nil {
		return err
	}
	if err := c.clickStep(ctx, stepLoginSubmit); err != nil {
		return err
	}

	if err := c.waitForFeed(ctx, c.redirectWait); err != nil {
		url, _ := c.drv.Location(ctx)
		if strings.Contains(url, chkpointURLFragment) || strings.Contains(url, challengeURLFragment) {
			c.log.Infof("2FA or verification required - waiting %v for manual completion", c.challengeWait)
			c.drv.Sleep(ctx, c.challengeWait)

			url, _ = c.drv.Location(ctx)
			if !strings.Contains(url, feedURLFragment) {
				return ErrLoginIncomplete
			}
		} else {
			return ErrLoginIncomplete
		}
	}

	cookies, err := c.drv.Cookies(ctx)
	if err != nil {
		return fmt.Errorf("extract cookies after login: %w", err)
	}
	if err := c.sessions.Save(cookies); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}

	c.log.Info("logged in and session saved")
	return nil
}

// waitForFeed polls the location until it lands on the feed.
func (c *Client) waitForFeed(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		url, err := c.drv.Location(ctx)
		if err == nil && strings.Contains(url, feedURLFragment) {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.drv.Sleep(ctx, 2*time.Second)
	}
	return fmt.Errorf("feed redirect timed out after %v", timeout)
}

// CheckSession navigates to the feed and reports whether the session is
// still authenticated. It never returns an error: network failures and
// auth-wall redirects both read as an invalid session.
func (c *Client) CheckSession(ctx context.Context) bool {
	if c.drv == nil {
		return false
	}
	if !c.inFlight.TryLock() {
		// Another operation owns the shared tab; navigating away now
		// would smash it, and a login or publish mid-flight implies a
		// live session anyway.
		return true
	}
	defer c.inFlight.Unlock()

	navCtx, cancel := context.WithTimeout(ctx, sessionCheckTimeout)
	defer cancel()

	if err := c.drv.Navigate(navCtx, feedURL); err != nil {
		c.log.WithError(err).Debug("session check navigation failed")
		return false
	}

	url, err := c.drv.Location(navCtx)
	if err != nil {
		return false
	}
	if strings.Contains(url, loginURLFragment) || strings.Contains(url, authwallURLFragment) {
		return false
	}
	return true
}

// PostCarousel publishes a multi-image post. Image order is preserved as
// slide order. When scheduledAt is non-zero the scheduling dialog is used;
// any failure inside it falls back to an immediate publish, surfaced via
// Result.ScheduleFellBack. Never auto-retried: a partially submitted post
// retried blindly risks duplicate publication.
func (c *Client) PostCarousel(ctx context.Context, caption string, imagePaths []string, scheduledAt time.Time) Result {
	if c.drv == nil {
		return Result{Error: fmt.Sprintf("%s: client not initialized", ErrBrowserInit)}
	}
	if !c.inFlight.TryLock() {
		return Result{Error: ErrBusy.Error(), Busy: true}
	}
	defer c.inFlight.Unlock()

	res, err := c.postCarousel(ctx, caption, imagePaths, scheduledAt)
	if err != nil {
		c.captureScreenshot(ctx)
		return Result{Error: err.Error(), ScheduleFellBack: res.ScheduleFellBack}
	}
	return res
}

func (c *Client) postCarousel(ctx context.Context, caption string, imagePaths []string, scheduledAt time.Time) (Result, error) {
	var res Result

	if err := c.drv.Navigate(ctx, feedURL); err != nil {
		return res, fmt.Errorf("navigate to feed: %w", err)
	}
	c.drv.Sleep(ctx, 2*time.Second)

	if err := c.clickStep(ctx, stepOpenComposer); err != nil {
		return res, err
	}
	c.drv.Sleep(ctx, composerSettleWait)

	if err := c.waitStep(ctx, stepComposerDialog); err != nil {
		return res, err
	}

	if len(imagePaths) > 0 {
		if err := c.clickStep(ctx, stepAddMedia); err != nil {
			return res, err
		}
		c.drv.Sleep(ctx, 2*time.Second)

		// All images go up as a single batch so slide order survives.
		if err := c.setFilesStep(ctx, stepFileInput, imagePaths); err != nil {
			return res, err
		}
		c.drv.Sleep(ctx, mediaSettleWait)
	}

	if err := c.fillStep(ctx, stepCaptionField, caption); err != nil {
		return res, err
	}
	c.drv.Sleep(ctx, 2*time.Second)

	scheduled := false
	if !scheduledAt.IsZero() {
		if err := c.schedule(ctx, scheduledAt); err != nil {
			// Scheduling-dialog breakage must not lose the post: publish
			// immediately and surface the fallback in the result.
			c.log.WithError(err).Warn("scheduling UI failed, falling back to immediate publish")
			res.ScheduleFellBack = true
			if err := c.clickStep(ctx, stepPublish); err != nil {
				return res, err
			}
		} else {
			scheduled = true
		}
	} else {
		if err := c.clickStep(ctx, stepPublish); err != nil {
			return res, err
		}
	}

	c.drv.Sleep(ctx, publishSettleWait)

	res.Success = true
	if !scheduled {
		if url, err := c.drv.Location(ctx); err == nil && strings.Contains(url, postURLFragment) {
			res.PostURL = url
		}
	}
	return res, nil
}

// schedule drives the scheduling sub-dialog. Its errors are recoverable:
// the caller falls back to an immediate publish.
func (c *Client) schedule(ctx context.Context, at time.Time) error {
	if err := c.clickStep(ctx, stepOpenScheduler); err != nil {
		return err
	}
	c.drv.Sleep(ctx, composerSettleWait)

	if err := c.fillStep(ctx, stepScheduleDate, at.Format("2006-01-02")); err != nil {
		return err
	}
	if err := c.fillStep(ctx, stepScheduleTime, at.Format("15:04")); err != nil {
		return err
	}
	c.drv.Sleep(ctx, 2*time.Second)

	return c.clickStep(ctx, stepScheduleConfirm)
}

// clickStep tries each candidate selector in order; the step fails only
// when all are exhausted.
func (c *Client) clickStep(ctx context.Context, st step) error {
	return c.tryStep(st, func(sel string) error {
		return c.drv.Click(ctx, sel, st.timeout)
	})
}

func (c *Client) fillStep(ctx context.Context, st step, value string) error {
	return c.tryStep(st, func(sel string) error {
		return c.drv.Fill(ctx, sel, value, st.timeout)
	})
}

func (c *Client) waitStep(ctx context.Context, st step) error {
	return c.tryStep(st, func(sel string) error {
		return c.drv.WaitVisible(ctx, sel, st.timeout)
	})
}

func (c *Client) setFilesStep(ctx context.Context, st step, paths []string) error {
	return c.tryStep(st, func(sel string) error {
		return c.drv.SetFiles(ctx, sel, paths, st.timeout)
	})
}

func (c *Client) tryStep(st step, attempt func(selector string) error) error {
	var lastErr error
	for _, sel := range st.selectors {
		if err := attempt(sel); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("%s: all selectors exhausted: %w", st.name, lastErr)
}

// captureScreenshot writes a diagnostic screenshot keyed by timestamp.
// Best-effort: its own failures are logged, never propagated.
func (c *Client) captureScreenshot(ctx context.Context) {
	if c.screenshotDir == "" {
		return
	}

	buf, err := c.drv.Screenshot(ctx)
	if err != nil {
		c.log.WithError(err).Debug("diagnostic screenshot failed")
		return
	}

	if err := os.MkdirAll(c.screenshotDir, 0700); err != nil {
		return
	}
	name := fmt.Sprintf("linkedin_error_%d.png", time.Now().UnixNano())
	path := filepath.Join(c.screenshotDir, name)
	if err := os.WriteFile(path, buf, 0600); err != nil {
		c.log.WithError(err).Debug("could not write diagnostic screenshot")
		return
	}
	c.log.WithField("path", path).Info("captured diagnostic screenshot")
}

// Close releases all browser resources. Idempotent and safe on a
// partially-initialized client.
func (c *Client) Close() {
	if c.ctxCancel != nil {
		c.ctxCancel()
		c.ctxCancel = nil
	}
	if c.allocCancel != nil {
		c.allocCancel()
		c.allocCancel = nil
	}
	c.initOnce = false
}
