package poster

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// driver is the minimal browser surface the client drives. The production
// implementation runs chromedp actions; tests substitute a scripted fake.
type driver interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error
	SetFiles(ctx context.Context, selector string, paths []string, timeout time.Duration) error
	Location(ctx context.Context) (string, error)
	Cookies(ctx context.Context) ([]*network.Cookie, error)
	SetCookies(ctx context.Context, cookies []*network.Cookie) error
	Screenshot(ctx context.Context) ([]byte, error)
	Sleep(ctx context.Context, d time.Duration)
}

// chromeDriver implements driver on a live chromedp browser context.
type chromeDriver struct {
	browserCtx context.Context
}

func (d *chromeDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx := d.browserCtx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *chromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, 30*time.Second, chromedp.Navigate(url))
}

func (d *chromeDriver) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return d.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (d *chromeDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	return d.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

func (d *chromeDriver) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	return d.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (d *chromeDriver) SetFiles(ctx context.Context, selector string, paths []string, timeout time.Duration) error {
	return d.run(ctx, timeout,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.SetUploadFiles(selector, paths, chromedp.ByQuery),
	)
}

func (d *chromeDriver) Location(ctx context.Context) (string, error) {
	var url string
	err := d.run(ctx, 10*time.Second, chromedp.Location(&url))
	return url, err
}

func (d *chromeDriver) Cookies(ctx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := d.run(ctx, 10*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = storage.GetCookies().Do(ctx)
		return err
	}))
	return cookies, err
}

func (d *chromeDriver) SetCookies(ctx context.Context, cookies []*network.Cookie) error {
	return d.run(ctx, 10*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			err := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly).
				WithSameSite(c.SameSite).
				Do(ctx)
			if err != nil {
				return err
			}
		}
		return nil
	}))
}

func (d *chromeDriver) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, 10*time.Second, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().Do(ctx)
		return err
	}))
	return buf, err
}

func (d *chromeDriver) Sleep(ctx context.Context, dur time.Duration) {
	select {
	case <-time.After(dur):
	case <-ctx.Done():
	}
}
