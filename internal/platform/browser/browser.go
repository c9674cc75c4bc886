package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Driver wraps a connection to an already-running Chromium instance. The
// browser itself is launched by the sandbox coordinator; the driver only
// attaches to its DevTools endpoint.
type Driver struct {
	browser *rod.Browser
}

// Connect attaches to the browser's debug endpoint
func Connect(ctx context.Context, controlURL string) (*Driver, error) {
	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("unable to connect to browser: %w", err)
	}
	return &Driver{browser: b}, nil
}

// Close detaches from the browser without killing the process
func (d *Driver) Close() error {
	return d.browser.Close()
}

// Page returns the first open page, creating one if the browser has none.
// Sandbox browsers run in single-URL app mode, so there is at most one.
func (d *Driver) Page(ctx context.Context) (*rod.Page, error) {
	pages, err := d.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("unable to list pages: %w", err)
	}
	if len(pages) > 0 {
		return pages.First().Context(ctx), nil
	}
	page, err := d.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("unable to create page: %w", err)
	}
	return page.Context(ctx), nil
}

// Navigate loads url and waits for the load event plus network settle
func Navigate(page *rod.Page, url string, timeout time.Duration) error {
	page = page.Timeout(timeout)
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("page load wait failed: %w", err)
	}
	WaitSettled(page, 2*time.Second)
	return nil
}

// WaitSettled waits for network quiescence, bounded by d. Best effort: a
// page that streams forever still returns after the bound.
func WaitSettled(page *rod.Page, d time.Duration) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wait := page.Timeout(d).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)
		wait()
	}()
	select {
	case <-done:
	case <-time.After(d):
	}
}

// CurrentURL returns the page's current location
func CurrentURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}
