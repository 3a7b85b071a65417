// Package capture renders the HTML day view in headless Chromium and saves
// it as a PNG, for printing or sharing a day's schedule.
package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"tutorcal/internal/fsutil"
)

// Default capture parameters, sized for an A4-landscape-ish page.
const (
	DefaultWidth   = 1400
	DefaultHeight  = 900
	DefaultTimeout = 30 * time.Second
)

// Options defines parameters for a capture.
type Options struct {
	// URL of the day page, e.g. "http://127.0.0.1:8080/day?date=2025-03-04".
	URL string

	// OutputPath is where the PNG is written.
	OutputPath string

	// Width and Height are the viewport size in pixels. Zero uses the
	// defaults.
	Width  int
	Height int

	// Timeout bounds the whole capture. Zero uses DefaultTimeout.
	Timeout time.Duration

	// Username / Password are sent as HTTP Basic credentials when set.
	Username string
	Password string
}

func (o *Options) normalize() error {
	if o.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if _, err := url.Parse(o.URL); err != nil {
		return fmt.Errorf("capture: invalid URL: %w", err)
	}
	if o.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return nil
}

// tasks builds the chromedp action list. The page signals completion with
// a visible [data-ready="true"] element.
func (o Options) tasks(png *[]byte) chromedp.Tasks {
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(o.Width), int64(o.Height)),
	}
	if o.Username != "" {
		tasks = append(tasks,
			network.Enable(),
			network.SetExtraHTTPHeaders(network.Headers{"Authorization": o.authorization()}),
		)
	}
	return append(tasks,
		chromedp.Navigate(o.URL),
		chromedp.WaitVisible(`[data-ready="true"]`, chromedp.ByQuery),
		chromedp.FullScreenshot(png, 100),
	)
}

// authorization is the Basic auth header value for the configured
// credentials.
func (o Options) authorization() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(o.Username+":"+o.Password))
}

// DayPNG loads the day page in a fresh headless Chromium context and writes
// a full-page screenshot to opts.OutputPath.
func DayPNG(parentCtx context.Context, opts Options) error {
	if err := opts.normalize(); err != nil {
		return err
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()

	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	if err := chromedp.Run(ctx, opts.tasks(&png)); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}

	// /preview.png may be served while a new capture lands.
	if err := fsutil.WriteFileAtomic(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	return nil
}
