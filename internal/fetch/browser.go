package fetch

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/amishk599/noticewatch/internal/model"
)

// BrowserFetcher renders a page in headless Chrome and returns the resulting
// HTML. Used for homepages that build their notice lists with JavaScript.
// Requires Chrome or Chromium on the host.
type BrowserFetcher struct {
	timeout  time.Duration
	settle   time.Duration // extra wait after body is ready
	minBytes int
}

func NewBrowserFetcher(timeout time.Duration, minBytes int) *BrowserFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &BrowserFetcher{timeout: timeout, settle: 2 * time.Second, minBytes: minBytes}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, rawURL string) model.FetchResult {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, f.timeout)
	defer cancel()

	var html, location string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(f.settle),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return failure(rawURL, err)
	}
	if location == "" {
		location = rawURL
	}

	return Check(model.FetchResult{
		URL:         location,
		Status:      model.FetchOK,
		Body:        []byte(html),
		ContentType: "text/html; charset=utf-8",
	}, f.minBytes)
}
