// Package browser drives a shared headless Chrome process for rendering
// product and wishlist pages. The allocator is launched once and reused; each
// fetch runs in its own tab.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	hostGap                  = time.Second

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	acceptLanguage = "en-US,en;q=0.9"
)

// ErrBlocked marks an anti-bot interstitial. Transient: the caller may retry
// later; the job fails with an upstream-blocked error.
var ErrBlocked = errors.New("page blocked by anti-bot challenge")

// challengePhrases are scanned case-insensitively in the rendered content.
var challengePhrases = []string{
	"verify you are a human",
	"enter the characters you see below",
	"captcha",
	"access to this page has been denied",
	"unusual traffic from your computer",
	"are you a robot",
}

// Page is a rendered, sanitized page.
type Page struct {
	HTML     string
	Title    string
	FinalURL string
}

// Options tune a single fetch.
type Options struct {
	BlockImages    bool
	WaitCondition  string // "domcontentloaded" (default) or "networkidle"
	Timeout        time.Duration
	ExpandWishlist bool // run the infinite-scroll expansion
}

// Browser owns the Chrome allocator. Safe for concurrent use; launch is
// serialized so concurrent callers wait on a single startup.
type Browser struct {
	execPath string
	log      *slog.Logger

	mu          sync.Mutex
	allocCtx    context.Context
	allocCancel context.CancelFunc

	hostMu    sync.Mutex
	lastFetch map[string]time.Time
}

func New(execPath string, log *slog.Logger) *Browser {
	return &Browser{
		execPath:  execPath,
		log:       log,
		lastFetch: make(map[string]time.Time),
	}
}

// allocator returns the shared exec allocator, launching Chrome on first use
// and relaunching if the previous process died.
func (b *Browser) allocator() (context.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.allocCtx != nil && b.allocCtx.Err() == nil {
		return b.allocCtx, nil
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}

	b.allocCtx, b.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	b.log.Info("browser allocator started")
	return b.allocCtx, nil
}

// Close tears down the Chrome process.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.allocCancel != nil {
		b.allocCancel()
		b.allocCtx = nil
		b.allocCancel = nil
	}
}

// waitForHostSlot enforces the 1s minimum gap between requests to the same
// host, across all callers.
func (b *Browser) waitForHostSlot(ctx context.Context, host string) error {
	for {
		b.hostMu.Lock()
		last, ok := b.lastFetch[host]
		wait := time.Duration(0)
		if ok {
			if d := hostGap - time.Since(last); d > 0 {
				wait = d
			}
		}
		if wait == 0 {
			b.lastFetch[host] = time.Now()
			b.hostMu.Unlock()
			return nil
		}
		b.hostMu.Unlock()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// FetchRenderedPage navigates to url in a fresh tab, optionally expands a
// marketplace wishlist by scrolling, and returns the sanitized document.
func (b *Browser) FetchRenderedPage(ctx context.Context, rawURL string, opts Options) (*Page, error) {
	host, err := hostOf(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if err := b.waitForHostSlot(ctx, host); err != nil {
		return nil, err
	}

	allocCtx, err := b.allocator()
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultNavigationTimeout
	}

	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, timeout)
	defer cancelTimeout()

	actions := []chromedp.Action{
		setHeaders(map[string]any{"Accept-Language": acceptLanguage}),
	}
	if opts.BlockImages {
		actions = append(actions, blockImageRequests())
	}
	actions = append(actions, chromedp.Navigate(rawURL))
	if opts.WaitCondition == "networkidle" {
		actions = append(actions, waitNetworkIdle())
	} else {
		actions = append(actions, chromedp.WaitReady("body"))
	}
	if err := chromedp.Run(tabCtx, actions...); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
		}
		return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
	}

	if opts.ExpandWishlist {
		if err := b.expandWishlist(tabCtx); err != nil {
			b.log.Warn("wishlist expansion stopped early", "url", rawURL, "error", err)
		}
	}

	var html, title, finalURL string
	err = chromedp.Run(tabCtx,
		chromedp.OuterHTML("html", &html),
		chromedp.Title(&title),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		return nil, fmt.Errorf("extract page content: %w", err)
	}

	if phrase := detectChallenge(html); phrase != "" {
		b.log.Warn("anti-bot challenge detected", "url", rawURL, "phrase", phrase)
		return nil, ErrBlocked
	}

	sanitized, err := Sanitize(html)
	if err != nil {
		return nil, fmt.Errorf("sanitize html: %w", err)
	}
	return &Page{HTML: sanitized, Title: title, FinalURL: finalURL}, nil
}

const (
	scrollMaxIterations = 50
	scrollWait          = 2 * time.Second
)

// wishlistItemSelector counts rendered wishlist entries across the
// marketplace layouts we support.
const wishlistItemSelector = `[data-itemid], [data-item-id], li[data-id], .g-item-sortable, .wishlist-item`

// expandWishlist scrolls to the bottom repeatedly until the rendered item
// count is stable between two iterations or the cap is hit, then clicks any
// visible "show more" affordance and scrolls once more.
func (b *Browser) expandWishlist(ctx context.Context) error {
	prev := -1
	for i := 0; i < scrollMaxIterations; i++ {
		var count int
		err := chromedp.Run(ctx,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(scrollWait),
			chromedp.Evaluate(fmt.Sprintf(`document.querySelectorAll(%q).length`, wishlistItemSelector), &count),
		)
		if err != nil {
			return err
		}
		if count == prev {
			break
		}
		prev = count
	}

	// Best effort: the affordance may not exist.
	_ = chromedp.Run(ctx,
		chromedp.Evaluate(`
			(() => {
				const btn = document.querySelector('button[aria-label*="more" i], a.show-more, button.show-more');
				if (btn) btn.click();
			})()
		`, nil),
		chromedp.Sleep(scrollWait),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
	)
	return nil
}

func detectChallenge(html string) string {
	lower := strings.ToLower(html)
	for _, phrase := range challengePhrases {
		if strings.Contains(lower, phrase) {
			return phrase
		}
	}
	return ""
}
