package browser

import (
	"context"
	"net/url"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

func setHeaders(headers map[string]any) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return err
		}
		return network.SetExtraHTTPHeaders(network.Headers(headers)).Do(ctx)
	})
}

// blockImageRequests drops image fetches at the network layer to speed up
// renders where only the DOM matters.
func blockImageRequests() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return err
		}
		return network.SetBlockedURLS([]string{
			"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.ico",
		}).Do(ctx)
	})
}

// networkIdleWait bounds the wait for the networkIdle lifecycle event. The
// event can fire before the listener attaches (the action runs after
// navigation), so the bound doubles as the fallback for already-idle pages.
const networkIdleWait = 2 * time.Second

func waitNetworkIdle() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := page.SetLifecycleEventsEnabled(true).Do(ctx); err != nil {
			return err
		}
		idle := make(chan struct{}, 1)
		listenCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		chromedp.ListenTarget(listenCtx, func(ev interface{}) {
			if e, ok := ev.(*page.EventLifecycleEvent); ok && e.Name == "networkIdle" {
				select {
				case idle <- struct{}{}:
				default:
				}
			}
		})
		select {
		case <-idle:
			return nil
		case <-time.After(networkIdleWait):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

func hostOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return u.Hostname(), nil
}
