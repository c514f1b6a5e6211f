package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

// PageRenderer drives a headless browser to render JavaScript-only recipe
// pages. The browser is started lazily and kept alive across imports.
type PageRenderer struct {
	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewPageRenderer() *PageRenderer {
	return &PageRenderer{}
}

func (p *PageRenderer) ensureBrowser() error {
	if p.browserCtx != nil && p.browserCtx.Err() == nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
	)
	p.allocCtx, p.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	p.browserCtx, p.browserCancel = chromedp.NewContext(p.allocCtx)

	// Force the browser process to actually start so failures surface here.
	if err := chromedp.Run(p.browserCtx); err != nil {
		p.teardown()
		return fmt.Errorf("failed to start browser: %v", err)
	}
	return nil
}

// Render loads the page and returns the rendered HTML.
func (p *PageRenderer) Render(ctx context.Context, pageURL string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureBrowser(); err != nil {
		return "", err
	}

	tabCtx, cancel := context.WithTimeout(p.browserCtx, 45*time.Second)
	defer cancel()

	var html string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(pageURL),
		chromedp.Sleep(2*time.Second), // let late-loading recipe cards settle
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("failed to render %s: %v", pageURL, err)
	}
	return html, nil
}

// Close shuts the browser down.
func (p *PageRenderer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardown()
}

func (p *PageRenderer) teardown() {
	if p.browserCancel != nil {
		p.browserCancel()
		p.browserCancel = nil
	}
	if p.allocCancel != nil {
		p.allocCancel()
		p.allocCancel = nil
	}
	p.browserCtx = nil
	p.allocCtx = nil
}
