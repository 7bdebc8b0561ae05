package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/nexconsult/egrn-tools/internal/config"
	"github.com/sirupsen/logrus"
)

// ChromeBrowser implements Browser on top of one chromedp tab
type ChromeBrowser struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *logrus.Logger

	mu     sync.Mutex
	closed bool
}

// NewChromeBrowser launches Chrome and opens the tab used for the whole run
func NewChromeBrowser(cfg config.BrowserConfig, logger *logrus.Logger) (*ChromeBrowser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-backgrounding-occluded-windows", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.Flag("disable-features", "TranslateUI"),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
		chromedp.UserAgent(cfg.UserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, ctxCancel := chromedp.NewContext(allocCtx)

	b := &ChromeBrowser{
		ctx:    ctx,
		cancel: func() { ctxCancel(); allocCancel() },
		logger: logger,
	}

	// Starts the browser process
	if err := chromedp.Run(ctx, chromedp.Navigate("about:blank")); err != nil {
		b.cancel()
		return nil, fmt.Errorf("browser health check failed: %w", err)
	}

	logger.WithField("headless", cfg.Headless).Info("Browser started")
	return b, nil
}

// run executes actions in the tab, bounded by the deadline and cancellation of ctx
func (b *ChromeBrowser) run(ctx context.Context, actions ...chromedp.Action) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return fmt.Errorf("browser is closed")
	}

	runCtx, cancel := context.WithCancel(b.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var deadlineCancel context.CancelFunc
		runCtx, deadlineCancel = context.WithDeadline(runCtx, deadline)
		defer deadlineCancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// ClearCookies removes every cookie of the browser session
func (b *ChromeBrowser) ClearCookies(ctx context.Context) error {
	return b.run(ctx, network.ClearBrowserCookies())
}

// Navigate navigates to a URL
func (b *ChromeBrowser) Navigate(ctx context.Context, url string) error {
	return b.run(ctx, chromedp.Navigate(url))
}

// WaitFor waits for an element to be present in the DOM
func (b *ChromeBrowser) WaitFor(ctx context.Context, selector string) error {
	return b.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
}

// SendKeys types text into an element
func (b *ChromeBrowser) SendKeys(ctx context.Context, selector, text string) error {
	return b.run(ctx, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

// Click clicks on an element
func (b *ChromeBrowser) Click(ctx context.Context, selector string) error {
	return b.run(ctx, chromedp.Click(selector, chromedp.ByQuery))
}

// Evaluate executes JavaScript
func (b *ChromeBrowser) Evaluate(ctx context.Context, script string, res interface{}) error {
	return b.run(ctx, chromedp.Evaluate(script, res))
}

// AttributeValue reads an attribute of an element
func (b *ChromeBrowser) AttributeValue(ctx context.Context, selector, name string) (string, bool, error) {
	var value string
	var ok bool
	err := b.run(ctx, chromedp.AttributeValue(selector, name, &value, &ok, chromedp.ByQuery))
	return value, ok, err
}

// Text gets text content from an element
func (b *ChromeBrowser) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := b.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery))
	return text, err
}

// HTML gets HTML content from the page
func (b *ChromeBrowser) HTML(ctx context.Context) (string, error) {
	var html string
	err := b.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

// Close closes the browser
func (b *ChromeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.cancel()
	b.logger.Info("Browser closed")
	return nil
}
