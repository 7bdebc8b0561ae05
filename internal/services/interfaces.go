package services

import (
	"context"

	"github.com/nexconsult/egrn-tools/internal/models"
)

// Browser is the browser automation surface the session driver needs.
// Wait and element operations honour the deadline of ctx.
type Browser interface {
	// ClearCookies removes every cookie of the browser session
	ClearCookies(ctx context.Context) error

	// Navigate navigates to a URL
	Navigate(ctx context.Context, url string) error

	// WaitFor waits for an element matching selector to be present
	WaitFor(ctx context.Context, selector string) error

	// SendKeys types text into an element
	SendKeys(ctx context.Context, selector, text string) error

	// Click clicks on an element
	Click(ctx context.Context, selector string) error

	// Evaluate executes JavaScript, decoding its result into res when not nil
	Evaluate(ctx context.Context, script string, res interface{}) error

	// AttributeValue reads an attribute of an element
	AttributeValue(ctx context.Context, selector, name string) (string, bool, error)

	// Text gets text content from an element
	Text(ctx context.Context, selector string) (string, error)

	// HTML gets HTML content from the page
	HTML(ctx context.Context) (string, error)

	// Close closes the browser session
	Close() error
}

// CaptchaSolver converts a base64 captcha image into its text
type CaptchaSolver interface {
	Solve(ctx context.Context, image string) (string, error)
}

// LedgerInterface records submission outcomes for later lookup
type LedgerInterface interface {
	// Record stores the outcome of one object
	Record(ctx context.Context, result models.SubmissionResult) error

	// Lookup returns the recorded outcome of an object, nil when unknown
	Lookup(ctx context.Context, objectID string) (*models.SubmissionResult, error)

	// Health returns ledger health status
	Health() map[string]interface{}
}
