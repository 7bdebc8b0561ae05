package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp/kb"
)

// Selectors of the registry portal form
const (
	selectorAuthorization    = "input.v-textfield"
	selectorSearchPage       = "div:first-child .v-button-caption"
	selectorInputField       = "input.v-textfield-prompt"
	selectorRegionInput      = "input.v-filterselect-input"
	selectorRegionMenuItem   = ".gwt-MenuItem"
	selectorSearchButton     = ".v-button:not(.v-button-link)"
	selectorSearchResultItem = ".v-table-cell-content-cadastral_num .v-label"
	selectorCaptchaImage     = "img[src*=captcha]"
	selectorCaptchaInput     = "input.v-textfield-srv-field"
	selectorCommitButton     = ".v-horizontallayout > div > div > div > div > div > div:first-child .v-button"
	selectorRequestID        = ".v-label.v-label-tipFont.tipFont.v-label-undef-w b"
)

const (
	captchaImageAttr   = "data-img"
	captchaImagePrefix = "data:image/png;base64,"
)

// captchaImageScript redraws the captcha on a canvas and stores it as a data URL on body
const captchaImageScript = `(() => {
	const sourceImg = document.querySelector('img[src*=captcha]');
	const img = new Image();
	const canvas = document.createElement('canvas'), context = canvas.getContext('2d');
	img.onload = () => {
		canvas.width = img.width;
		canvas.height = img.height;
		context.drawImage(img, 0, 0, img.width, img.height);
		document.body.setAttribute('data-img', canvas.toDataURL('image/png'));
	};
	img.src = sourceImg.src;
})()`

var (
	// ErrStepTimeout is wrapped by every StepTimeoutError
	ErrStepTimeout = errors.New("step element not found in time")

	// ErrEmptySolution means the captcha solver produced no text
	ErrEmptySolution = errors.New("captcha solution is empty")

	// ErrCaptchaNotRendered means the captcha canvas never produced an image
	ErrCaptchaNotRendered = errors.New("captcha image was not rendered")

	// ErrRequestIDEmpty means the confirmation label held no request id
	ErrRequestIDEmpty = errors.New("request id is empty")
)

// StepTimeoutError reports a step whose element did not appear within its timeout
type StepTimeoutError struct {
	Step string
	Err  error
}

func (e *StepTimeoutError) Error() string {
	return e.Step + " not found"
}

func (e *StepTimeoutError) Unwrap() []error {
	return []error{ErrStepTimeout, e.Err}
}

// StepError reports a step whose element appeared but whose action failed
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// attempt carries the values produced by earlier steps to later ones
type attempt struct {
	objectID  string
	image     string
	requestID string
}

// Step is one named stage of the submission flow. The runner sleeps Pause,
// waits up to Timeout for Selector, then runs Action.
type Step struct {
	Name          string
	Selector      string
	Timeout       time.Duration
	Pause         time.Duration
	ActionTimeout time.Duration
	Optional      bool
	Action        func(s *Session, ctx context.Context, a *attempt) error
}

// newSubmissionSteps builds the ordered step table of one attempt
func newSubmissionSteps(cfg SessionConfig) []Step {
	return []Step{
		{Name: "Session", Action: (*Session).openPortal},
		{Name: "Authorization", Selector: selectorAuthorization, Timeout: 10 * time.Second, Action: (*Session).authorize},
		{Name: "Search Page button", Selector: selectorSearchPage, Timeout: 5 * time.Second, Pause: 2 * time.Second, Action: clickStep(selectorSearchPage)},
		{Name: "Input Field", Selector: selectorInputField, Timeout: 5 * time.Second, Pause: 3 * time.Second, Action: (*Session).enterObjectID},
		{Name: "Region Input", Selector: selectorRegionInput, Timeout: 5 * time.Second, Action: (*Session).enterRegion},
		{Name: "Region Menu Item", Selector: selectorRegionMenuItem, Timeout: 5 * time.Second, Optional: true, Action: clickStep(selectorRegionMenuItem)},
		{Name: "Search Button", Selector: selectorSearchButton, Timeout: 5 * time.Second, Pause: 2 * time.Second, Action: clickStep(selectorSearchButton)},
		{Name: "Search Result Item", Selector: selectorSearchResultItem, Timeout: 5 * time.Second, Action: clickStep(selectorSearchResultItem)},
		{Name: "Captcha Image", Selector: selectorCaptchaImage, Timeout: 5 * time.Second, Action: (*Session).captureCaptcha},
		{Name: "Captcha Input", Selector: selectorCaptchaInput, Timeout: 5 * time.Second, ActionTimeout: cfg.CaptchaTimeout, Action: (*Session).enterCaptcha},
		{Name: "Commit Button", Selector: selectorCommitButton, Timeout: 5 * time.Second, Action: clickStep(selectorCommitButton)},
		{Name: "Request ID", Selector: selectorRequestID, Timeout: 5 * time.Second, Pause: 2 * time.Second, Action: (*Session).readRequestID},
	}
}

// runStep executes one step against the browser
func (s *Session) runStep(ctx context.Context, step Step, a *attempt) error {
	if step.Pause > 0 {
		if err := s.sleep(ctx, step.Pause); err != nil {
			return err
		}
	}

	if step.Selector != "" {
		waitCtx, cancel := context.WithTimeout(ctx, step.Timeout)
		err := s.browser.WaitFor(waitCtx, step.Selector)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if step.Optional {
				s.logger.WithField("step", step.Name).Debug("Optional step element absent, skipping")
				return nil
			}
			return &StepTimeoutError{Step: step.Name, Err: err}
		}
	}

	if step.Action == nil {
		return nil
	}

	timeout := step.ActionTimeout
	if timeout <= 0 {
		timeout = s.cfg.ActionTimeout
	}
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := step.Action(s, actionCtx, a); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &StepError{Step: step.Name, Err: err}
	}
	return nil
}

func clickStep(selector string) func(s *Session, ctx context.Context, a *attempt) error {
	return func(s *Session, ctx context.Context, a *attempt) error {
		return s.browser.Click(ctx, selector)
	}
}

func (s *Session) openPortal(ctx context.Context, a *attempt) error {
	if err := s.browser.ClearCookies(ctx); err != nil {
		return fmt.Errorf("failed to clear cookies: %w", err)
	}
	if err := s.browser.Navigate(ctx, s.cfg.PortalURL); err != nil {
		return fmt.Errorf("failed to open portal: %w", err)
	}
	return nil
}

func (s *Session) authorize(ctx context.Context, a *attempt) error {
	return s.browser.SendKeys(ctx, selectorAuthorization, s.cfg.AccessKey+kb.Enter)
}

func (s *Session) enterObjectID(ctx context.Context, a *attempt) error {
	return s.browser.SendKeys(ctx, selectorInputField, a.objectID+kb.Enter)
}

func (s *Session) enterRegion(ctx context.Context, a *attempt) error {
	return s.browser.SendKeys(ctx, selectorRegionInput, s.cfg.Region+kb.Enter)
}

func (s *Session) captureCaptcha(ctx context.Context, a *attempt) error {
	if err := s.browser.Evaluate(ctx, captchaImageScript, nil); err != nil {
		return fmt.Errorf("failed to render captcha: %w", err)
	}

	// Image onload is asynchronous
	if err := s.sleep(ctx, time.Second); err != nil {
		return err
	}

	value, ok, err := s.browser.AttributeValue(ctx, "body", captchaImageAttr)
	if err != nil {
		return fmt.Errorf("failed to read captcha image: %w", err)
	}
	if !ok || value == "" {
		return ErrCaptchaNotRendered
	}

	a.image = strings.TrimPrefix(value, captchaImagePrefix)
	return nil
}

func (s *Session) enterCaptcha(ctx context.Context, a *attempt) error {
	text, err := s.solver.Solve(ctx, a.image)
	if err != nil {
		return err
	}
	if text == "" {
		return ErrEmptySolution
	}
	return s.browser.SendKeys(ctx, selectorCaptchaInput, text+kb.Enter)
}

func (s *Session) readRequestID(ctx context.Context, a *attempt) error {
	text, err := s.browser.Text(ctx, selectorRequestID)
	if err != nil {
		return fmt.Errorf("failed to read request id: %w", err)
	}

	requestID := strings.TrimSpace(text)
	if requestID == "" {
		html, err := s.browser.HTML(ctx)
		if err != nil {
			return fmt.Errorf("failed to read page html: %w", err)
		}
		requestID = requestIDFromHTML(html)
	}
	if requestID == "" {
		return ErrRequestIDEmpty
	}

	a.requestID = requestID
	return nil
}

// requestIDFromHTML finds the request id label in a page snapshot
func requestIDFromHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find(selectorRequestID).First().Text())
}
