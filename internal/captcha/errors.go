package captcha

import (
	"errors"
	"fmt"
)

var (
	// ErrCaptchaCorrupted is returned for image payloads too short to be a real captcha
	ErrCaptchaCorrupted = errors.New("captcha image is corrupted")

	// ErrCaptchaService marks every failure reported by or talking to the remote solver
	ErrCaptchaService = errors.New("anti-captcha service error")
)

// Remote error codes that mean the account cannot be used until an operator acts
var blockedCodes = map[string]bool{
	"ERROR_ACCOUNT_SUSPENDED":  true,
	"ERROR_IP_BLOCKED":         true,
	"ERROR_IP_NOT_ALLOWED":     true,
	"ERROR_KEY_DOES_NOT_EXIST": true,
	"ERROR_ZERO_BALANCE":       true,
}

// ServiceError is an error reported by the anti-captcha API
type ServiceError struct {
	ID          int
	Code        string
	Description string
}

func (e *ServiceError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("anti-captcha: %s (errorId=%d)", e.Code, e.ID)
	}
	return fmt.Sprintf("anti-captcha: %s: %s", e.Code, e.Description)
}

func (e *ServiceError) Unwrap() error { return ErrCaptchaService }

// Blocked reports whether the error signals a blocked or unfunded account
func (e *ServiceError) Blocked() bool {
	return blockedCodes[e.Code]
}
