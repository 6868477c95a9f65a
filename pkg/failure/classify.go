// Package failure maps reasoning engine errors onto user-facing messages.
// Classification is substring-based on the provider error text; anything
// unrecognized passes through verbatim.
package failure

import "strings"

// HTTP status codes recognized by Classify
const (
	CodePaymentRequired = 402
	CodeUnauthorized    = 401
	CodeRateLimited     = 429
)

// Classified is a user-facing rendition of an upstream failure. Code is zero
// when the failure did not match a known class.
type Classified struct {
	Message string `json:"error"`
	Code    int    `json:"error_code,omitempty"`
}

// Error implements the error interface
func (c *Classified) Error() string {
	return c.Message
}

// Classify inspects the error text and returns a user-facing failure.
// Matching order is billing, then authentication, then rate limiting; the
// first match wins.
func Classify(err error) *Classified {
	if err == nil {
		return &Classified{Message: "unknown error"}
	}
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(msg, "402") || strings.Contains(msg, "Payment Required") || strings.Contains(lower, "payment"):
		return &Classified{
			Code:    CodePaymentRequired,
			Message: "OpenRouter API billing error: Your account requires payment or has insufficient credits. Please check your OpenRouter account balance.",
		}
	case strings.Contains(msg, "401") || strings.Contains(msg, "Unauthorized"):
		return &Classified{
			Code:    CodeUnauthorized,
			Message: "OpenRouter API authentication error: Please check your OPENROUTER_API_KEY in the .env file.",
		}
	case strings.Contains(msg, "429") || strings.Contains(lower, "rate limit"):
		return &Classified{
			Code:    CodeRateLimited,
			Message: "OpenRouter API rate limit exceeded: Please wait a moment and try again.",
		}
	default:
		return &Classified{Message: msg}
	}
}
