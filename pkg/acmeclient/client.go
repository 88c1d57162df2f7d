// Obtains and renews certificates from a public CA over ACME. The rest of the
// system only sees the narrow Client interface, so lifecycle logic is testable
// without network or a CA.
package acmeclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/deploykit/sslkeeper/pkg/certbundle"
)

type Client interface {
	// all checks must pass before an acquisition is attempted
	Preflight(ctx context.Context) error
	Obtain(ctx context.Context, domain string) (*certbundle.Bundle, error)
	// current is needed because ACME renewal is re-issuance over the same domains
	Renew(ctx context.Context, current *certbundle.Bundle, domain string) (*certbundle.Bundle, error)
}

type PreflightError struct {
	Reason string
}

func (e *PreflightError) Error() string {
	return "acme preflight failed: " + e.Reason
}

type AcquisitionError struct {
	Hint string // diagnostic hint, not a distinct error type
	Err  error
}

func (e *AcquisitionError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("acme acquisition failed (%s): %v", e.Hint, e.Err)
	}
	return fmt.Sprintf("acme acquisition failed: %v", e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// maps common CA-side failures to human hints. best effort string matching -
// the ACME error surface is not typed enough to do better.
func hintFor(err error) string {
	if err == nil {
		return ""
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "no such host") || strings.Contains(msg, "nxdomain"):
		return "domain does not resolve publicly"
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "timeout"):
		return "port 80 not reachable from the internet (firewall?)"
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return "CA rate limit hit, retry later"
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid challenge"):
		return "HTTP-01 challenge failed"
	default:
		return ""
	}
}
