// Package diagnostics classifies backup failures and records the outcome of
// every local and remote write for the UI layer to display.
package diagnostics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// Reason is the stable classification of a failure.
type Reason string

const (
	// NoAccount: the remote identity or session is absent.
	NoAccount Reason = "noAccount"
	// Restricted: permission or entitlement denied.
	Restricted Reason = "restricted"
	// Network: transient connectivity, timeout, rate limiting or temporary
	// unavailability.
	Network Reason = "network"
	// ModelIssue: schema, relationship or migration mismatch on the remote side.
	ModelIssue Reason = "modelIssue"
	Generic    Reason = "generic"
)

// Transient reports whether a failure of this reason is worth retrying.
func (r Reason) Transient() bool {
	return r == Network || r == Generic
}

// Classify maps err to a Reason. Typed errors from the transport are checked
// first; anything else falls back to matching the error text.
func Classify(err error) Reason {
	if err == nil {
		return Generic
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Network
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		if r, ok := classifyStatus(gErr.Code); ok {
			return r
		}
	}
	if errors.Is(err, storage.ErrBucketNotExist) {
		return ModelIssue
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Network
	}

	return classifyText(strings.ToLower(err.Error()))
}

func classifyStatus(code int) (Reason, bool) {
	switch {
	case code == http.StatusUnauthorized:
		return NoAccount, true
	case code == http.StatusForbidden, code == http.StatusPaymentRequired:
		return Restricted, true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return Network, true
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return ModelIssue, true
	}
	return "", false
}

var textRules = []struct {
	reason  Reason
	needles []string
}{
	{NoAccount, []string{"no account", "not authenticated", "unauthenticated", "could not find default credentials", "credentials", "not signed in"}},
	{Restricted, []string{"permission", "forbidden", "access denied", "not authorized", "entitlement", "restricted", "quota exceeded"}},
	{Network, []string{"timeout", "timed out", "network", "connection", "unavailable", "rate limit", "too many requests", "temporarily", "offline", "no such host", "reset by peer", "unexpected eof"}},
	{ModelIssue, []string{"schema", "relationship", "migration", "incompatible", "invalid record", "unknown field"}},
}

func classifyText(msg string) Reason {
	for _, rule := range textRules {
		for _, n := range rule.needles {
			if strings.Contains(msg, n) {
				return rule.reason
			}
		}
	}
	return Generic
}
