package flatten

import (
	"fmt"
	"strings"

	"github.com/synqronlabs/kestrel/dns"
)

// CycleError reports a self-referential include chain. Only the current
// recursion path counts: a domain legitimately included from two
// unrelated branches (diamond inclusion) is not a cycle.
type CycleError struct {
	// Domain is the domain encountered a second time.
	Domain string

	// Path is the active recursion stack at the point of detection.
	Path []string
}

func (e CycleError) Error() string {
	return fmt.Sprintf("include cycle: %s already on path %s",
		e.Domain, strings.Join(e.Path, " -> "))
}

// DepthExceededError reports an include chain deeper than MaxDepth. The
// branch is pruned; everything above it still resolves.
type DepthExceededError struct {
	Domain string
	Depth  int
}

func (e DepthExceededError) Error() string {
	return fmt.Sprintf("depth limit reached at %s (depth %d)", e.Domain, e.Depth)
}

// TimeoutError reports a domain left unresolved when the operation's
// wall-clock budget expired.
type TimeoutError struct {
	Domain string
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("%s: unresolved, operation timed out", e.Domain)
}

// dnsFailure wraps a resolver error with the query that failed, keeping
// the failure kind visible in the recorded message.
func dnsFailure(name, qtype string, err error) error {
	switch {
	case dns.IsNotFound(err):
		return fmt.Errorf("%s: no %s records", name, qtype)
	case dns.IsTimeout(err):
		return fmt.Errorf("%s: %s lookup timed out", name, qtype)
	case dns.IsServFail(err):
		return fmt.Errorf("%s: %s lookup failed upstream", name, qtype)
	default:
		return fmt.Errorf("%s: %s lookup: %v", name, qtype, err)
	}
}
