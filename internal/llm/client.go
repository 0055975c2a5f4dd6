// Package llm isolates the external text-generation backend behind a
// small capability interface so the deterministic pipeline stays
// testable without network access.
package llm

import "context"

// Client is the black-box model contract: prompt in, text out. Calls
// may be slow or fail; callers bound them with a context deadline and
// treat failures as recoverable for the unit being processed.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
