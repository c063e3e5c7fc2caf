// Package mailer sends outbound email through a transactional email provider.
package mailer

import (
	"context"
	"errors"

	"github.com/codedrip/codedrip-server/internal/domain"
)

// Sender delivers one email and returns the provider's message id.
// Implementations must be safe for concurrent use by dispatch workers.
type Sender interface {
	Send(ctx context.Context, item *domain.EmailQueueItem) (providerID string, err error)
	Close()
}

// Sentinel errors returned by senders.
var (
	// ErrRateLimited means the provider rejected the send with a 429.
	ErrRateLimited = errors.New("mailer: provider rate limited")
	// ErrRejected means the provider refused the message (bad recipient,
	// malformed payload). Retrying will not help.
	ErrRejected = errors.New("mailer: provider rejected message")
	// ErrProvider means the provider returned a server error.
	ErrProvider = errors.New("mailer: provider error")
)

// Retryable reports whether a send error is worth another attempt.
func Retryable(err error) bool {
	return !errors.Is(err, ErrRejected)
}
