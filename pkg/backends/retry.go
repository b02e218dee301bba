package backends

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// GenerateTries bounds how often a remote generation call is attempted
// before the failure surfaces. Transient failures are retried back to back,
// without delay.
const GenerateTries = 3

// GenerateWithRetry runs op up to GenerateTries times. Contract violations
// and not-callable errors are permanent and surface immediately.
func GenerateWithRetry(ctx context.Context, logger zerolog.Logger, op func() (Completion, error)) (Completion, error) {
	var out Completion
	attempt := func() error {
		completion, err := op()
		if err != nil {
			if errors.Is(err, ErrContractViolation) || errors.Is(err, ErrNotCallable) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = completion
		return nil
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, GenerateTries-1), ctx)
	notify := func(err error, _ time.Duration) {
		logger.Warn().Err(err).Msg("generate attempt failed, retrying")
	}
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		return Completion{}, err
	}
	return out, nil
}
