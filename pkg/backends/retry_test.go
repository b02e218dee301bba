package backends

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	completion, err := GenerateWithRetry(context.Background(), zerolog.Nop(), func() (Completion, error) {
		calls++
		if calls < 3 {
			return Completion{}, errors.New("transient")
		}
		return Completion{Text: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", completion.Text)
	assert.Equal(t, 3, calls)
}

func TestGenerateWithRetry_ExhaustsAfterBoundedTries(t *testing.T) {
	calls := 0
	_, err := GenerateWithRetry(context.Background(), zerolog.Nop(), func() (Completion, error) {
		calls++
		return Completion{}, errors.New("still down")
	})
	require.Error(t, err)
	assert.Equal(t, GenerateTries, calls)
}

func TestGenerateWithRetry_ContractViolationIsNotRetried(t *testing.T) {
	calls := 0
	_, err := GenerateWithRetry(context.Background(), zerolog.Nop(), func() (Completion, error) {
		calls++
		return Completion{}, errors.Wrap(ErrContractViolation, "bad role")
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrContractViolation))
	assert.Equal(t, 1, calls)
}

func TestGenerateWithRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := GenerateWithRetry(ctx, zerolog.Nop(), func() (Completion, error) {
		return Completion{}, errors.New("transient")
	})
	require.Error(t, err)
}
