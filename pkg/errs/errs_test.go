package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKinds(t *testing.T) {
	err := fmt.Errorf("refreshing: %w", Mirror("winget", errors.New("exit status 128")))
	assert.True(t, Is(err, KindMirror))
	assert.False(t, Is(err, KindCache))
	assert.Equal(t, "[MirrorError] winget: exit status 128", errors.Unwrap(err).Error())

	k, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindMirror, k)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	assert.NoError(t, Cancelled(ctx, "x"))
	cancel()

	err := Cancelled(ctx, "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCancelled))
	assert.True(t, Is(err, KindCancelled))
	assert.True(t, Is(context.Canceled, KindCancelled))

	k, ok := KindOf(fmt.Errorf("wrapped: %w", context.Canceled))
	require.True(t, ok)
	assert.Equal(t, KindCancelled, k)
}

func TestStepError(t *testing.T) {
	var err error = &StepError{Step: "download", Path: "install[2].then[0]", Reason: Verify("a.msi", errors.New("digest mismatch"))}
	assert.True(t, Is(err, KindStep))
	assert.True(t, Is(err, KindVerify))
	assert.Contains(t, err.Error(), "download at install[2].then[0]")

	var se *StepError
	require.True(t, errors.As(fmt.Errorf("install: %w", err), &se))
	assert.Equal(t, "download", se.Step)
}
