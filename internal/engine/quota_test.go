package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiringQuota_WithinLimit(t *testing.T) {
	q := NewFiringQuota(10)
	for i := 0; i < 10; i++ {
		assert.NoError(t, q.Check("s", "r"), "firing %d should be allowed", i+1)
	}
	assert.Equal(t, 10, q.Current())
	assert.Equal(t, 10, q.Max())
}

func TestFiringQuota_ExceedsLimit(t *testing.T) {
	q := NewFiringQuota(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Check("s", "loop"))
	}

	err := q.Check("s", "loop")
	require.Error(t, err)

	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, ErrCodeRuleCycleExceeded, re.Code)
	assert.Equal(t, "loop", re.Rule)
	assert.Equal(t, "s", re.SessionID)
	assert.Equal(t, "4", re.Details["firings"])
	assert.Equal(t, "3", re.Details["max_firings"])
	assert.True(t, IsRuleCycleExceeded(err))
	assert.True(t, errors.Is(err, ErrRuleCycleExceeded))
}

func TestFiringQuota_DefaultCap(t *testing.T) {
	assert.Equal(t, DefaultMaxFirings, NewFiringQuota(0).Max())
	assert.Equal(t, DefaultMaxFirings, NewFiringQuota(-5).Max())
}

func TestRuntimeError_Wrapped(t *testing.T) {
	base := NewCycleError("s1", "r1", 11, 10)
	wrapped := fmt.Errorf("scenario step 3: %w", base)

	assert.True(t, IsRuleCycleExceeded(wrapped))
	assert.False(t, IsSessionClosed(wrapped))
	assert.True(t, errors.Is(wrapped, ErrRuleCycleExceeded))
	assert.False(t, errors.Is(wrapped, ErrUnknownQuery))
	assert.Contains(t, base.Error(), "RULE_CYCLE_EXCEEDED")
	assert.Contains(t, base.Error(), "session=s1")
	assert.Contains(t, base.Error(), "rule=r1")
}

func TestRuntimeError_UnwrapsCause(t *testing.T) {
	cause := errors.New("boom")
	err := newActionError("s", "r", cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsActionFailed(err))
	assert.Contains(t, err.Error(), "boom")
}
