package errors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_PreservesSentinel(t *testing.T) {
	err := Wrap(ErrTransient, "fetching batch")

	assert.True(t, Is(err, ErrTransient))
	assert.Contains(t, err.Error(), "fetching batch")
}

func TestWrap_NilPassthrough(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(Wrap(ErrTransient, "blip")))
	assert.True(t, Retryable(Wrap(ErrRateLimited, "429")))
	assert.False(t, Retryable(Wrap(ErrPermanentData, "bad symbol")))
	assert.False(t, Retryable(Wrap(ErrCatastrophic, "pool gone")))
	assert.False(t, Retryable(nil))
}
