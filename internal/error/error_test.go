package error

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMatchesSentinelByType(t *testing.T) {
	err := New(NotFoundError, "machine \"vm9\" not found", nil)
	wrapped := fmt.Errorf("lookup: %w", err)

	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrNotConnected)
	assert.Equal(t, "lookup: machine \"vm9\" not found", wrapped.Error())
}

func TestAppErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:22: connect: connection refused")
	err := New(ConnectionError, "failed to connect", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to connect: "+cause.Error(), err.Error())
}

func TestHasTypeWalksNestedAppErrors(t *testing.T) {
	inner := New(ConnectionError, "handshake failed", errors.New("EOF"))
	outer := New(NotConnectedError, "proxy unavailable", inner)

	assert.True(t, HasType(outer, NotConnectedError))
	assert.True(t, HasType(outer, ConnectionError))
	assert.False(t, HasType(outer, TransferError))
	assert.False(t, HasType(errors.New("plain"), ConnectionError))
}

func TestErrorTypeString(t *testing.T) {
	assert.Equal(t, "not found", NotFoundError.String())
	assert.Equal(t, "ErrorType(99)", ErrorType(99).String())
}
