package xerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf_FindsWrappedAuthError(t *testing.T) {
	base := New(KindExpiredSession, "session expired")
	wrapped := fmt.Errorf("complete challenge: %w", base)

	assert.Equal(t, KindExpiredSession, KindOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestAuthError_UnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := WrapKind(KindProviderUnavailable, "identity provider unreachable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "ProviderUnavailable")
	assert.Contains(t, err.Error(), "dial tcp: timeout")
}

func TestWrap_NilStaysNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, "context"))
	assert.True(t, Is(Wrap(ErrNotFound, "find user"), ErrNotFound))
}
