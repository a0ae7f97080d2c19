package omrserrors_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nucleus/omrs-core/internal/omrserrors"
)

func TestKindOf_UnwrapsWrappedError(t *testing.T) {
	base := omrserrors.New(omrserrors.KindEntityNotKnown, "entity %s not known", "guid-1")
	wrapped := fmt.Errorf("context: %w", base)

	assert.Equal(t, omrserrors.KindEntityNotKnown, omrserrors.KindOf(base))
	assert.Equal(t, omrserrors.KindEntityNotKnown, omrserrors.KindOf(wrapped))
}

func TestInvalidParameter_CarriesParameterName(t *testing.T) {
	err := omrserrors.InvalidParameter("guid", "guid must not be empty")
	require.Error(t, err)
	assert.Equal(t, "guid", err.Parameter)
	assert.Equal(t, omrserrors.KindInvalidParameter, omrserrors.KindOf(err))
	assert.Contains(t, err.Error(), "parameter=guid")
}

func TestRepository_RetryableSurvivesUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := omrserrors.Repository(true, cause)

	assert.True(t, err.RetryableStatus())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, omrserrors.KindRepositoryError, omrserrors.KindOf(err))
}

func TestIsSoftFederationError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"repository error is soft", omrserrors.Repository(true, errors.New("down")), true},
		{"function not supported is soft", omrserrors.New(omrserrors.KindFunctionNotSupported, "nope"), true},
		{"not authorized is soft", omrserrors.New(omrserrors.KindUserNotAuthorized, "nope"), true},
		{"entity not known is fatal", omrserrors.New(omrserrors.KindEntityNotKnown, "nope"), false},
		{"plain error is fatal", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, omrserrors.IsSoftFederationError(tc.err))
		})
	}
}
