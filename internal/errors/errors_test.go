package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := NotFoundf("post %s not found", "p1")

	assert.True(t, Is(err, ErrNotFound))
	assert.False(t, Is(err, ErrValidation))
	assert.Equal(t, "post p1 not found", err.Error())
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := Wrap(cause, CodeNetwork, "backend unreachable")

	assert.True(t, Is(err, ErrNetwork))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "backend unreachable: dial tcp: connection refused", err.Error())
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", Network("timeout"), true},
		{"wrapped network", fmt.Errorf("loading feed: %w", Network("reset")), true},
		{"not found", NotFound("gone"), false},
		{"validation", Validation("username taken"), false},
		{"permission", Permission("not your post"), false},
		{"plain error", fmt.Errorf("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestCode_HTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadGateway, CodeNetwork.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, CodeNotFound.HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, CodeValidation.HTTPStatus())
	assert.Equal(t, http.StatusForbidden, CodePermission.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, CodeUnauthorized.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, CodeInternal.HTTPStatus())
}

func TestCodeOf_DefaultsToInternal(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(fmt.Errorf("plain")))
	assert.Equal(t, CodePermission, CodeOf(fmt.Errorf("ctx: %w", ErrPermission)))
}
