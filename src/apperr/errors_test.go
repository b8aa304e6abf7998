package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesSentinel(t *testing.T) {
	err := NotFound("rule %s not found", "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrConflict)

	wrapped := fmt.Errorf("loading rule: %w", err)
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.Equal(t, KindNotFound, KindOf(wrapped))
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Upstream(cause, "transactions sync failed")
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.Equal(t, "transactions sync failed: connection reset", err.Error())
}

func TestKindOf_BareSentinel(t *testing.T) {
	assert.Equal(t, KindConflict, KindOf(fmt.Errorf("insert: %w", ErrConflict)))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want int
	}{
		{name: "validation", err: Validation("name is required"), want: http.StatusBadRequest},
		{name: "auth", err: Auth("missing token"), want: http.StatusUnauthorized},
		{name: "forbidden hidden as not found", err: Forbidden("not an approver"), want: http.StatusNotFound},
		{name: "not found", err: NotFound("alert not found"), want: http.StatusNotFound},
		{name: "conflict", err: Conflict("already voted"), want: http.StatusConflict},
		{name: "upstream", err: Upstream(errors.New("503"), "plaid"), want: http.StatusBadGateway},
		{name: "plain error", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestPublicMessage_HidesInternals(t *testing.T) {
	assert.Equal(t, "internal server error", PublicMessage(Internal(errors.New("pq: password"), "query failed")))
	assert.Equal(t, "not found", PublicMessage(Forbidden("user 7 is not an approver of account a1")))
	assert.Equal(t, "name is required", PublicMessage(Validation("name is required")))
}

func TestPublicDetails(t *testing.T) {
	err := Validation("missing required fields").WithDetails(map[string]any{"name": ""})
	assert.Equal(t, map[string]any{"name": ""}, PublicDetails(err))
	assert.Nil(t, PublicDetails(Internal(errors.New("x"), "y")))
}
