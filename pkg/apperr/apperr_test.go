package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfAndStatus(t *testing.T) {
	cause := errors.New("connection reset")
	tests := []struct {
		name    string
		err     error
		kind    Kind
		status  int
		message string
	}{
		{"validation", Validation("invalid url"), KindValidation, http.StatusBadRequest, "invalid url"},
		{"not found", NotFound("post not found"), KindNotFound, http.StatusNotFound, "post not found"},
		{"conflict", Conflict("post already submitted"), KindConflict, http.StatusConflict, "post already submitted"},
		{"unauthorized", Unauthorized("invalid token"), KindUnauthorized, http.StatusUnauthorized, "invalid token"},
		{"forbidden", Forbidden("insufficient permissions"), KindForbidden, http.StatusForbidden, "insufficient permissions"},
		{"upstream", Upstream("failed to fetch insights", cause), KindUpstream, http.StatusBadGateway, "failed to fetch insights"},
		{"store hides detail", Store("failed to save", cause), KindStore, http.StatusInternalServerError, "internal server error"},
		{"wrapped", fmt.Errorf("refresh: %w", NotFound("post not found")), KindNotFound, http.StatusNotFound, "post not found"},
		{"plain", cause, KindInternal, http.StatusInternalServerError, "internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.kind {
				t.Errorf("KindOf = %s, want %s", got, tt.kind)
			}
			if got := KindOf(tt.err).HTTPStatus(); got != tt.status {
				t.Errorf("HTTPStatus = %d, want %d", got, tt.status)
			}
			if got := PublicMessage(tt.err); got != tt.message {
				t.Errorf("PublicMessage = %q, want %q", got, tt.message)
			}
		})
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := errors.New("timeout")
	err := Upstream("failed to fetch insights", cause)
	if !errors.Is(err, cause) {
		t.Error("Upstream error does not unwrap to cause")
	}
}
