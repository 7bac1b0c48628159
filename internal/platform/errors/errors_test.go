package errors

import (
	goerrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestCodeOfUnwrapsChain(t *testing.T) {
	t.Parallel()

	cause := goerrors.New("row missing")
	err := fmt.Errorf("handle command: %w", Wrap(CodeSessionNotFound, "session not found", cause))

	if got := CodeOf(err); got != CodeSessionNotFound {
		t.Fatalf("CodeOf() = %v, want %v", got, CodeSessionNotFound)
	}
	if !goerrors.Is(err, cause) {
		t.Fatal("wrapped cause lost from error chain")
	}
}

func TestCodeOfForeignError(t *testing.T) {
	t.Parallel()

	if got := CodeOf(goerrors.New("disk on fire")); got != CodeUnknown {
		t.Fatalf("CodeOf() = %v, want %v", got, CodeUnknown)
	}
	if got := CodeOf(nil); got != CodeUnknown {
		t.Fatalf("CodeOf(nil) = %v, want %v", got, CodeUnknown)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	t.Parallel()

	err := New(CodePageNotFound, "page not found")
	if !goerrors.Is(err, New(CodePageNotFound, "different message")) {
		t.Fatal("errors with the same code should match")
	}
	if goerrors.Is(err, New(CodeSessionNotFound, "page not found")) {
		t.Fatal("errors with different codes should not match")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		code Code
		want int
	}{
		{CodeSessionNotFound, http.StatusNotFound},
		{CodePageNotFound, http.StatusNotFound},
		{CodeSessionConflict, http.StatusConflict},
		{CodeRotationInvalidPageCount, http.StatusBadRequest},
		{CodeRotationInvalidInterval, http.StatusBadRequest},
		{CodeSessionNotRotating, http.StatusBadRequest},
		{CodeUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := tc.code.HTTPStatus(); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.code, got, tc.want)
		}
	}
}
