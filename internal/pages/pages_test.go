package pages

import (
	"errors"
	"testing"
	"time"
)

func TestNewGeneratesIDAndTimestamps(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	page, err := New("  welcome  ", "<h1>hi</h1>", true, func() time.Time { return now }, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if page.ID == "" {
		t.Fatal("New() generated empty id")
	}
	if page.Name != "welcome" {
		t.Fatalf("New() name = %q, want trimmed %q", page.Name, "welcome")
	}
	if !page.IsDefault {
		t.Fatal("New() dropped default flag")
	}
	if !page.CreatedAt.Equal(now) || !page.UpdatedAt.Equal(now) {
		t.Fatalf("New() timestamps = %v/%v, want %v", page.CreatedAt, page.UpdatedAt, now)
	}
}

func TestNewRejectsEmptyName(t *testing.T) {
	t.Parallel()

	if _, err := New("   ", "content", false, nil, nil); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("New() error = %v, want ErrEmptyName", err)
	}
}

func TestNewPropagatesIDGeneratorError(t *testing.T) {
	t.Parallel()

	failure := errors.New("entropy exhausted")
	if _, err := New("name", "content", false, nil, func() (string, error) { return "", failure }); !errors.Is(err, failure) {
		t.Fatalf("New() error = %v, want wrapped generator error", err)
	}
}
