// Package pages owns page records and the content-resolution boundary
// consumed by the session engine.
//
// The engine references pages by identifier only; this package is the one
// place that stores and serves content. At most one page is the default,
// shown to approved sessions with no explicit assignment.
package pages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ayoluwanimi/admin-pan-main/internal/platform/id"
)

var (
	// ErrNotFound indicates a requested page record is missing.
	ErrNotFound = errors.New("page not found")
	// ErrEmptyName indicates a missing page name.
	ErrEmptyName = errors.New("page name is required")
)

// Page is one stored page record.
type Page struct {
	ID        string
	Name      string
	Content   string
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Update carries optional field changes for one page.
type Update struct {
	Name      *string
	Content   *string
	IsDefault *bool
}

// Resolver resolves a page identifier to its record. An empty identifier
// resolves to the default page. Implementations return ErrNotFound when the
// id is unknown or no default exists.
type Resolver interface {
	ResolvePage(ctx context.Context, pageID string) (Page, error)
}

// Store persists page records. Setting a page as default clears the flag on
// every other page in the same write.
type Store interface {
	Resolver

	CreatePage(ctx context.Context, page Page) (Page, error)
	ListPages(ctx context.Context) ([]Page, error)
	UpdatePage(ctx context.Context, pageID string, update Update) (Page, error)
	DeletePage(ctx context.Context, pageID string) error
}

// New creates a page record with a generated ID and timestamps.
func New(name string, content string, isDefault bool, now func() time.Time, idGenerator func() (string, error)) (Page, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return Page{}, ErrEmptyName
	}

	pageID, err := idGenerator()
	if err != nil {
		return Page{}, fmt.Errorf("generate page id: %w", err)
	}

	createdAt := now().UTC()
	return Page{
		ID:        pageID,
		Name:      name,
		Content:   content,
		IsDefault: isDefault,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}, nil
}
