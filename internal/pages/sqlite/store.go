// Package sqlite provides SQLite-backed persistence for page records.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ayoluwanimi/admin-pan-main/internal/pages"
	"github.com/ayoluwanimi/admin-pan-main/internal/pages/sqlite/migrations"
	sqlitemigrate "github.com/ayoluwanimi/admin-pan-main/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for page records.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a page SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB, now: time.Now}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreatePage inserts a new page record. Inserting a default page clears the
// default flag on every other page.
func (s *Store) CreatePage(ctx context.Context, page pages.Page) (pages.Page, error) {
	if err := ctx.Err(); err != nil {
		return pages.Page{}, err
	}
	if s == nil || s.sqlDB == nil {
		return pages.Page{}, fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(page.ID) == "" {
		return pages.Page{}, fmt.Errorf("page id is required")
	}
	if strings.TrimSpace(page.Name) == "" {
		return pages.Page{}, pages.ErrEmptyName
	}
	if page.CreatedAt.IsZero() || page.UpdatedAt.IsZero() {
		return pages.Page{}, fmt.Errorf("page timestamps are required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return pages.Page{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if page.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE pages SET is_default = 0 WHERE is_default = 1`); err != nil {
			return pages.Page{}, fmt.Errorf("clear default page: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO pages (id, name, content, is_default, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		page.ID,
		page.Name,
		page.Content,
		boolToInt(page.IsDefault),
		toMillis(page.CreatedAt),
		toMillis(page.UpdatedAt),
	); err != nil {
		return pages.Page{}, fmt.Errorf("insert page: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return pages.Page{}, fmt.Errorf("commit tx: %w", err)
	}
	return s.ResolvePage(ctx, page.ID)
}

// ResolvePage returns the page with the given id, or the default page when
// the id is empty.
func (s *Store) ResolvePage(ctx context.Context, pageID string) (pages.Page, error) {
	if err := ctx.Err(); err != nil {
		return pages.Page{}, err
	}
	if s == nil || s.sqlDB == nil {
		return pages.Page{}, fmt.Errorf("storage is not configured")
	}

	pageID = strings.TrimSpace(pageID)
	var row *sql.Row
	if pageID == "" {
		row = s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, content, is_default, created_at, updated_at
FROM pages
WHERE is_default = 1
LIMIT 1
`)
	} else {
		row = s.sqlDB.QueryRowContext(ctx, `
SELECT id, name, content, is_default, created_at, updated_at
FROM pages
WHERE id = ?
`, pageID)
	}

	page, err := scanPage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pages.Page{}, pages.ErrNotFound
		}
		return pages.Page{}, fmt.Errorf("get page: %w", err)
	}
	return page, nil
}

// ListPages returns all pages, most recently created first.
func (s *Store) ListPages(ctx context.Context) ([]pages.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, name, content, is_default, created_at, updated_at
FROM pages
ORDER BY created_at DESC, id DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var records []pages.Page
	for rows.Next() {
		page, scanErr := scanPage(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan page row: %w", scanErr)
		}
		records = append(records, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page rows: %w", err)
	}
	return records, nil
}

// UpdatePage applies the provided field changes to one page and returns the
// updated record. Promoting a page to default demotes every other page.
func (s *Store) UpdatePage(ctx context.Context, pageID string, update pages.Update) (pages.Page, error) {
	if err := ctx.Err(); err != nil {
		return pages.Page{}, err
	}
	if s == nil || s.sqlDB == nil {
		return pages.Page{}, fmt.Errorf("storage is not configured")
	}
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return pages.Page{}, pages.ErrNotFound
	}

	current, err := s.ResolvePage(ctx, pageID)
	if err != nil {
		return pages.Page{}, err
	}

	if update.Name != nil {
		name := strings.TrimSpace(*update.Name)
		if name == "" {
			return pages.Page{}, pages.ErrEmptyName
		}
		current.Name = name
	}
	if update.Content != nil {
		current.Content = *update.Content
	}
	if update.IsDefault != nil {
		current.IsDefault = *update.IsDefault
	}
	current.UpdatedAt = s.now().UTC()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return pages.Page{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if current.IsDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE pages SET is_default = 0 WHERE is_default = 1 AND id != ?`, pageID); err != nil {
			return pages.Page{}, fmt.Errorf("clear default page: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
UPDATE pages
SET name = ?, content = ?, is_default = ?, updated_at = ?
WHERE id = ?
`,
		current.Name,
		current.Content,
		boolToInt(current.IsDefault),
		toMillis(current.UpdatedAt),
		pageID,
	); err != nil {
		return pages.Page{}, fmt.Errorf("update page: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return pages.Page{}, fmt.Errorf("commit tx: %w", err)
	}
	return s.ResolvePage(ctx, pageID)
}

// DeletePage removes one page record.
func (s *Store) DeletePage(ctx context.Context, pageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	pageID = strings.TrimSpace(pageID)
	if pageID == "" {
		return pages.ErrNotFound
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, pageID)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete page rows affected: %w", err)
	}
	if affected == 0 {
		return pages.ErrNotFound
	}
	return nil
}

func scanPage(scan func(dest ...any) error) (pages.Page, error) {
	var (
		page      pages.Page
		isDefault int64
		createdAt int64
		updatedAt int64
	)
	if err := scan(&page.ID, &page.Name, &page.Content, &isDefault, &createdAt, &updatedAt); err != nil {
		return pages.Page{}, err
	}
	page.IsDefault = isDefault != 0
	page.CreatedAt = fromMillis(createdAt)
	page.UpdatedAt = fromMillis(updatedAt)
	return page, nil
}

func boolToInt(value bool) int64 {
	if value {
		return 1
	}
	return 0
}
