package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/pagehost/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeFormat sorts lexically in chronological order for UTC times.
const timeFormat = "2006-01-02T15:04:05.000000Z07:00"

// withForeignKeys appends the foreign key pragma, keeping any query string
// already on the DSN.
func withForeignKeys(dsn string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&_foreign_keys=on"
	}
	return dsn + "?_foreign_keys=on"
}

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
// Foreign keys are switched on for every connection.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", withForeignKeys(dsn))
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}
	// Every connection to ":memory:" would get its own empty database.
	if dsn == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Page Operations
// =============================================================================

// pageRow represents a landing page row in the database.
type pageRow struct {
	ID           string  `db:"id"`
	UserID       string  `db:"user_id"`
	Slug         string  `db:"slug"`
	Title        string  `db:"title"`
	Styling      string  `db:"styling"`
	Settings     string  `db:"settings"`
	CustomDomain *string `db:"custom_domain"`
	CreatedAt    string  `db:"created_at"`
	UpdatedAt    string  `db:"updated_at"`
}

func (s *SQLiteStore) CreatePage(ctx context.Context, page *domain.Page) error {
	return createPage(ctx, s.db, page)
}

func (s *SQLiteStore) GetPage(ctx context.Context, id string) (*domain.Page, error) {
	return getPage(ctx, s.db, id)
}

func (s *SQLiteStore) GetPageBySlug(ctx context.Context, slug string) (*domain.Page, error) {
	return getPageBySlug(ctx, s.db, slug)
}

func (s *SQLiteStore) GetPageByCustomDomain(ctx context.Context, hostname string) (*domain.Page, error) {
	return getPageByCustomDomain(ctx, s.db, hostname)
}

func (s *SQLiteStore) UpdatePage(ctx context.Context, page *domain.Page) error {
	return updatePage(ctx, s.db, page)
}

func (s *SQLiteStore) DeletePage(ctx context.Context, id string) error {
	return deletePage(ctx, s.db, id)
}

func (s *SQLiteStore) ListPagesByUser(ctx context.Context, userID string, opts ListOptions) ([]domain.Page, error) {
	return listPagesByUser(ctx, s.db, userID, opts)
}

func (s *SQLiteStore) ListPagesWithCustomDomain(ctx context.Context, opts ListOptions) ([]domain.Page, error) {
	return listPagesWithCustomDomain(ctx, s.db, opts)
}

func (s *SQLiteStore) SetCustomDomain(ctx context.Context, slug string, hostname *string) (*domain.Page, error) {
	return setCustomDomain(ctx, s.db, slug, hostname)
}

// =============================================================================
// Section Operations
// =============================================================================

// sectionRow represents a page section row in the database.
type sectionRow struct {
	ID         string `db:"id"`
	PageID     string `db:"page_id"`
	Type       string `db:"type"`
	Content    string `db:"content"`
	OrderIndex int    `db:"order_index"`
	CreatedAt  string `db:"created_at"`
	UpdatedAt  string `db:"updated_at"`
}

func (s *SQLiteStore) CreateSection(ctx context.Context, section *domain.Section) error {
	return createSection(ctx, s.db, section)
}

func (s *SQLiteStore) GetSection(ctx context.Context, id string) (*domain.Section, error) {
	return getSection(ctx, s.db, id)
}

func (s *SQLiteStore) UpdateSection(ctx context.Context, section *domain.Section) error {
	return updateSection(ctx, s.db, section)
}

func (s *SQLiteStore) DeleteSection(ctx context.Context, id string) error {
	return deleteSection(ctx, s.db, id)
}

func (s *SQLiteStore) ListSectionsByPage(ctx context.Context, pageID string) ([]domain.Section, error) {
	return listSectionsByPage(ctx, s.db, pageID)
}

func (s *SQLiteStore) ReorderSections(ctx context.Context, pageID string, order []domain.SectionOrder) error {
	return s.WithTx(ctx, func(tx Store) error {
		return tx.ReorderSections(ctx, pageID, order)
	})
}

// =============================================================================
// File Operations
// =============================================================================

// fileRow represents a file metadata row in the database.
type fileRow struct {
	ID          string `db:"id"`
	UserID      string `db:"user_id"`
	ObjectKey   string `db:"object_key"`
	FileName    string `db:"file_name"`
	ContentType string `db:"content_type"`
	Size        int64  `db:"size"`
	IsPublic    bool   `db:"is_public"`
	CreatedAt   string `db:"created_at"`
}

func (s *SQLiteStore) CreateFile(ctx context.Context, file *domain.File) error {
	return createFile(ctx, s.db, file)
}

func (s *SQLiteStore) ListFilesByUser(ctx context.Context, userID string, opts ListOptions) ([]domain.File, error) {
	return listFilesByUser(ctx, s.db, userID, opts)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) CreatePage(ctx context.Context, page *domain.Page) error {
	return createPage(ctx, s.tx, page)
}

func (s *txSQLiteStore) GetPage(ctx context.Context, id string) (*domain.Page, error) {
	return getPage(ctx, s.tx, id)
}

func (s *txSQLiteStore) GetPageBySlug(ctx context.Context, slug string) (*domain.Page, error) {
	return getPageBySlug(ctx, s.tx, slug)
}

func (s *txSQLiteStore) GetPageByCustomDomain(ctx context.Context, hostname string) (*domain.Page, error) {
	return getPageByCustomDomain(ctx, s.tx, hostname)
}

func (s *txSQLiteStore) UpdatePage(ctx context.Context, page *domain.Page) error {
	return updatePage(ctx, s.tx, page)
}

func (s *txSQLiteStore) DeletePage(ctx context.Context, id string) error {
	return deletePage(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListPagesByUser(ctx context.Context, userID string, opts ListOptions) ([]domain.Page, error) {
	return listPagesByUser(ctx, s.tx, userID, opts)
}

func (s *txSQLiteStore) ListPagesWithCustomDomain(ctx context.Context, opts ListOptions) ([]domain.Page, error) {
	return listPagesWithCustomDomain(ctx, s.tx, opts)
}

func (s *txSQLiteStore) SetCustomDomain(ctx context.Context, slug string, hostname *string) (*domain.Page, error) {
	return setCustomDomain(ctx, s.tx, slug, hostname)
}

func (s *txSQLiteStore) CreateSection(ctx context.Context, section *domain.Section) error {
	return createSection(ctx, s.tx, section)
}

func (s *txSQLiteStore) GetSection(ctx context.Context, id string) (*domain.Section, error) {
	return getSection(ctx, s.tx, id)
}

func (s *txSQLiteStore) UpdateSection(ctx context.Context, section *domain.Section) error {
	return updateSection(ctx, s.tx, section)
}

func (s *txSQLiteStore) DeleteSection(ctx context.Context, id string) error {
	return deleteSection(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListSectionsByPage(ctx context.Context, pageID string) ([]domain.Section, error) {
	return listSectionsByPage(ctx, s.tx, pageID)
}

func (s *txSQLiteStore) ReorderSections(ctx context.Context, pageID string, order []domain.SectionOrder) error {
	return reorderSections(ctx, s.tx, pageID, order)
}

func (s *txSQLiteStore) CreateFile(ctx context.Context, file *domain.File) error {
	return createFile(ctx, s.tx, file)
}

func (s *txSQLiteStore) ListFilesByUser(ctx context.Context, userID string, opts ListOptions) ([]domain.File, error) {
	return listFilesByUser(ctx, s.tx, userID, opts)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just execute the function
	return fn(s)
}

func (s *txSQLiteStore) Ping(ctx context.Context) error {
	return nil
}

func (s *txSQLiteStore) Close() error {
	// No-op for transaction store
	return nil
}

// =============================================================================
// Shared Implementation Functions
// =============================================================================

func createPage(ctx context.Context, exec executor, page *domain.Page) error {
	query := `
		INSERT INTO landing_pages (
			id, user_id, slug, title, styling, settings, custom_domain,
			created_at, updated_at
		) VALUES (
			:id, :user_id, :slug, :title, :styling, :settings, :custom_domain,
			:created_at, :updated_at
		)`

	_, err := exec.NamedExecContext(ctx, query, pageToRow(page))
	if err != nil {
		return mapPageWriteError("CreatePage", page.ID, err)
	}

	return nil
}

func getPage(ctx context.Context, exec executor, id string) (*domain.Page, error) {
	return getPageWhere(ctx, exec, "GetPage", "id", id)
}

func getPageBySlug(ctx context.Context, exec executor, slug string) (*domain.Page, error) {
	return getPageWhere(ctx, exec, "GetPageBySlug", "slug", slug)
}

func getPageByCustomDomain(ctx context.Context, exec executor, hostname string) (*domain.Page, error) {
	return getPageWhere(ctx, exec, "GetPageByCustomDomain", "custom_domain", hostname)
}

// getPageWhere looks up a page by a unique column. column is never user input.
func getPageWhere(ctx context.Context, exec executor, op, column, value string) (*domain.Page, error) {
	query := `SELECT * FROM landing_pages WHERE ` + column + ` = ?`

	var row pageRow
	err := exec.GetContext(ctx, &row, query, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError(op, "page", value, "page not found", ErrNotFound)
		}
		return nil, NewStoreError(op, "page", value, err.Error(), err)
	}

	return rowToPage(&row)
}

func updatePage(ctx context.Context, exec executor, page *domain.Page) error {
	query := `
		UPDATE landing_pages SET
			slug = :slug,
			title = :title,
			styling = :styling,
			settings = :settings,
			custom_domain = :custom_domain,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, pageToRow(page))
	if err != nil {
		return mapPageWriteError("UpdatePage", page.ID, err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdatePage", "page", page.ID, "page not found", ErrNotFound)
	}

	return nil
}

func deletePage(ctx context.Context, exec executor, id string) error {
	// Sections go with the page through ON DELETE CASCADE.
	query := `DELETE FROM landing_pages WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return NewStoreError("DeletePage", "page", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeletePage", "page", id, "page not found", ErrNotFound)
	}

	return nil
}

func listPagesByUser(ctx context.Context, exec executor, userID string, opts ListOptions) ([]domain.Page, error) {
	opts = opts.Normalize()

	query := `SELECT * FROM landing_pages WHERE user_id = ?`
	args := []any{userID}
	if q := strings.TrimSpace(opts.Query); q != "" {
		pattern := "%" + escapeLike(strings.ToLower(q)) + "%"
		query += ` AND (lower(title) LIKE ? ESCAPE '\' OR lower(slug) LIKE ? ESCAPE '\')`
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	args = append(args, opts.Limit, opts.Offset)

	var rows []pageRow
	if err := exec.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, NewStoreError("ListPagesByUser", "page", "", err.Error(), err)
	}

	return rowsToPages(rows)
}

func listPagesWithCustomDomain(ctx context.Context, exec executor, opts ListOptions) ([]domain.Page, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM landing_pages WHERE custom_domain IS NOT NULL ORDER BY updated_at ASC LIMIT ? OFFSET ?`

	var rows []pageRow
	if err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListPagesWithCustomDomain", "page", "", err.Error(), err)
	}

	return rowsToPages(rows)
}

func setCustomDomain(ctx context.Context, exec executor, slug string, hostname *string) (*domain.Page, error) {
	query := `UPDATE landing_pages SET custom_domain = ?, updated_at = ? WHERE slug = ?`

	result, err := exec.ExecContext(ctx, query, hostname, time.Now().UTC().Format(timeFormat), slug)
	if err != nil {
		return nil, mapPageWriteError("SetCustomDomain", slug, err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return nil, NewStoreError("SetCustomDomain", "page", slug, "page not found", ErrNotFound)
	}

	return getPageBySlug(ctx, exec, slug)
}

func mapPageWriteError(op, id string, err error) error {
	return writeError(op, "page", id, err)
}

func createSection(ctx context.Context, exec executor, section *domain.Section) error {
	if section.OrderIndex <= 0 {
		var next int
		err := exec.GetContext(ctx, &next,
			`SELECT COALESCE(MAX(order_index), 0) + 1 FROM page_sections WHERE page_id = ?`, section.PageID)
		if err != nil {
			return NewStoreError("CreateSection", "section", section.ID, err.Error(), err)
		}
		section.OrderIndex = next
	}

	query := `
		INSERT INTO page_sections (
			id, page_id, type, content, order_index, created_at, updated_at
		) VALUES (
			:id, :page_id, :type, :content, :order_index, :created_at, :updated_at
		)`

	_, err := exec.NamedExecContext(ctx, query, sectionToRow(section))
	if err != nil {
		return writeError("CreateSection", "section", section.ID, err)
	}

	return nil
}

func getSection(ctx context.Context, exec executor, id string) (*domain.Section, error) {
	query := `SELECT * FROM page_sections WHERE id = ?`

	var row sectionRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetSection", "section", id, "section not found", ErrNotFound)
		}
		return nil, NewStoreError("GetSection", "section", id, err.Error(), err)
	}

	return rowToSection(&row)
}

func updateSection(ctx context.Context, exec executor, section *domain.Section) error {
	query := `
		UPDATE page_sections SET
			type = :type,
			content = :content,
			order_index = :order_index,
			updated_at = :updated_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, sectionToRow(section))
	if err != nil {
		return NewStoreError("UpdateSection", "section", section.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateSection", "section", section.ID, "section not found", ErrNotFound)
	}

	return nil
}

func deleteSection(ctx context.Context, exec executor, id string) error {
	query := `DELETE FROM page_sections WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return NewStoreError("DeleteSection", "section", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteSection", "section", id, "section not found", ErrNotFound)
	}

	return nil
}

func listSectionsByPage(ctx context.Context, exec executor, pageID string) ([]domain.Section, error) {
	query := `SELECT * FROM page_sections WHERE page_id = ? ORDER BY order_index ASC, created_at ASC`

	var rows []sectionRow
	if err := exec.SelectContext(ctx, &rows, query, pageID); err != nil {
		return nil, NewStoreError("ListSectionsByPage", "section", "", err.Error(), err)
	}

	sections := make([]domain.Section, 0, len(rows))
	for _, row := range rows {
		section, err := rowToSection(&row)
		if err != nil {
			return nil, err
		}
		sections = append(sections, *section)
	}

	return sections, nil
}

// reorderSections moves sections of pageID. Entries naming unknown sections
// or sections of another page are skipped.
func reorderSections(ctx context.Context, exec executor, pageID string, order []domain.SectionOrder) error {
	query := `UPDATE page_sections SET order_index = ?, updated_at = ? WHERE id = ? AND page_id = ?`
	now := time.Now().UTC().Format(timeFormat)

	for _, o := range order {
		if _, err := exec.ExecContext(ctx, query, o.OrderIndex, now, o.SectionID, pageID); err != nil {
			return NewStoreError("ReorderSections", "section", o.SectionID, err.Error(), err)
		}
	}

	return nil
}

func createFile(ctx context.Context, exec executor, file *domain.File) error {
	query := `
		INSERT INTO files (
			id, user_id, object_key, file_name, content_type, size, is_public, created_at
		) VALUES (
			:id, :user_id, :object_key, :file_name, :content_type, :size, :is_public, :created_at
		)`

	row := fileRow{
		ID:          file.ID,
		UserID:      file.UserID,
		ObjectKey:   file.ObjectKey,
		FileName:    file.FileName,
		ContentType: file.ContentType,
		Size:        file.Size,
		IsPublic:    file.IsPublic,
		CreatedAt:   file.CreatedAt.UTC().Format(timeFormat),
	}

	_, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return writeError("CreateFile", "file", file.ID, err)
	}

	return nil
}

func listFilesByUser(ctx context.Context, exec executor, userID string, opts ListOptions) ([]domain.File, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM files WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`

	var rows []fileRow
	if err := exec.SelectContext(ctx, &rows, query, userID, opts.Limit, opts.Offset); err != nil {
		return nil, NewStoreError("ListFilesByUser", "file", "", err.Error(), err)
	}

	files := make([]domain.File, 0, len(rows))
	for _, row := range rows {
		createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
		if err != nil {
			return nil, NewStoreError("ListFilesByUser", "file", row.ID, "failed to parse created_at", ErrInvalidData)
		}
		files = append(files, domain.File{
			ID:          row.ID,
			UserID:      row.UserID,
			ObjectKey:   row.ObjectKey,
			FileName:    row.FileName,
			ContentType: row.ContentType,
			Size:        row.Size,
			IsPublic:    row.IsPublic,
			CreatedAt:   createdAt,
		})
	}

	return files, nil
}

// =============================================================================
// Row Conversion
// =============================================================================

func pageToRow(page *domain.Page) pageRow {
	return pageRow{
		ID:           page.ID,
		UserID:       page.UserID,
		Slug:         page.Slug,
		Title:        page.Title,
		Styling:      rawOrEmpty(page.Styling),
		Settings:     rawOrEmpty(page.Settings),
		CustomDomain: page.CustomDomain,
		CreatedAt:    page.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:    page.UpdatedAt.UTC().Format(timeFormat),
	}
}

func rowToPage(row *pageRow) (*domain.Page, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToPage", "page", row.ID, "failed to parse created_at", ErrInvalidData)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, row.UpdatedAt)
	if err != nil {
		return nil, NewStoreError("rowToPage", "page", row.ID, "failed to parse updated_at", ErrInvalidData)
	}
	if !json.Valid([]byte(row.Styling)) || !json.Valid([]byte(row.Settings)) {
		return nil, NewStoreError("rowToPage", "page", row.ID, "stored styling or settings is not JSON", ErrInvalidData)
	}

	return &domain.Page{
		ID:           row.ID,
		UserID:       row.UserID,
		Slug:         row.Slug,
		Title:        row.Title,
		Styling:      json.RawMessage(row.Styling),
		Settings:     json.RawMessage(row.Settings),
		CustomDomain: row.CustomDomain,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}

func rowsToPages(rows []pageRow) ([]domain.Page, error) {
	pages := make([]domain.Page, 0, len(rows))
	for _, row := range rows {
		page, err := rowToPage(&row)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *page)
	}
	return pages, nil
}

func sectionToRow(section *domain.Section) sectionRow {
	return sectionRow{
		ID:         section.ID,
		PageID:     section.PageID,
		Type:       section.Type,
		Content:    rawOrEmpty(section.Content),
		OrderIndex: section.OrderIndex,
		CreatedAt:  section.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt:  section.UpdatedAt.UTC().Format(timeFormat),
	}
}

func rowToSection(row *sectionRow) (*domain.Section, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, row.CreatedAt)
	if err != nil {
		return nil, NewStoreError("rowToSection", "section", row.ID, "failed to parse created_at", ErrInvalidData)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, row.UpdatedAt)
	if err != nil {
		return nil, NewStoreError("rowToSection", "section", row.ID, "failed to parse updated_at", ErrInvalidData)
	}

	return &domain.Section{
		ID:         row.ID,
		PageID:     row.PageID,
		Type:       row.Type,
		Content:    json.RawMessage(row.Content),
		OrderIndex: row.OrderIndex,
		CreatedAt:  createdAt,
		UpdatedAt:  updatedAt,
	}, nil
}

func rawOrEmpty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
