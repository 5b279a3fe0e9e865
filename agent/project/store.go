// Package project persists project rows in Postgres. The conversation layer
// treats this store as an opaque collaborator: rows are read at request
// start for context assembly and written at request end, last writer wins.
package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	statex "github.com/knearme/portfolio-agent/agent/state"
)

var (
	ErrProjectNotFound = errors.New("project not found")
	ErrForeignTenant   = errors.New("project belongs to another business")
)

// Row is one project record. Draft holds the merged ProjectState snapshot;
// Published mirrors the live page status the quality gate reports against.
type Row struct {
	bun.BaseModel `bun:"table:projects,alias:p"`

	ID         string              `bun:"id,pk"`
	BusinessID string              `bun:"business_id,notnull"`
	Title      string              `bun:"title"`
	Slug       string              `bun:"slug"`
	Draft      statex.ProjectState `bun:"draft,type:jsonb"`
	Published  bool                `bun:"published,notnull,default:false"`
	CreatedAt  time.Time           `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt  time.Time           `bun:"updated_at,notnull,default:current_timestamp"`
}

// BusinessProfile is the tenant context spliced into the system prompt.
type BusinessProfile struct {
	bun.BaseModel `bun:"table:businesses,alias:b"`

	ID          string `bun:"id,pk"`
	Name        string `bun:"name"`
	Trade       string `bun:"trade"`
	ServiceArea string `bun:"service_area"`
}

type Config struct {
	DSN     string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5s"`
}

// Store reads and writes project rows through bun.
type Store struct {
	db *bun.DB
}

func NewStore(cfg Config) (*Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(cfg.Timeout),
	))
	return &Store{db: bun.NewDB(sqldb, pgdialect.New())}, nil
}

// NewStoreWithDB wraps an existing bun handle. Useful for tests.
func NewStoreWithDB(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Get loads a project row, enforcing tenant ownership.
func (s *Store) Get(ctx context.Context, projectID, businessID string) (*Row, error) {
	row := new(Row)
	err := s.db.NewSelect().
		Model(row).
		Where("p.id = ?", projectID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select project: %w", err)
	}
	if row.BusinessID != businessID {
		return nil, ErrForeignTenant
	}
	return row, nil
}

// SaveDraft upserts the merged state snapshot onto the project row.
func (s *Store) SaveDraft(ctx context.Context, projectID, businessID string, draft statex.ProjectState) error {
	row := &Row{
		ID:         projectID,
		BusinessID: businessID,
		Title:      draft.Title,
		Draft:      draft,
		UpdatedAt:  time.Now().UTC(),
	}
	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("draft = EXCLUDED.draft").
		Set("updated_at = EXCLUDED.updated_at").
		Where("p.business_id = ?", businessID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert project draft: %w", err)
	}
	return nil
}

// IsPublished reports the persisted publish status for a project.
func (s *Store) IsPublished(ctx context.Context, projectID, businessID string) (bool, error) {
	row, err := s.Get(ctx, projectID, businessID)
	if err != nil {
		return false, err
	}
	return row.Published, nil
}

// Business loads the tenant profile for context assembly.
func (s *Store) Business(ctx context.Context, businessID string) (*BusinessProfile, error) {
	profile := new(BusinessProfile)
	err := s.db.NewSelect().
		Model(profile).
		Where("b.id = ?", businessID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("business %s: %w", businessID, ErrProjectNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select business: %w", err)
	}
	return profile, nil
}
