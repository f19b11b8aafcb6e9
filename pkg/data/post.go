package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	upsertPostSQL = `INSERT INTO posts (
			slug,
			title,
			summary,
			body,
			created_at
		)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			title = excluded.title,
			summary = excluded.summary,
			body = excluded.body
		RETURNING id
	`

	selectPostSQL = `SELECT
			id,
			slug,
			title,
			summary,
			body,
			created_at
		FROM posts
		WHERE slug = ?
	`

	listPostsSQL = `SELECT
			id,
			slug,
			title,
			summary,
			created_at
		FROM posts
		ORDER BY created_at DESC, id DESC
	`

	selectPostForecastsSQL = `SELECT forecast_id FROM post_forecasts WHERE post_id = ? ORDER BY forecast_id`

	deletePostForecastsSQL = `DELETE FROM post_forecasts WHERE post_id = ?`

	insertPostForecastSQL = `INSERT INTO post_forecasts (post_id, forecast_id) VALUES (?, ?)`
)

// ErrInvalidPost is returned when a post is missing its title, body or slug.
var ErrInvalidPost = errors.New("invalid post")

var slugRegEx = regexp.MustCompile(`[^a-z0-9]+`)

// Post is a long-form write-up that references forecasts.
type Post struct {
	ID          int64     `json:"id" yaml:"id"`
	Slug        string    `json:"slug" yaml:"slug"`
	Title       string    `json:"title" yaml:"title"`
	Summary     string    `json:"summary,omitempty" yaml:"summary,omitempty"`
	Body        string    `json:"body,omitempty" yaml:"body,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"createdAt"`
	ForecastIDs []int64   `json:"forecast_ids,omitempty" yaml:"forecastIDs,omitempty"`
}

// Slugify turns a title into a URL friendly slug.
func Slugify(v string) string {
	return strings.Trim(slugRegEx.ReplaceAllString(strings.ToLower(v), "-"), "-")
}

// SavePost inserts the post or replaces the one with the same slug.
// Every referenced forecast must exist.
func (s *Store) SavePost(ctx context.Context, p *Post) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if p == nil || strings.TrimSpace(p.Title) == "" {
		return 0, fmt.Errorf("%w: title required", ErrInvalidPost)
	}
	if strings.TrimSpace(p.Body) == "" {
		return 0, fmt.Errorf("%w: body required", ErrInvalidPost)
	}
	slug := p.Slug
	if strings.TrimSpace(slug) == "" {
		slug = p.Title
	}
	if p.Slug = Slugify(slug); p.Slug == "" {
		return 0, fmt.Errorf("%w: slug required, %q has no letters or digits to build one from", ErrInvalidPost, slug)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, s.rebind(upsertPostSQL),
			p.Slug, strings.TrimSpace(p.Title), strings.TrimSpace(p.Summary), p.Body, toUnix(p.CreatedAt),
		).Scan(&p.ID); err != nil {
			return fmt.Errorf("failed to upsert post %s: %w", p.Slug, err)
		}

		if _, err := tx.ExecContext(ctx, s.rebind(deletePostForecastsSQL), p.ID); err != nil {
			return fmt.Errorf("failed to clear forecasts of post %s: %w", p.Slug, err)
		}

		seen := make([]int64, 0, len(p.ForecastIDs))
		for _, id := range p.ForecastIDs {
			if Contains(seen, id) {
				continue
			}
			seen = append(seen, id)
			if err := s.requireForecast(ctx, tx, id); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, s.rebind(insertPostForecastSQL), p.ID, id); err != nil {
				return fmt.Errorf("failed to link forecast %d to post %s: %w", id, p.Slug, err)
			}
		}
		p.ForecastIDs = seen
		return nil
	})
	if err != nil {
		return 0, err
	}

	return p.ID, nil
}

// GetPost returns the post with slug or ErrNotFound.
func (s *Store) GetPost(ctx context.Context, slug string) (*Post, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var (
		p       Post
		created int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(selectPostSQL), slug).Scan(
		&p.ID, &p.Slug, &p.Title, &p.Summary, &p.Body, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: post %s", ErrNotFound, slug)
		}
		return nil, fmt.Errorf("failed to scan post: %w", err)
	}
	p.CreatedAt = fromUnix(created)

	rows, err := s.db.QueryContext(ctx, s.rebind(selectPostForecastsSQL), p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to select forecasts of post %s: %w", slug, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan post forecast: %w", err)
		}
		p.ForecastIDs = append(p.ForecastIDs, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate post forecasts: %w", err)
	}

	return &p, nil
}

// ListPosts returns all posts without their body, newest first.
func (s *Store) ListPosts(ctx context.Context) ([]*Post, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, listPostsSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to select posts: %w", err)
	}
	defer rows.Close()

	list := make([]*Post, 0)
	for rows.Next() {
		var (
			p       Post
			created int64
		)
		if err := rows.Scan(&p.ID, &p.Slug, &p.Title, &p.Summary, &created); err != nil {
			return nil, fmt.Errorf("failed to scan post row: %w", err)
		}
		p.CreatedAt = fromUnix(created)
		list = append(list, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate post rows: %w", err)
	}

	return list, nil
}
