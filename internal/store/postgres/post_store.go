package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/store"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

// PostStore implements store.PostStore on Postgres.
//
// Expected schema:
//
//	CREATE TABLE canonical_posts (
//	    folder_id   TEXT NOT NULL REFERENCES folders (id),
//	    platform    TEXT NOT NULL,
//	    post_id     TEXT NOT NULL,
//	    url         TEXT NOT NULL DEFAULT '',
//	    author_name TEXT NOT NULL DEFAULT '',
//	    content     TEXT NOT NULL DEFAULT '',
//	    likes       BIGINT NOT NULL DEFAULT 0,
//	    comments    BIGINT NOT NULL DEFAULT 0,
//	    shares      BIGINT NOT NULL DEFAULT 0,
//	    views       BIGINT NOT NULL DEFAULT 0,
//	    posted_at   TIMESTAMPTZ,
//	    media_urls  JSONB NOT NULL DEFAULT '[]',
//	    verified    BOOLEAN NOT NULL DEFAULT FALSE,
//	    raw_source  JSONB,
//	    PRIMARY KEY (folder_id, platform, post_id)
//	);
type PostStore struct {
	db db
}

// NewPostStore creates a PostStore with its own connection pool.
func NewPostStore(ctx context.Context, dsn string) (*PostStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	return &PostStore{db: pool}, nil
}

// NewPostStoreWithDB wraps an existing pool or mock.
func NewPostStoreWithDB(db db) *PostStore {
	return &PostStore{db: db}
}

// FolderExists reports whether the destination folder is known.
func (s *PostStore) FolderExists(ctx context.Context, folderID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM folders WHERE id = $1);`, folderID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check folder: %w", err)
	}
	return exists, nil
}

// upsertPostQuery keeps identity fields from being blanked by sparse
// redeliveries while letting engagement counters be last-write-wins.
const upsertPostQuery = `
	INSERT INTO canonical_posts
		(folder_id, platform, post_id, url, author_name, content,
		 likes, comments, shares, views, posted_at, media_urls, verified, raw_source)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (folder_id, platform, post_id) DO UPDATE SET
		url         = COALESCE(NULLIF(EXCLUDED.url, ''), canonical_posts.url),
		author_name = COALESCE(NULLIF(EXCLUDED.author_name, ''), canonical_posts.author_name),
		content     = COALESCE(NULLIF(EXCLUDED.content, ''), canonical_posts.content),
		likes       = EXCLUDED.likes,
		comments    = EXCLUDED.comments,
		shares      = EXCLUDED.shares,
		views       = EXCLUDED.views,
		posted_at   = COALESCE(EXCLUDED.posted_at, canonical_posts.posted_at),
		media_urls  = CASE WHEN EXCLUDED.media_urls <> '[]'::jsonb
		                   THEN EXCLUDED.media_urls ELSE canonical_posts.media_urls END,
		verified    = EXCLUDED.verified,
		raw_source  = COALESCE(EXCLUDED.raw_source, canonical_posts.raw_source);
`

// UpsertPosts applies idempotent upserts inside one transaction so readers
// never observe a half-written delivery.
func (s *PostStore) UpsertPosts(ctx context.Context, posts []webhook.CanonicalPost) (int, error) {
	if len(posts) == 0 {
		return 0, nil
	}

	checked := make(map[string]bool)
	for _, post := range posts {
		if checked[post.FolderID] {
			continue
		}
		exists, err := s.FolderExists(ctx, post.FolderID)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, store.ErrFolderNotReady
		}
		checked[post.FolderID] = true
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin upsert tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	written := 0
	for _, post := range posts {
		media, err := json.Marshal(post.MediaURLs)
		if err != nil {
			return written, fmt.Errorf("failed to marshal media urls: %w", err)
		}
		if post.MediaURLs == nil {
			media = []byte("[]")
		}
		_, err = tx.Exec(ctx, upsertPostQuery,
			post.FolderID,
			post.Platform,
			post.PostID,
			post.URL,
			post.AuthorName,
			post.Content,
			post.Likes,
			post.Comments,
			post.Shares,
			post.Views,
			post.PostedAt,
			media,
			post.Verified,
			post.RawSource,
		)
		if err != nil {
			return written, fmt.Errorf("failed to upsert post %s/%s: %w", post.Platform, post.PostID, err)
		}
		written++
	}
	if err := tx.Commit(ctx); err != nil {
		return written, fmt.Errorf("failed to commit upsert tx: %w", err)
	}
	return written, nil
}

// GetPost fetches one post by natural key.
func (s *PostStore) GetPost(ctx context.Context, folderID string, platform webhook.Platform, postID string) (webhook.CanonicalPost, error) {
	query := `
		SELECT folder_id, platform, post_id, url, author_name, content,
		       likes, comments, shares, views, posted_at, media_urls, verified, raw_source
		FROM canonical_posts
		WHERE folder_id = $1 AND platform = $2 AND post_id = $3;
	`
	var post webhook.CanonicalPost
	var media []byte
	err := s.db.QueryRow(ctx, query, folderID, platform, postID).Scan(
		&post.FolderID,
		&post.Platform,
		&post.PostID,
		&post.URL,
		&post.AuthorName,
		&post.Content,
		&post.Likes,
		&post.Comments,
		&post.Shares,
		&post.Views,
		&post.PostedAt,
		&media,
		&post.Verified,
		&post.RawSource,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return webhook.CanonicalPost{}, store.ErrNotFound
		}
		return webhook.CanonicalPost{}, fmt.Errorf("failed to get post: %w", err)
	}
	if len(media) > 0 {
		if err := json.Unmarshal(media, &post.MediaURLs); err != nil {
			return webhook.CanonicalPost{}, fmt.Errorf("failed to decode media urls: %w", err)
		}
	}
	return post, nil
}
