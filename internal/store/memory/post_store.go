package memory

import (
	"context"
	"sync"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/store"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

type postKey struct {
	folderID string
	platform webhook.Platform
	postID   string
}

// PostStore implements store.PostStore with a mutexed map.
type PostStore struct {
	mu      sync.RWMutex
	posts   map[postKey]webhook.CanonicalPost
	folders map[string]bool
}

// NewPostStore constructs a PostStore.
func NewPostStore() *PostStore {
	return &PostStore{
		posts:   make(map[postKey]webhook.CanonicalPost),
		folders: make(map[string]bool),
	}
}

// RegisterFolder marks a folder as existing. Folders are owned externally;
// this stands in for the folder CRUD surface in tests and development.
func (s *PostStore) RegisterFolder(folderID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folders[folderID] = true
}

// FolderExists reports whether the destination folder is known.
func (s *PostStore) FolderExists(_ context.Context, folderID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.folders[folderID], nil
}

// UpsertPosts applies idempotent upserts keyed by (platform, post_id) in the
// folder. Engagement counters are last-write-wins; identity fields keep
// their previous value when the incoming one is empty.
func (s *PostStore) UpsertPosts(_ context.Context, posts []webhook.CanonicalPost) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	written := 0
	for _, post := range posts {
		if !s.folders[post.FolderID] {
			return written, store.ErrFolderNotReady
		}
		key := postKey{folderID: post.FolderID, platform: post.Platform, postID: post.PostID}
		if existing, ok := s.posts[key]; ok {
			post = mergePost(existing, post)
		}
		s.posts[key] = post
		written++
	}
	return written, nil
}

// GetPost fetches one post by natural key.
func (s *PostStore) GetPost(_ context.Context, folderID string, platform webhook.Platform, postID string) (webhook.CanonicalPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[postKey{folderID: folderID, platform: platform, postID: postID}]
	if !ok {
		return webhook.CanonicalPost{}, store.ErrNotFound
	}
	return post, nil
}

// mergePost keeps existing identity fields when the update carries empties.
func mergePost(existing, update webhook.CanonicalPost) webhook.CanonicalPost {
	if update.URL == "" {
		update.URL = existing.URL
	}
	if update.AuthorName == "" {
		update.AuthorName = existing.AuthorName
	}
	if update.Content == "" {
		update.Content = existing.Content
	}
	if update.PostedAt == nil {
		update.PostedAt = existing.PostedAt
	}
	if len(update.MediaURLs) == 0 {
		update.MediaURLs = existing.MediaURLs
	}
	if len(update.RawSource) == 0 {
		update.RawSource = existing.RawSource
	}
	return update
}
