package normalize

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

func TestNormalizeInstagramItems(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	body := []byte(`[
		{"post_id": "p1", "url": "https://instagram.com/p/p1", "user_posted": "alice",
		 "description": "first", "likes": 10, "num_comments": 2, "is_verified": true,
		 "date_posted": "2026-08-01T10:00:00Z",
		 "photos": ["https://cdn.test/a.jpg", "https://cdn.test/b.jpg"]},
		{"shortcode": "p2", "link": "https://instagram.com/p/p2", "username": "bob",
		 "caption": "second", "like_count": "25", "views": 100}
	]`)

	posts, outcome, err := m.Normalize(webhook.PlatformInstagram, "folder-1", body)
	require.NoError(t, err)
	require.Equal(t, webhook.Outcome{ItemsTotal: 2, ItemsValid: 2}, outcome)
	require.Len(t, posts, 2)

	first := posts[0]
	require.Equal(t, "p1", first.PostID)
	require.Equal(t, "folder-1", first.FolderID)
	require.Equal(t, "alice", first.AuthorName)
	require.Equal(t, "first", first.Content)
	require.Equal(t, int64(10), first.Likes)
	require.Equal(t, int64(2), first.Comments)
	require.True(t, first.Verified)
	require.Equal(t, time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC), first.PostedAt.UTC())
	require.Equal(t, []string{"https://cdn.test/a.jpg", "https://cdn.test/b.jpg"}, first.MediaURLs)
	require.NotEmpty(t, first.RawSource)

	// Aliased fields and a numeric string resolve too.
	second := posts[1]
	require.Equal(t, "p2", second.PostID)
	require.Equal(t, "bob", second.AuthorName)
	require.Equal(t, int64(25), second.Likes)
	require.Equal(t, int64(100), second.Views)
}

func TestNormalizeWarningEntries(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	body := []byte(`[
		{"warning": "no posts found", "warning_code": "dead_page"},
		{"error_code": "crawl_failed"},
		{"post_id": "a", "url": "https://x.test/a"},
		{"post_id": "b", "url": "https://x.test/b"},
		{"post_id": "c", "url": "https://x.test/c"}
	]`)

	posts, outcome, err := m.Normalize(webhook.PlatformInstagram, "folder-1", body)
	require.NoError(t, err)
	require.Equal(t, 3, outcome.ItemsValid)
	require.Equal(t, 2, outcome.ItemsWarned)
	require.Zero(t, outcome.ItemsFailed)
	require.Len(t, posts, 3)
}

func TestWarningFlagWithRealDataIsNotWarning(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	body := []byte(`[{"warning": "partial", "post_id": "p9", "url": "https://x.test/p9"}]`)

	posts, outcome, err := m.Normalize(webhook.PlatformTikTok, "f", body)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.ItemsValid)
	require.Len(t, posts, 1)
}

func TestNormalizeEnvelopeShape(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	body := []byte(`{"status": "ready", "snapshot_id": "s1",
		"data": [{"video_id": "v1", "share_url": "https://tiktok.com/@a/video/v1",
		          "digg_count": 7, "play_count": 900, "unique_id": "carol"}]}`)

	posts, outcome, err := m.Normalize(webhook.PlatformTikTok, "f", body)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.ItemsValid)
	require.Equal(t, "v1", posts[0].PostID)
	require.Equal(t, int64(7), posts[0].Likes)
	require.Equal(t, int64(900), posts[0].Views)
	require.Equal(t, "carol", posts[0].AuthorName)
}

func TestNormalizeUnknownPlatform(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	_, _, err := m.Normalize(webhook.Platform("myspace"), "f", []byte(`[]`))
	var unknown *ErrUnknownPlatform
	require.ErrorAs(t, err, &unknown)
}

func TestNormalizeUnparseableBody(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	_, _, err := m.Normalize(webhook.PlatformFacebook, "f", []byte(`{{{`))
	require.Error(t, err)
}

func TestItemWithoutIdentityFails(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	body := []byte(`[{"content": "text but no id or url"}]`)

	posts, outcome, err := m.Normalize(webhook.PlatformFacebook, "f", body)
	require.NoError(t, err)
	require.Empty(t, posts)
	require.Equal(t, 1, outcome.ItemsFailed)
}

func TestPostIDDerivedFromURL(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	body := []byte(`[{"url": "https://linkedin.com/feed/update/urn123/"}]`)

	posts, _, err := m.Normalize(webhook.PlatformLinkedIn, "f", body)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "urn123", posts[0].PostID)
}

func TestNestedAuthorObject(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	body := []byte(`[{"post_id": "x", "url": "https://x.test/x", "user_posted": {"username": "dana"}}]`)

	posts, _, err := m.Normalize(webhook.PlatformInstagram, "f", body)
	require.NoError(t, err)
	require.Equal(t, "dana", posts[0].AuthorName)
}

func TestMediaObjectsWithURLField(t *testing.T) {
	t.Parallel()

	m := New(zap.NewNop())
	body := []byte(`[{"post_id": "x", "url": "https://fb.test/x",
		"attachments": [{"url": "https://cdn.test/1.jpg"}, {"url": "https://cdn.test/2.jpg"}]}]`)

	posts, _, err := m.Normalize(webhook.PlatformFacebook, "f", body)
	require.NoError(t, err)
	require.Equal(t, []string{"https://cdn.test/1.jpg", "https://cdn.test/2.jpg"}, posts[0].MediaURLs)
}
