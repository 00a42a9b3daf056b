package normalize

import "github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"

// fieldTable lists, per canonical field, the source field names to try in
// order. The provider renames fields between dataset versions, so every
// canonical field carries the aliases observed in real deliveries.
type fieldTable struct {
	PostID   []string
	URL      []string
	Author   []string
	Content  []string
	Likes    []string
	Comments []string
	Shares   []string
	Views    []string
	PostedAt []string
	Media    []string
	Verified []string
}

var platformFields = map[webhook.Platform]fieldTable{
	webhook.PlatformInstagram: {
		PostID:   []string{"post_id", "pk", "id", "shortcode"},
		URL:      []string{"url", "post_url", "link"},
		Author:   []string{"user_posted", "username", "user_name", "owner_username"},
		Content:  []string{"description", "caption", "content", "text"},
		Likes:    []string{"likes", "like_count", "likes_count"},
		Comments: []string{"num_comments", "comment_count", "comments_count"},
		Shares:   []string{"shares", "share_count", "reshare_count"},
		Views:    []string{"views", "video_view_count", "video_play_count", "view_count"},
		PostedAt: []string{"date_posted", "timestamp", "taken_at", "created_at"},
		Media:    []string{"photos", "videos", "media_urls", "display_url"},
		Verified: []string{"is_verified", "verified"},
	},
	webhook.PlatformFacebook: {
		PostID:   []string{"post_id", "id"},
		URL:      []string{"url", "post_url", "permalink"},
		Author:   []string{"user_username_raw", "page_name", "user_posted", "author_name"},
		Content:  []string{"content", "message", "post_text", "text"},
		Likes:    []string{"likes", "reactions_count", "likes_count"},
		Comments: []string{"num_comments", "comments_count"},
		Shares:   []string{"num_shares", "shares", "shares_count"},
		Views:    []string{"video_view_count", "views"},
		PostedAt: []string{"date_posted", "created_time", "post_date"},
		Media:    []string{"attachments", "photos", "media_urls"},
		Verified: []string{"page_is_verified", "is_verified"},
	},
	webhook.PlatformTikTok: {
		PostID:   []string{"post_id", "id", "video_id", "aweme_id"},
		URL:      []string{"url", "share_url", "video_url"},
		Author:   []string{"profile_username", "account_id", "author_name", "unique_id"},
		Content:  []string{"description", "desc", "title", "content"},
		Likes:    []string{"digg_count", "likes", "like_count"},
		Comments: []string{"comment_count", "num_comments"},
		Shares:   []string{"share_count", "shares"},
		Views:    []string{"play_count", "views", "view_count"},
		PostedAt: []string{"create_time", "date_posted", "created_at"},
		Media:    []string{"video_url", "cover_url", "media_urls"},
		Verified: []string{"is_verified", "verified"},
	},
	webhook.PlatformLinkedIn: {
		PostID:   []string{"id", "post_id", "activity_id", "urn"},
		URL:      []string{"url", "post_url", "share_url"},
		Author:   []string{"user_id", "author", "user_posted", "account_name"},
		Content:  []string{"post_text", "text", "commentary", "content"},
		Likes:    []string{"num_likes", "likes", "reactions"},
		Comments: []string{"num_comments", "comments"},
		Shares:   []string{"num_shares", "shares", "reposts"},
		Views:    []string{"views", "impressions"},
		PostedAt: []string{"date_posted", "published_at", "created_at"},
		Media:    []string{"images", "media_urls", "video_url"},
		Verified: []string{"account_verified", "is_verified"},
	},
}

// warningFields mark "no data" entries the provider sends instead of posts.
var warningFields = []string{"warning", "warning_code", "error", "error_code"}
