// Package normalize converts provider-specific item records into canonical
// post records via ordered per-platform field-resolution tables.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

// ErrUnknownPlatform is returned for platforms without a field table.
type ErrUnknownPlatform struct {
	Platform webhook.Platform
}

func (e *ErrUnknownPlatform) Error() string {
	return fmt.Sprintf("no field table for platform %q", e.Platform)
}

// Mapper normalizes delivery payloads.
type Mapper struct {
	logger *zap.Logger
}

// New constructs a Mapper.
func New(logger *zap.Logger) *Mapper {
	return &Mapper{logger: logger}
}

// Normalize maps the raw payload into canonical posts plus an outcome
// summary. A non-nil error means a structural failure (unparseable body or
// unknown platform) that prevented any processing; item-level problems are
// counted, not returned.
func (m *Mapper) Normalize(platform webhook.Platform, folderID string, body []byte) ([]webhook.CanonicalPost, webhook.Outcome, error) {
	table, ok := platformFields[platform]
	if !ok {
		return nil, webhook.Outcome{}, &ErrUnknownPlatform{Platform: platform}
	}

	items, err := DecodeItems(body)
	if err != nil {
		return nil, webhook.Outcome{}, fmt.Errorf("decode payload: %w", err)
	}

	outcome := webhook.Outcome{ItemsTotal: len(items)}
	posts := make([]webhook.CanonicalPost, 0, len(items))
	for i, item := range items {
		if isWarningEntry(item) {
			outcome.ItemsWarned++
			m.logger.Info("skipping no-data entry",
				zap.String("platform", string(platform)),
				zap.Int("item", i),
				zap.String("warning", warningText(item)),
			)
			continue
		}
		post, ok := m.mapItem(platform, folderID, table, item)
		if !ok {
			outcome.ItemsFailed++
			m.logger.Warn("item missing identity fields",
				zap.String("platform", string(platform)),
				zap.Int("item", i),
			)
			continue
		}
		posts = append(posts, post)
		outcome.ItemsValid++
	}
	return posts, outcome, nil
}

// mapItem resolves one data entry. An item without a post id or URL cannot
// be keyed and is dropped.
func (m *Mapper) mapItem(platform webhook.Platform, folderID string, table fieldTable, item map[string]any) (webhook.CanonicalPost, bool) {
	postID := resolveString(item, table.PostID)
	url := resolveString(item, table.URL)
	if postID == "" && url == "" {
		return webhook.CanonicalPost{}, false
	}
	if postID == "" {
		postID = idFromURL(url)
	}

	raw, err := json.Marshal(item)
	if err != nil {
		raw = nil
	}

	return webhook.CanonicalPost{
		FolderID:   folderID,
		Platform:   platform,
		PostID:     postID,
		URL:        url,
		AuthorName: resolveString(item, table.Author),
		Content:    resolveString(item, table.Content),
		Likes:      resolveInt(item, table.Likes),
		Comments:   resolveInt(item, table.Comments),
		Shares:     resolveInt(item, table.Shares),
		Views:      resolveInt(item, table.Views),
		PostedAt:   resolveTime(item, table.PostedAt),
		MediaURLs:  resolveMedia(item, table.Media),
		Verified:   resolveBool(item, table.Verified),
		RawSource:  raw,
	}, true
}

// DecodeItems accepts either a bare array of items or a wrapper object with
// a data array, matching the provider's two delivery shapes.
func DecodeItems(body []byte) ([]map[string]any, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var items []map[string]any
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode item array: %w", err)
		}
		return items, nil
	}
	var envelope struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return envelope.Data, nil
}

// isWarningEntry reports whether the item is a provider "no data" marker: a
// warning/error indicator with no substantive fields.
func isWarningEntry(item map[string]any) bool {
	flagged := false
	for _, f := range warningFields {
		if v, ok := item[f]; ok && v != nil && v != "" {
			flagged = true
			break
		}
	}
	if !flagged {
		return false
	}
	for _, f := range []string{"url", "post_id", "id", "content", "description"} {
		if v, ok := item[f].(string); ok && v != "" {
			return false
		}
	}
	return true
}

func warningText(item map[string]any) string {
	for _, f := range warningFields {
		if v, ok := item[f].(string); ok && v != "" {
			return v
		}
	}
	return "unspecified"
}

func resolveString(item map[string]any, names []string) string {
	for _, name := range names {
		switch v := item[name].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case map[string]any:
			// Nested author objects carry the handle under name/username.
			for _, sub := range []string{"username", "name", "handle"} {
				if s, ok := v[sub].(string); ok && s != "" {
					return s
				}
			}
		}
	}
	return ""
}

// resolveInt tolerates numbers, numeric strings, and missing fields.
func resolveInt(item map[string]any, names []string) int64 {
	for _, name := range names {
		switch v := item[name].(type) {
		case float64:
			if v >= 0 {
				return int64(v)
			}
		case string:
			if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && n >= 0 {
				return n
			}
		case json.Number:
			if n, err := v.Int64(); err == nil && n >= 0 {
				return n
			}
		}
	}
	return 0
}

func resolveTime(item map[string]any, names []string) *time.Time {
	for _, name := range names {
		switch v := item[name].(type) {
		case string:
			for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
				if ts, err := time.Parse(layout, v); err == nil {
					utc := ts.UTC()
					return &utc
				}
			}
			if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs > 0 {
				ts := time.Unix(secs, 0).UTC()
				return &ts
			}
		case float64:
			if v > 0 {
				ts := time.Unix(int64(v), 0).UTC()
				return &ts
			}
		}
	}
	return nil
}

func resolveBool(item map[string]any, names []string) bool {
	for _, name := range names {
		switch v := item[name].(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(v); err == nil {
				return b
			}
		}
	}
	return false
}

// resolveMedia accepts a single URL string, a list of URL strings, or a list
// of objects carrying a url field.
func resolveMedia(item map[string]any, names []string) []string {
	var urls []string
	for _, name := range names {
		switch v := item[name].(type) {
		case string:
			if v != "" {
				urls = append(urls, v)
			}
		case []any:
			for _, el := range v {
				switch m := el.(type) {
				case string:
					if m != "" {
						urls = append(urls, m)
					}
				case map[string]any:
					if u, ok := m["url"].(string); ok && u != "" {
						urls = append(urls, u)
					}
				}
			}
		}
	}
	return urls
}

func idFromURL(url string) string {
	trimmed := strings.TrimRight(url, "/")
	if i := strings.LastIndex(trimmed, "/"); i >= 0 && i < len(trimmed)-1 {
		return trimmed[i+1:]
	}
	return trimmed
}
