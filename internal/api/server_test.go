package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	archivemem "github.com/wina-futureobjects/track-futura-new-sub002/internal/archive/memory"
	cachemem "github.com/wina-futureobjects/track-futura-new-sub002/internal/cache/memory"
	clocksystem "github.com/wina-futureobjects/track-futura-new-sub002/internal/clock/system"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/config"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/gate"
	hashsha256 "github.com/wina-futureobjects/track-futura-new-sub002/internal/hash/sha256"
	iduuid "github.com/wina-futureobjects/track-futura-new-sub002/internal/id/uuid"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/ingest"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/monitor"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/normalize"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/status"
	storemem "github.com/wina-futureobjects/track-futura-new-sub002/internal/store/memory"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

const testToken = "test-shared-secret"

type testServer struct {
	server *Server
	events *storemem.EventStore
	posts  *storemem.PostStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := zap.NewNop()
	clk := clocksystem.New()
	hasher := hashsha256.New()
	ids := iduuid.New()

	events := storemem.NewEventStore()
	posts := storemem.NewPostStore()
	posts.RegisterFolder("folder-1")
	statuses := storemem.NewStatusStore()
	statuses.AddRequest(webhook.ScraperRequest{
		ID: "req-1", BatchID: "batch-1", SnapshotID: "snap-1",
		Platform: webhook.PlatformInstagram, FolderID: "folder-1",
		Status: webhook.StatusProcessing,
	})
	statuses.AddRequest(webhook.ScraperRequest{
		ID: "req-2", BatchID: "batch-1", SnapshotID: "snap-ghost",
		Platform: webhook.PlatformInstagram, FolderID: "folder-ghost",
		Status: webhook.StatusProcessing,
	})

	secCfg := config.SecurityConfig{
		Token:              testToken,
		MaxTimestampAgeSec: 300,
		RateLimitPerMinute: 1000,
	}
	g := gate.New(secCfg, cachemem.New(clk), hasher, clk, logger)

	mon := monitor.New(config.MonitorConfig{
		BufferSize:          100,
		ErrorRateBaseline:   0.10,
		LatencyThresholdMs:  2000,
		AnalyticsWindowMins: 60,
	}, clk, nil, logger)

	pipeline := ingest.New(ingest.Deps{
		Events:   events,
		Posts:    posts,
		Statuses: statuses,
		Engine:   status.NewEngine(statuses, logger),
		Mapper:   normalize.New(logger),
		Archive:  archivemem.New(),
		Monitor:  mon,
		Hasher:   hasher,
		IDs:      ids,
		Clock:    clk,
		Logger:   logger,
	})

	srv := NewServer(g, pipeline, mon, ids, config.ServerConfig{Port: 8080, TimeoutSeconds: 60}, logger)
	return &testServer{server: srv, events: events, posts: posts}
}

func postWebhook(t *testing.T, srv *Server, headers map[string]string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.RemoteAddr = "203.0.113.7:52100"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func authorizedHeaders(snapshotID string) map[string]string {
	return map[string]string{
		"Authorization": "Bearer " + testToken,
		"X-Timestamp":   fmt.Sprintf("%d", time.Now().Unix()),
		"X-Platform":    "instagram",
		"X-Snapshot-Id": snapshotID,
	}
}

func TestWebhookHappyPath(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	body := []byte(`[
		{"post_id": "p1", "url": "https://insta.test/p/p1", "user_posted": "alice", "likes": 3},
		{"warning": "no more posts"}
	]`)

	rec := postWebhook(t, ts.server, authorizedHeaders("snap-1"), body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "completed", resp["status"])
	require.EqualValues(t, 1, resp["items_processed"])
	require.EqualValues(t, 1, resp["items_skipped"])
	require.Equal(t, "folder-1", resp["folder_id"])

	post, err := ts.posts.GetPost(context.Background(), "folder-1", webhook.PlatformInstagram, "p1")
	require.NoError(t, err)
	require.Equal(t, "alice", post.AuthorName)
}

func TestWebhookProcessingFailureReportedInBody(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)

	// Unparseable payload: the delivery is accepted (200, no redelivery)
	// but the body must say processing failed, not look like an empty success.
	rec := postWebhook(t, ts.server, authorizedHeaders("snap-1"), []byte(`{{not json`))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "failed", resp["status"])
	require.NotEmpty(t, resp["event_id"])
	require.EqualValues(t, 0, resp["items_processed"])
}

func TestWebhookRejectsInvalidAuth(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	headers := authorizedHeaders("snap-1")
	headers["Authorization"] = "Bearer wrong-token"

	rec := postWebhook(t, ts.server, headers, []byte(`[]`))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "invalid_signature", resp["error"])

	// Rejected deliveries never reach the event store.
	replayable, err := ts.events.ListReplayable(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, replayable)
}

func TestWebhookNotReadyAnswers202(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	body := []byte(`[{"post_id": "p1", "user_posted": "alice"}]`)

	rec := postWebhook(t, ts.server, authorizedHeaders("snap-ghost"), body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The delivery is stored and stays replayable.
	replayable, err := ts.events.ListReplayable(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, replayable, 1)
	require.Equal(t, webhook.EventPending, replayable[0].Status)
}

func TestWebhookRoutingHintsFromBody(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	body := []byte(`{
		"platform": "instagram",
		"snapshot_id": "snap-1",
		"status": "ready",
		"data": [{"post_id": "p9", "user_posted": "carol"}]
	}`)

	rec := postWebhook(t, ts.server, map[string]string{
		"Authorization": "Bearer " + testToken,
		"X-Timestamp":   fmt.Sprintf("%d", time.Now().Unix()),
	}, body)
	require.Equal(t, http.StatusOK, rec.Code)

	post, err := ts.posts.GetPost(context.Background(), "folder-1", webhook.PlatformInstagram, "p9")
	require.NoError(t, err)
	require.Equal(t, "carol", post.AuthorName)
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	rec := postWebhook(t, ts.server, authorizedHeaders("snap-1"),
		[]byte(`[{"post_id": "p1", "user_posted": "alice"}]`))
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/webhook/health", nil)
	hrec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(hrec, req)
	require.Equal(t, http.StatusOK, hrec.Code)

	var resp struct {
		Status  string         `json:"status"`
		Metrics map[string]any `json:"metrics"`
	}
	require.NoError(t, json.Unmarshal(hrec.Body.Bytes(), &resp))
	require.Equal(t, "healthy", resp.Status)
	require.EqualValues(t, 1, resp.Metrics["total_deliveries"])
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
