package gate

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	cachememory "github.com/wina-futureobjects/track-futura-new-sub002/internal/cache/memory"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/config"
	sha256hash "github.com/wina-futureobjects/track-futura-new-sub002/internal/hash/sha256"
)

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }

func testConfig() config.SecurityConfig {
	return config.SecurityConfig{
		Token:              "shared-secret",
		MaxTimestampAgeSec: 300,
		RateLimitPerMinute: 100,
	}
}

func newTestGate(t *testing.T, cfg config.SecurityConfig, clock fixedClock) *Gate {
	t.Helper()
	return New(cfg, cachememory.New(clock), sha256hash.New(), clock, zap.NewNop())
}

func bearerRequest(body []byte, at time.Time) Request {
	return Request{
		RemoteIP:      "203.0.113.7",
		Path:          "/webhook",
		Authorization: "Bearer shared-secret",
		Timestamp:     strconv.FormatInt(at.Unix(), 10),
		Body:          body,
	}
}

func TestAdmitValidBearerDelivery(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, testConfig(), clock)

	warnings, err := g.Admit(context.Background(), bearerRequest([]byte(`[{"url":"https://x.test/p/1"}]`), clock.now))
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestAdmitValidHMACDelivery(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, testConfig(), clock)

	body := []byte(`[{"url":"https://x.test/p/1"}]`)
	mac := hmac.New(sha256.New, []byte("shared-secret"))
	mac.Write(body)

	req := Request{
		RemoteIP:  "203.0.113.7",
		Path:      "/webhook",
		Signature: "sha256=" + hex.EncodeToString(mac.Sum(nil)),
		Timestamp: strconv.FormatInt(clock.now.Unix(), 10),
		Body:      body,
	}
	_, err := g.Admit(context.Background(), req)
	require.NoError(t, err)
}

func TestRejectInvalidSignature(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, testConfig(), clock)

	req := bearerRequest([]byte(`[]`), clock.now)
	req.Authorization = "Bearer wrong-secret"

	_, err := g.Admit(context.Background(), req)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, ReasonInvalidSignature, rej.Reason)
}

func TestRejectMissingAuth(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, testConfig(), clock)

	req := bearerRequest([]byte(`[]`), clock.now)
	req.Authorization = ""

	_, err := g.Admit(context.Background(), req)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, ReasonInvalidSignature, rej.Reason)
}

func TestRejectStaleTimestamp(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, testConfig(), clock)

	req := bearerRequest([]byte(`[]`), clock.now.Add(-10*time.Minute))

	_, err := g.Admit(context.Background(), req)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, ReasonStaleTimestamp, rej.Reason)
}

func TestRejectMissingTimestamp(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, testConfig(), clock)

	req := bearerRequest([]byte(`[]`), clock.now)
	req.Timestamp = ""

	_, err := g.Admit(context.Background(), req)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, ReasonStaleTimestamp, rej.Reason)
}

func TestTimestampEmbeddedInBody(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, testConfig(), clock)

	body := []byte(fmt.Sprintf(`{"timestamp": %d, "data": []}`, clock.now.Unix()))
	req := bearerRequest(body, clock.now)
	req.Timestamp = ""

	_, err := g.Admit(context.Background(), req)
	require.NoError(t, err)
}

func TestRejectReplayWithinWindow(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, testConfig(), clock)

	req := bearerRequest([]byte(`[{"url":"https://x.test/p/1"}]`), clock.now)

	_, err := g.Admit(context.Background(), req)
	require.NoError(t, err)

	_, err = g.Admit(context.Background(), req)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, ReasonReplayDetected, rej.Reason)
}

func TestRateLimitBoundary(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.RateLimitPerMinute = 5
	clock := fixedClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, cfg, clock)

	// Requests 1..5 pass the rate check (they fail later on replay, which
	// proves the limiter admitted them); request 6 must be rate limited.
	for i := 0; i < 5; i++ {
		req := bearerRequest([]byte(fmt.Sprintf(`[{"url":"https://x.test/p/%d"}]`, i)), clock.now)
		_, err := g.Admit(context.Background(), req)
		require.NoError(t, err, "request %d should be admitted", i+1)
	}

	req := bearerRequest([]byte(`[{"url":"https://x.test/p/6"}]`), clock.now)
	_, err := g.Admit(context.Background(), req)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, ReasonRateLimited, rej.Reason)
}

func TestIPAllowList(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.AllowedIPs = []string{"10.0.0.0/8", "192.0.2.99"}
	clock := fixedClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, cfg, clock)

	req := bearerRequest([]byte(`[]`), clock.now)
	req.RemoteIP = "10.1.2.3"
	_, err := g.Admit(context.Background(), req)
	require.NoError(t, err)

	req = bearerRequest([]byte(`[{"url":"https://x.test/other"}]`), clock.now)
	req.RemoteIP = "192.0.2.99"
	_, err = g.Admit(context.Background(), req)
	require.NoError(t, err)

	req = bearerRequest([]byte(`[]`), clock.now)
	req.RemoteIP = "203.0.113.7"
	_, err = g.Admit(context.Background(), req)
	var rej *Rejection
	require.ErrorAs(t, err, &rej)
	require.Equal(t, ReasonIPBlocked, rej.Reason)
}

func TestEmptyAllowListAdmitsAnyIP(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, testConfig(), clock)

	req := bearerRequest([]byte(`[]`), clock.now)
	req.RemoteIP = "198.51.100.44"
	_, err := g.Admit(context.Background(), req)
	require.NoError(t, err)
}

func TestValidationWarningsDoNotReject(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, testConfig(), clock)

	body := []byte(`[{"url": ""}, {"url": "https://x.test/p/1", "likes": -3}]`)
	warnings, err := g.Admit(context.Background(), bearerRequest(body, clock.now))
	require.NoError(t, err)
	require.Len(t, warnings, 2)
}

func TestMalformedBodyIsWarningNotRejection(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Unix(1_700_000_000, 0)}
	g := newTestGate(t, testConfig(), clock)

	warnings, err := g.Admit(context.Background(), bearerRequest([]byte(`not json at all`), clock.now))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
}
