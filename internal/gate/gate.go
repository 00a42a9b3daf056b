// Package gate validates inbound webhook deliveries before any business
// logic runs: rate limiting, IP allow-listing, signature verification,
// timestamp freshness, replay detection, and payload shape checks.
package gate

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wina-futureobjects/track-futura-new-sub002/internal/cache"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/config"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/normalize"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/telemetry"
	"github.com/wina-futureobjects/track-futura-new-sub002/internal/webhook"
)

// Rejection reason codes, stable for logs and metrics.
const (
	ReasonRateLimited      = "rate_limited"
	ReasonIPBlocked        = "ip_blocked"
	ReasonInvalidSignature = "invalid_signature"
	ReasonStaleTimestamp   = "stale_timestamp"
	ReasonReplayDetected   = "replay_detected"
)

// Rejection describes why a delivery was turned away.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return "delivery rejected: " + r.Reason
}

// Request carries the parts of an HTTP delivery the gate inspects.
type Request struct {
	RemoteIP      string
	Path          string
	Authorization string
	Signature     string
	Timestamp     string
	Body          []byte
}

// Hasher digests raw bodies for replay-cache keys.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Gate runs every security check against an inbound delivery.
type Gate struct {
	cfg      config.SecurityConfig
	cache    cache.Cache
	hasher   Hasher
	clock    webhook.Clock
	logger   *zap.Logger
	allowed  []*net.IPNet
	allowedX []net.IP
}

// New constructs a Gate. Invalid allow-list entries are skipped with a
// warning rather than failing startup.
func New(cfg config.SecurityConfig, c cache.Cache, hasher Hasher, clock webhook.Clock, logger *zap.Logger) *Gate {
	g := &Gate{
		cfg:    cfg,
		cache:  c,
		hasher: hasher,
		clock:  clock,
		logger: logger,
	}
	for _, raw := range cfg.AllowedIPs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			_, cidr, err := net.ParseCIDR(raw)
			if err != nil {
				logger.Warn("skipping invalid allow-list CIDR", zap.String("entry", raw), zap.Error(err))
				continue
			}
			g.allowed = append(g.allowed, cidr)
			continue
		}
		ip := net.ParseIP(raw)
		if ip == nil {
			logger.Warn("skipping invalid allow-list IP", zap.String("entry", raw))
			continue
		}
		g.allowedX = append(g.allowedX, ip)
	}
	return g
}

// Admit runs all checks in cost order and returns validation warnings on
// success or a *Rejection error. Nothing is mutated on reject apart from the
// rate counter and the security-event log.
func (g *Gate) Admit(ctx context.Context, req Request) ([]string, error) {
	// Cheapest checks first so a flood never pays the signature cost.
	if err := g.checkRate(ctx, req); err != nil {
		g.logEvent(req, err)
		return nil, err
	}
	if err := g.checkIP(req); err != nil {
		g.logEvent(req, err)
		return nil, err
	}
	if err := g.checkSignature(req); err != nil {
		g.logEvent(req, err)
		return nil, err
	}
	ts, err := g.checkFreshness(req)
	if err != nil {
		g.logEvent(req, err)
		return nil, err
	}
	if err := g.checkReplay(ctx, req, ts); err != nil {
		g.logEvent(req, err)
		return nil, err
	}

	warnings := g.validatePayload(req.Body)
	g.logEvent(req, nil)
	return warnings, nil
}

func (g *Gate) checkRate(ctx context.Context, req Request) error {
	key := "webhook:rate:" + req.RemoteIP
	count, err := g.cache.Incr(ctx, key, time.Minute)
	if err != nil {
		return fmt.Errorf("rate counter: %w", err)
	}
	if count > int64(g.cfg.RateLimitPerMinute) {
		return &Rejection{Reason: ReasonRateLimited}
	}
	return nil
}

func (g *Gate) checkIP(req Request) error {
	if len(g.allowed) == 0 && len(g.allowedX) == 0 {
		return nil
	}
	ip := net.ParseIP(req.RemoteIP)
	if ip == nil {
		return &Rejection{Reason: ReasonIPBlocked}
	}
	for _, exact := range g.allowedX {
		if exact.Equal(ip) {
			return nil
		}
	}
	for _, cidr := range g.allowed {
		if cidr.Contains(ip) {
			return nil
		}
	}
	return &Rejection{Reason: ReasonIPBlocked}
}

func (g *Gate) checkSignature(req Request) error {
	if sig, ok := strings.CutPrefix(req.Signature, "sha256="); ok && sig != "" {
		mac := hmac.New(sha256.New, []byte(g.cfg.Token))
		mac.Write(req.Body)
		want := mac.Sum(nil)
		got, err := hex.DecodeString(sig)
		if err != nil || !hmac.Equal(want, got) {
			return &Rejection{Reason: ReasonInvalidSignature}
		}
		return nil
	}
	if token, ok := strings.CutPrefix(req.Authorization, "Bearer "); ok {
		if hmac.Equal([]byte(token), []byte(g.cfg.Token)) {
			return nil
		}
	}
	return &Rejection{Reason: ReasonInvalidSignature}
}

// checkFreshness parses the timestamp (unix seconds or RFC3339, from the
// header or embedded in the body) and enforces the freshness window.
func (g *Gate) checkFreshness(req Request) (time.Time, error) {
	raw := req.Timestamp
	if raw == "" {
		raw = timestampFromBody(req.Body)
	}
	if raw == "" {
		return time.Time{}, &Rejection{Reason: ReasonStaleTimestamp}
	}
	ts, ok := parseTimestamp(raw)
	if !ok {
		return time.Time{}, &Rejection{Reason: ReasonStaleTimestamp}
	}
	now := g.clock.Now()
	age := now.Sub(ts)
	if age < 0 {
		age = -age
	}
	if age > g.cfg.TimestampWindow() {
		return time.Time{}, &Rejection{Reason: ReasonStaleTimestamp}
	}
	return ts, nil
}

func (g *Gate) checkReplay(ctx context.Context, req Request, ts time.Time) error {
	digest, err := g.hasher.Hash(req.Body)
	if err != nil {
		return fmt.Errorf("hash body: %w", err)
	}
	key := fmt.Sprintf("webhook:replay:%d:%s", ts.Unix(), digest)
	created, err := g.cache.Add(ctx, key, g.cfg.ReplayCacheTTL())
	if err != nil {
		return fmt.Errorf("replay marker: %w", err)
	}
	if !created {
		return &Rejection{Reason: ReasonReplayDetected}
	}
	return nil
}

// validatePayload runs light shape checks over the items. Failures are
// warnings only; malformed items are skipped by the normalizer, never used
// to reject the whole delivery.
func (g *Gate) validatePayload(body []byte) []string {
	items, err := normalize.DecodeItems(body)
	if err != nil {
		return []string{"body is not a JSON object or array"}
	}
	var warnings []string
	for i, item := range items {
		if w := validateItem(item); w != "" {
			warnings = append(warnings, fmt.Sprintf("item %d: %s", i, w))
		}
	}
	return warnings
}

func validateItem(item map[string]any) string {
	if u, ok := item["url"]; ok {
		s, isStr := u.(string)
		if !isStr || s == "" {
			return "url must be a non-empty string"
		}
	}
	for _, field := range []string{"date_posted", "timestamp", "created_time"} {
		if v, ok := item[field].(string); ok && v != "" {
			if _, parsed := parseTimestamp(v); !parsed {
				return field + " is not a recognizable date"
			}
		}
	}
	for _, field := range []string{"likes", "num_comments", "shares", "views", "video_view_count"} {
		if v, ok := item[field].(float64); ok && v < 0 {
			return field + " must be non-negative"
		}
	}
	return ""
}

func timestampFromBody(body []byte) string {
	var envelope struct {
		Timestamp any `json:"timestamp"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	switch v := envelope.Timestamp.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	}
	return ""
}

func parseTimestamp(raw string) (time.Time, bool) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// logEvent emits one structured security-event record per decision.
func (g *Gate) logEvent(req Request, err error) {
	fields := []zap.Field{
		zap.String("client_ip", req.RemoteIP),
		zap.String("path", req.Path),
		zap.Time("at", g.clock.Now()),
		zap.Int("payload_bytes", len(req.Body)),
	}
	if err == nil {
		g.logger.Info("delivery admitted", fields...)
		return
	}
	reason := "internal_error"
	if rej, ok := err.(*Rejection); ok {
		reason = rej.Reason
	}
	telemetry.ObserveRejection(reason)
	g.logger.Warn("delivery rejected", append(fields, zap.String("reason", reason))...)
}
