// Package youtube is the quota-aware client for the YouTube Data API v3.
// Every call acquires a credential from the rotator, pays a fixed
// per-endpoint quota cost on success, and decodes the provider response
// into the typed Data API structures.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	ytapi "google.golang.org/api/youtube/v3"

	httpx "ytproxy/http"
	"ytproxy/quota"
)

// DefaultBaseURL is the Data API v3 endpoint root.
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

// Endpoint paths under the API root.
const (
	endpointSearch        = "search"
	endpointChannels      = "channels"
	endpointPlaylistItems = "playlistItems"
	endpointVideos        = "videos"
)

// Upstream performs the actual HTTP round trip. *httpx.Client satisfies
// it; tests substitute fakes.
type Upstream interface {
	Get(ctx context.Context, url string) (*httpx.Response, error)
}

// Client calls the Data API with credentials from the rotator.
//
// Control flow per call: acquire a credential (pre-check, may rotate),
// pace, perform the request, and only after a confirmed 2xx record the
// endpoint's cost against the credential. Failed calls never touch the
// ledger, except that a provider-side quotaExceeded rejection marks the
// key exhausted so the rotator stops handing it out.
type Client struct {
	// BaseURL is the API root. Override in tests.
	BaseURL string

	// Pacer adds the random pre-dispatch delay. Nil disables pacing.
	Pacer *httpx.Pacer

	upstream Upstream
	rotator  *quota.Rotator
	ledger   *quota.Ledger
}

// NewClient creates a Data API client.
func NewClient(upstream Upstream, rotator *quota.Rotator, ledger *quota.Ledger) *Client {
	return &Client{
		BaseURL:  DefaultBaseURL,
		upstream: upstream,
		rotator:  rotator,
		ledger:   ledger,
	}
}

// Search runs a video search query. Costs 100 quota units.
func (c *Client) Search(ctx context.Context, query string, maxResults int64) (*ytapi.SearchListResponse, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("part", "id,snippet")
	params.Set("type", "video")
	params.Set("maxResults", strconv.FormatInt(maxResults, 10))

	var out ytapi.SearchListResponse
	if err := c.call(ctx, endpointSearch, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Channel fetches full channel details by channel ID. Costs 1 unit.
func (c *Client) Channel(ctx context.Context, channelID string) (*ytapi.ChannelListResponse, error) {
	params := url.Values{}
	params.Set("id", channelID)
	params.Set("part", "id,snippet,statistics,status,topicDetails,contentDetails,brandingSettings,localizations")

	var out ytapi.ChannelListResponse
	if err := c.call(ctx, endpointChannels, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PlaylistItems lists the items of a playlist. Costs 1 unit. With
// idsOnly the snippet part is dropped so callers that only need video
// IDs transfer less.
func (c *Client) PlaylistItems(ctx context.Context, playlistID string, maxResults int64, idsOnly bool) (*ytapi.PlaylistItemListResponse, error) {
	params := url.Values{}
	params.Set("playlistId", playlistID)
	params.Set("maxResults", strconv.FormatInt(maxResults, 10))
	if idsOnly {
		params.Set("part", "id,status,contentDetails")
	} else {
		params.Set("part", "snippet,contentDetails,status")
	}

	var out ytapi.PlaylistItemListResponse
	if err := c.call(ctx, endpointPlaylistItems, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Videos fetches full video details by video ID. Costs 1 unit.
func (c *Client) Videos(ctx context.Context, videoID string) (*ytapi.VideoListResponse, error) {
	params := url.Values{}
	params.Set("id", videoID)
	params.Set("part", "id,snippet,contentDetails,localizations,player,statistics,status,liveStreamingDetails,topicDetails,recordingDetails")

	var out ytapi.VideoListResponse
	if err := c.call(ctx, endpointVideos, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// call performs one quota-accounted request against an endpoint and
// decodes the JSON response into out.
func (c *Client) call(ctx context.Context, endpoint string, params url.Values, out any) error {
	cost := Cost(endpoint)

	cred, err := c.rotator.Acquire(cost)
	if err != nil {
		return err
	}

	// Traffic shaping happens outside every lock so concurrent calls
	// sleep independently.
	if err := c.Pacer.Wait(ctx); err != nil {
		return err
	}

	params.Set("key", cred.Key)
	// The full URL embeds the secret; log only endpoint and key index.
	slog.Debug("youtube: dispatching request",
		slog.String("endpoint", endpoint),
		slog.Int64("cost", cost),
		slog.Any("credential", cred))

	resp, err := c.upstream.Get(ctx, c.BaseURL+"/"+endpoint+"?"+params.Encode())
	if err != nil {
		var statusErr *httpx.StatusError
		if errors.As(err, &statusErr) && isQuotaExceeded(statusErr) {
			// The provider's own accounting outranks the local estimate.
			c.ledger.MarkExhausted(ctx, cred.Index)
			return &QuotaExceededError{KeyIndex: cred.Index}
		}
		return &UpstreamError{Endpoint: endpoint, Err: err}
	}

	// The provider charged the key, so account for it even if decoding
	// below fails.
	c.ledger.Record(ctx, cred.Index, cost)

	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &UpstreamError{Endpoint: endpoint, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
