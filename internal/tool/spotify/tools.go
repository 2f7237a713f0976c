package spotify

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/cirrushq/cirrus/internal/httpx"
	"github.com/cirrushq/cirrus/pkg/datasource"
	"github.com/cirrushq/cirrus/pkg/tool"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 50
	defaultMarket      = "US"
	defaultSearchTypes = "track,album,artist"
)

type trackItem struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	DurationMS int    `json:"duration_ms"`
	Popularity int    `json:"popularity"`
	Explicit   bool   `json:"explicit"`
	PreviewURL string `json:"preview_url"`
	Artists    []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name        string `json:"name"`
		ReleaseDate string `json:"release_date"`
	} `json:"album"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type namedItem struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
}

type searchResponse struct {
	Tracks *struct {
		Total int         `json:"total"`
		Items []trackItem `json:"items"`
	} `json:"tracks"`
	Albums *struct {
		Total int         `json:"total"`
		Items []namedItem `json:"items"`
	} `json:"albums"`
	Artists *struct {
		Total int         `json:"total"`
		Items []namedItem `json:"items"`
	} `json:"artists"`
}

// searchTool searches tracks, albums and artists.
type searchTool struct {
	provider *Provider
}

func (t *searchTool) Name() string { return "search" }

func (t *searchTool) Invoke(ctx context.Context, params map[string]any) (*tool.MessageStream, error) {
	p := tool.Params(params)
	query := p.String("query", "")
	if query == "" {
		return nil, datasource.ConfigErrorf(Name, "search query is required")
	}
	searchType := p.String("type", defaultSearchTypes)
	limit := p.Int("limit", defaultSearchLimit)
	if limit < 1 || limit > maxSearchLimit {
		limit = defaultSearchLimit
	}
	market := p.String("market", defaultMarket)

	t.provider.logger.Debug("spotify search",
		zap.String("query", query),
		zap.String("type", searchType),
		zap.Int("limit", limit))

	resp, err := t.provider.client.Get(ctx, "search", url.Values{
		"q":      []string{query},
		"type":   []string{searchType},
		"limit":  []string{strconv.Itoa(limit)},
		"market": []string{market},
	})
	if err != nil {
		return nil, httpx.WrapError(Name, "search", "", query, err)
	}
	var result searchResponse
	if err := resp.JSON(&result); err != nil {
		return nil, httpx.WrapError(Name, "search", "", query, err)
	}

	formatted := map[string]any{"query": query, "results": map[string]any{}}
	results := formatted["results"].(map[string]any)
	total := 0

	if result.Tracks != nil {
		items := make([]map[string]any, 0, len(result.Tracks.Items))
		for _, tr := range result.Tracks.Items {
			items = append(items, trackJSON(tr))
		}
		results["tracks"] = map[string]any{"total": result.Tracks.Total, "items": items}
		total += result.Tracks.Total
	}
	if result.Albums != nil {
		results["albums"] = map[string]any{"total": result.Albums.Total, "items": namedJSON(result.Albums.Items)}
		total += result.Albums.Total
	}
	if result.Artists != nil {
		results["artists"] = map[string]any{"total": result.Artists.Total, "items": namedJSON(result.Artists.Items)}
		total += result.Artists.Total
	}
	formatted["total_results"] = total

	return tool.MessageStreamOf(
		tool.JSONMessage(formatted),
		tool.TextMessage(fmt.Sprintf("Found %d results for %q", total, query)),
	), nil
}

// getTrackTool fetches one track by ID.
type getTrackTool struct {
	provider *Provider
}

func (t *getTrackTool) Name() string { return "get-track" }

func (t *getTrackTool) Invoke(ctx context.Context, params map[string]any) (*tool.MessageStream, error) {
	p := tool.Params(params)
	trackID := p.String("track_id", "")
	if trackID == "" {
		return nil, datasource.ConfigErrorf(Name, "track_id is required")
	}
	market := p.String("market", defaultMarket)

	resp, err := t.provider.client.Get(ctx, "tracks/"+trackID, url.Values{
		"market": []string{market},
	})
	if err != nil {
		return nil, httpx.WrapError(Name, "get-track", "", trackID, err)
	}
	var track trackItem
	if err := resp.JSON(&track); err != nil {
		return nil, httpx.WrapError(Name, "get-track", "", trackID, err)
	}

	return tool.MessageStreamOf(
		tool.JSONMessage(trackJSON(track)),
		tool.TextMessage(fmt.Sprintf("%s by %s (%s)", track.Name, joinArtists(track), track.Album.Name)),
	), nil
}

func trackJSON(tr trackItem) map[string]any {
	artists := make([]string, 0, len(tr.Artists))
	for _, a := range tr.Artists {
		artists = append(artists, a.Name)
	}
	return map[string]any{
		"id":          tr.ID,
		"name":        tr.Name,
		"artists":     artists,
		"album":       tr.Album.Name,
		"duration_ms": tr.DurationMS,
		"popularity":  tr.Popularity,
		"explicit":    tr.Explicit,
		"preview_url": tr.PreviewURL,
		"url":         tr.ExternalURLs.Spotify,
	}
}

func namedJSON(items []namedItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		out = append(out, map[string]any{
			"id":   item.ID,
			"name": item.Name,
			"url":  item.ExternalURLs.Spotify,
		})
	}
	return out
}

func joinArtists(tr trackItem) string {
	switch len(tr.Artists) {
	case 0:
		return "unknown artist"
	case 1:
		return tr.Artists[0].Name
	default:
		names := tr.Artists[0].Name
		for _, a := range tr.Artists[1:] {
			names += ", " + a.Name
		}
		return names
	}
}
