package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/game-stats/internal/errors"
	"github.com/game-stats/internal/types"
)

// StoreClient reads storefront metadata from the Steam store API
type StoreClient struct {
	client *jsonClient
}

// StoreAppDetails is the data object of an appdetails response
type StoreAppDetails struct {
	Name             string         `json:"name"`
	ShortDescription string         `json:"short_description"`
	HeaderImage      string         `json:"header_image"`
	IsFree           bool           `json:"is_free"`
	Genres           []StoreGenre   `json:"genres"`
	PriceOverview    *PriceOverview `json:"price_overview,omitempty"`
	Metacritic       *Metacritic    `json:"metacritic,omitempty"`
}

// StoreGenre is one genre entry
type StoreGenre struct {
	ID          string `json:"id"`
	Description string `json:"description"`
}

// PriceOverview holds the current price. Final is in the smallest currency unit.
type PriceOverview struct {
	Currency       string `json:"currency"`
	Final          int    `json:"final"`
	FinalFormatted string `json:"final_formatted"`
}

// Metacritic holds the critic score
type Metacritic struct {
	Score int `json:"score"`
}

type storeEnvelope struct {
	Success bool             `json:"success"`
	Data    *StoreAppDetails `json:"data"`
}

// NewStoreClient creates a Steam store client
func NewStoreClient(opts Options) *StoreClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://store.steampowered.com"
	}
	return &StoreClient{client: newJSONClient(string(types.SourceSteamStore), opts)}
}

// GetAppMetadata returns the storefront details for one app
func (c *StoreClient) GetAppMetadata(ctx context.Context, appID int) (*StoreAppDetails, error) {
	id := strconv.Itoa(appID)
	query := url.Values{}
	query.Set("appids", id)

	// The response is keyed by the requested app id
	var resp map[string]storeEnvelope
	if err := c.client.getJSON(ctx, "/api/appdetails", query, &resp); err != nil {
		return nil, err
	}

	entry, ok := resp[id]
	if !ok || !entry.Success || entry.Data == nil {
		return nil, errors.NewProviderError(string(types.SourceSteamStore), fmt.Errorf("app %d: no store data", appID))
	}
	return entry.Data, nil
}

// GenreNames returns the genre descriptions
func (d *StoreAppDetails) GenreNames() []string {
	out := make([]string, 0, len(d.Genres))
	for _, g := range d.Genres {
		if g.Description != "" {
			out = append(out, g.Description)
		}
	}
	return out
}

// DisplayPrice returns the formatted price, "Free" for free apps, or "" when unknown
func (d *StoreAppDetails) DisplayPrice() string {
	if d.IsFree {
		return "Free"
	}
	if d.PriceOverview != nil {
		return d.PriceOverview.FinalFormatted
	}
	return ""
}
