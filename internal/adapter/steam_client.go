package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/game-stats/internal/errors"
	"github.com/game-stats/internal/types"
)

// SteamClient reads live concurrent player counts from the Steam Web API
type SteamClient struct {
	apiKey string
	client *jsonClient
}

type currentPlayersResponse struct {
	Response struct {
		PlayerCount int `json:"player_count"`
		Result      int `json:"result"`
	} `json:"response"`
}

// NewSteamClient creates a Steam Web API client. The API key is optional for this endpoint.
func NewSteamClient(apiKey string, opts Options) *SteamClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.steampowered.com"
	}
	return &SteamClient{
		apiKey: apiKey,
		client: newJSONClient(string(types.SourceSteam), opts),
	}
}

// GetCurrentPlayers returns the number of players currently in game
func (c *SteamClient) GetCurrentPlayers(ctx context.Context, appID int) (int, error) {
	query := url.Values{}
	query.Set("appid", strconv.Itoa(appID))
	if c.apiKey != "" {
		query.Set("key", c.apiKey)
	}

	var resp currentPlayersResponse
	if err := c.client.getJSON(ctx, "/ISteamUserStats/GetNumberOfCurrentPlayers/v1/", query, &resp); err != nil {
		return 0, err
	}
	if resp.Response.Result != 1 {
		return 0, errors.NewProviderError(string(types.SourceSteam),
			fmt.Errorf("app %d: result code %d", appID, resp.Response.Result))
	}
	if resp.Response.PlayerCount < 0 {
		return 0, nil
	}
	return resp.Response.PlayerCount, nil
}
