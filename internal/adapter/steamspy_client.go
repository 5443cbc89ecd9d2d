package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/game-stats/internal/errors"
	"github.com/game-stats/internal/types"
)

// SteamSpyClient reads community statistics from SteamSpy
type SteamSpyClient struct {
	client *jsonClient
}

// SteamSpyApp is the appdetails payload. Playtimes are in minutes.
type SteamSpyApp struct {
	AppID          int      `json:"appid"`
	Name           string   `json:"name"`
	Developer      string   `json:"developer"`
	Publisher      string   `json:"publisher"`
	Positive       int      `json:"positive"`
	Negative       int      `json:"negative"`
	Owners         string   `json:"owners"`
	AverageForever int      `json:"average_forever"`
	Average2Weeks  int      `json:"average_2weeks"`
	MedianForever  int      `json:"median_forever"`
	Median2Weeks   int      `json:"median_2weeks"`
	CCU            int      `json:"ccu"`
	Price          string   `json:"price"`
	Genre          string   `json:"genre"`
	Tags           TagVotes `json:"tags"`
}

// TagVotes maps a user tag to its vote count
type TagVotes map[string]int

// UnmarshalJSON accepts the empty array SteamSpy sends for apps without tags
func (t *TagVotes) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("[]")) || bytes.Equal(trimmed, []byte("null")) {
		*t = nil
		return nil
	}
	var m map[string]int
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return err
	}
	*t = m
	return nil
}

// Top returns up to n tag names ordered by votes, ties by name
func (t TagVotes) Top(n int) []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if t[names[i]] != t[names[j]] {
			return t[names[i]] > t[names[j]]
		}
		return names[i] < names[j]
	})
	if len(names) > n {
		names = names[:n]
	}
	return names
}

// Genres splits the comma-separated genre field
func (a *SteamSpyApp) Genres() []string {
	var out []string
	for _, g := range strings.Split(a.Genre, ",") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

// NewSteamSpyClient creates a SteamSpy client
func NewSteamSpyClient(opts Options) *SteamSpyClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://steamspy.com"
	}
	return &SteamSpyClient{client: newJSONClient(string(types.SourceSteamSpy), opts)}
}

// GetAppDetails returns the community statistics for one app
func (c *SteamSpyClient) GetAppDetails(ctx context.Context, appID int) (*SteamSpyApp, error) {
	query := url.Values{}
	query.Set("request", "appdetails")
	query.Set("appid", strconv.Itoa(appID))

	var app SteamSpyApp
	if err := c.client.getJSON(ctx, "/api.php", query, &app); err != nil {
		return nil, err
	}
	// Unknown apps come back as an empty record rather than an error
	if app.AppID == 0 && app.Name == "" {
		return nil, errors.NewProviderError(string(types.SourceSteamSpy), fmt.Errorf("app %d not found", appID))
	}
	return &app, nil
}
