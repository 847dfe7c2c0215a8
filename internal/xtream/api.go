package xtream

import (
	"net/url"
	"strings"
)

// player_api actions.
const (
	ActionLiveCategories   = "get_live_categories"
	ActionVODCategories    = "get_vod_categories"
	ActionSeriesCategories = "get_series_categories"
	ActionLiveStreams      = "get_live_streams"
	ActionVODStreams       = "get_vod_streams"
	ActionSeries           = "get_series"
	ActionSeriesInfo       = "get_series_info"

	ParamCategoryID = "category_id"
	ParamSeriesID   = "series_id"
)

// Credentials identify an account on a panel.
type Credentials struct {
	BaseURL  string // no trailing slash
	Username string
	Password string
}

// PlayerAPIURL builds {base}/player_api.php?username=..&password=..[&action=..][&params].
// An empty action produces the authentication URL.
func PlayerAPIURL(c Credentials, action string, params url.Values) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(c.BaseURL, "/"))
	b.WriteString("/player_api.php?username=")
	b.WriteString(url.QueryEscape(c.Username))
	b.WriteString("&password=")
	b.WriteString(url.QueryEscape(c.Password))
	if action != "" {
		b.WriteString("&action=")
		b.WriteString(url.QueryEscape(action))
	}
	if len(params) > 0 {
		b.WriteByte('&')
		b.WriteString(params.Encode())
	}
	return b.String()
}

// ProbeURL is the credential-free endpoint used for reachability checks.
func ProbeURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/player_api.php"
}
