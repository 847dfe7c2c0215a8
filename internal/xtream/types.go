// Package xtream holds the Xtream Codes player_api wire format: request URL
// construction and tolerant JSON types.
//
// Panels disagree about whether numbers are sent as JSON numbers or strings,
// so numeric fields use FlexInt/FlexFloat/FlexString.
package xtream

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// FlexInt decodes from a JSON number or a numeric string. Anything else is 0.
type FlexInt int64

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		if v, err := n.Int64(); err == nil {
			*f = FlexInt(v)
			return nil
		}
		if v, err := n.Float64(); err == nil {
			*f = FlexInt(int64(v))
			return nil
		}
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err == nil {
			*f = FlexInt(v)
			return nil
		}
	}
	*f = 0
	return nil
}

// FlexFloat decodes from a JSON number or a numeric string. Anything else is 0.
type FlexFloat float64

func (f *FlexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			*f = FlexFloat(v)
			return nil
		}
	}
	*f = 0
	return nil
}

// FlexString decodes from a JSON string or number. null becomes "".
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexString(n.String())
		return nil
	}
	*f = ""
	return nil
}

func (f FlexString) String() string { return string(f) }

// AuthResponse is the reply to an action-less player_api call.
type AuthResponse struct {
	UserInfo   *UserInfo   `json:"user_info"`
	ServerInfo *ServerInfo `json:"server_info"`
	// Some panels answer failed logins with a bare {"error": "..."}.
	Error string `json:"error"`
}

// UserInfo describes the subscriber account.
type UserInfo struct {
	Username       string     `json:"username"`
	Auth           FlexInt    `json:"auth"`
	Status         string     `json:"status"`
	Message        string     `json:"message"`
	ExpDate        FlexString `json:"exp_date"`
	IsTrial        FlexString `json:"is_trial"`
	ActiveCons     FlexString `json:"active_cons"`
	MaxConnections FlexString `json:"max_connections"`
	CreatedAt      FlexString `json:"created_at"`
}

// Active reports whether the panel accepted the credentials: auth is 1 or
// the status is Active. Panels are inconsistent about which they send.
func (u *UserInfo) Active() bool {
	if u == nil {
		return false
	}
	return u.Auth == 1 || strings.EqualFold(u.Status, "Active")
}

// ServerInfo describes the panel.
type ServerInfo struct {
	URL            string     `json:"url"`
	Port           FlexString `json:"port"`
	HTTPSPort      FlexString `json:"https_port"`
	ServerProtocol string     `json:"server_protocol"`
	Timezone       string     `json:"timezone"`
	TimeNow        string     `json:"time_now"`
}

// Category is one entry of get_*_categories.
type Category struct {
	CategoryID   FlexString `json:"category_id"`
	CategoryName string     `json:"category_name"`
	ParentID     FlexInt    `json:"parent_id"`
}

// Stream is one entry of get_live_streams, get_vod_streams or get_series.
// Live and VOD entries carry stream_id; series entries carry series_id.
type Stream struct {
	Num                FlexInt    `json:"num"`
	Name               string     `json:"name"`
	StreamType         string     `json:"stream_type"`
	StreamID           FlexInt    `json:"stream_id"`
	SeriesID           FlexInt    `json:"series_id"`
	StreamIcon         string     `json:"stream_icon"`
	Cover              string     `json:"cover"`
	Rating             FlexFloat  `json:"rating"`
	CategoryID         FlexString `json:"category_id"`
	ContainerExtension string     `json:"container_extension"`
	EPGChannelID       string     `json:"epg_channel_id"`
}

// SeriesInfo is the reply to get_series_info.
type SeriesInfo struct {
	Info     map[string]any `json:"info"`
	Episodes EpisodeMap     `json:"episodes"`
}

// Episode is one entry of a season's episode list.
type Episode struct {
	ID                 FlexString  `json:"id"`
	EpisodeNum         FlexInt     `json:"episode_num"`
	Title              string      `json:"title"`
	ContainerExtension string      `json:"container_extension"`
	Season             FlexInt     `json:"season"`
	Info               EpisodeInfo `json:"info"`
}

// EpisodeInfo holds per-episode metadata.
type EpisodeInfo struct {
	Duration     string  `json:"duration"`
	DurationSecs FlexInt `json:"duration_secs"`
	Plot         string  `json:"plot"`
	MovieImage   string  `json:"movie_image"`
}

// EpisodeMap maps a season key to its episodes. Most panels send an object
// keyed by season number; some send an array of arrays, which is keyed by
// position starting at "1".
type EpisodeMap map[string][]Episode

func (m *EpisodeMap) UnmarshalJSON(data []byte) error {
	var obj map[string][]Episode
	if err := json.Unmarshal(data, &obj); err == nil {
		*m = obj
		return nil
	}
	var arr [][]Episode
	if err := json.Unmarshal(data, &arr); err == nil {
		out := make(map[string][]Episode, len(arr))
		for i, eps := range arr {
			out[strconv.Itoa(i+1)] = eps
		}
		*m = out
		return nil
	}
	*m = nil
	return nil
}

// SortedSeasonKeys returns the season keys ordered numerically, so "10"
// follows "2". Non-numeric keys sort after numeric ones, lexically.
func (m EpisodeMap) SortedSeasonKeys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.SliceStable(keys, func(i, j int) bool {
		a, errA := strconv.Atoi(keys[i])
		b, errB := strconv.Atoi(keys[j])
		switch {
		case errA == nil && errB == nil:
			return a < b
		case errA == nil:
			return true
		case errB == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}
