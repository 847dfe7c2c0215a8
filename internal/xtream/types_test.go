package xtream

import (
	"encoding/json"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexDecoding(t *testing.T) {
	var v struct {
		A FlexInt    `json:"a"`
		B FlexInt    `json:"b"`
		C FlexInt    `json:"c"`
		D FlexFloat  `json:"d"`
		E FlexFloat  `json:"e"`
		F FlexString `json:"f"`
		G FlexString `json:"g"`
		H FlexString `json:"h"`
	}
	data := `{"a": 42, "b": "17", "c": "n/a", "d": "8.8", "e": 9, "f": 5, "g": "x", "h": null}`
	require.NoError(t, json.Unmarshal([]byte(data), &v))
	assert.Equal(t, FlexInt(42), v.A)
	assert.Equal(t, FlexInt(17), v.B)
	assert.Equal(t, FlexInt(0), v.C)
	assert.InDelta(t, 8.8, float64(v.D), 0.0001)
	assert.InDelta(t, 9.0, float64(v.E), 0.0001)
	assert.Equal(t, FlexString("5"), v.F)
	assert.Equal(t, FlexString("x"), v.G)
	assert.Equal(t, FlexString(""), v.H)
}

func TestUserInfoActive(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"active", `{"auth":1,"status":"Active"}`, true},
		{"string auth", `{"auth":"1","status":"Active"}`, true},
		{"no status", `{"auth":1}`, true},
		{"status only", `{"status":"Active"}`, true},
		{"auth with other status", `{"auth":1,"status":"Expired"}`, true},
		{"banned", `{"auth":0,"status":"Banned"}`, false},
		{"empty", `{}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u UserInfo
			require.NoError(t, json.Unmarshal([]byte(tt.body), &u))
			assert.Equal(t, tt.want, u.Active())
		})
	}
	var nilInfo *UserInfo
	assert.False(t, nilInfo.Active())
}

func TestEpisodeMapShapes(t *testing.T) {
	var obj SeriesInfo
	require.NoError(t, json.Unmarshal([]byte(`{"episodes":{"2":[{"id":"5"}],"10":[{"id":"9"}],"1":[{"id":1}]}}`), &obj))
	if diff := cmp.Diff([]string{"1", "2", "10"}, obj.Episodes.SortedSeasonKeys()); diff != "" {
		t.Errorf("season order (-want +got):\n%s", diff)
	}

	var arr SeriesInfo
	require.NoError(t, json.Unmarshal([]byte(`{"episodes":[[{"id":"1"}],[{"id":"2"},{"id":"3"}]]}`), &arr))
	require.Len(t, arr.Episodes, 2)
	assert.Len(t, arr.Episodes["2"], 2)

	var empty SeriesInfo
	require.NoError(t, json.Unmarshal([]byte(`{"episodes":""}`), &empty))
	assert.Empty(t, empty.Episodes)
}

func TestSortedSeasonKeysNonNumeric(t *testing.T) {
	m := EpisodeMap{"special": nil, "3": nil, "1": nil}
	assert.Equal(t, []string{"1", "3", "special"}, m.SortedSeasonKeys())
}

func TestPlayerAPIURL(t *testing.T) {
	c := Credentials{BaseURL: "http://panel.example:8080", Username: "bob", Password: "p&ss"}

	assert.Equal(t,
		"http://panel.example:8080/player_api.php?username=bob&password=p%26ss",
		PlayerAPIURL(c, "", nil))

	got := PlayerAPIURL(c, ActionLiveStreams, url.Values{ParamCategoryID: {"3"}})
	assert.Equal(t,
		"http://panel.example:8080/player_api.php?username=bob&password=p%26ss&action=get_live_streams&category_id=3",
		got)

	assert.Equal(t, "http://panel.example:8080/player_api.php", ProbeURL("http://panel.example:8080/"))
}
