package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xtplay/internal/media"
	"xtplay/internal/playback"
)

func TestParseTarget(t *testing.T) {
	typ, id, err := parseTarget([]string{"vod", "42"})
	require.NoError(t, err)
	assert.Equal(t, media.Movie, typ)
	assert.Equal(t, int64(42), id)

	_, _, err = parseTarget([]string{"radio", "1"})
	assert.Error(t, err)
	_, _, err = parseTarget([]string{"live", "abc"})
	assert.Error(t, err)
	_, _, err = parseTarget([]string{"live", "0"})
	assert.Error(t, err)
}

func TestMatchQuality(t *testing.T) {
	levels := []playback.QualityLevel{
		{Index: 0, Height: 360},
		{Index: 1, Height: 720},
		{Index: 2, Height: 1080},
	}
	assert.Equal(t, 1, matchQuality(levels, 720))
	assert.Equal(t, 1, matchQuality(levels, 900))
	assert.Equal(t, playback.AutoQuality, matchQuality(levels, 240))
	assert.Equal(t, playback.AutoQuality, matchQuality(nil, 720))
}

func TestMatchCategory(t *testing.T) {
	cats := []media.Category{{ID: "1", Name: "News"}, {ID: "2", Name: "Sports HD"}, {ID: "3", Name: "Sports"}}

	c, ok := matchCategory(cats, "2")
	require.True(t, ok)
	assert.Equal(t, "Sports HD", c.Name)

	c, ok = matchCategory(cats, "sports")
	require.True(t, ok)
	assert.Equal(t, "3", c.ID, "exact name beats substring")

	c, ok = matchCategory(cats, "new")
	require.True(t, ok)
	assert.Equal(t, "1", c.ID)

	_, ok = matchCategory(cats, "kids")
	assert.False(t, ok)
}

func TestFormatExpiry(t *testing.T) {
	assert.Equal(t, "", formatExpiry(""))
	assert.Equal(t, "", formatExpiry("null"))
	assert.Equal(t, "", formatExpiry("0"))
	assert.Regexp(t, `^20(29|30)-\d\d-\d\d$`, formatExpiry("1893456000"))
}

func TestEpisodeTitle(t *testing.T) {
	it := media.Item{Name: "Show"}
	assert.Equal(t, "Show S01E02 Pilot", episodeTitle(it, media.Season{Number: 1}, media.Episode{Number: 2, Title: "Pilot"}))
	assert.Equal(t, "Show S02E10", episodeTitle(it, media.Season{Number: 2}, media.Episode{Number: 10}))
}

func TestItemLabels(t *testing.T) {
	labels := itemLabels([]media.Item{{Name: "A", Rating: 7.3}, {Name: "B"}})
	assert.Equal(t, []string{"A (7.3)", "B"}, labels)
}
