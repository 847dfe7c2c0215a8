package streamurl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"xtplay/internal/media"
	"xtplay/internal/xtream"
)

var creds = xtream.Credentials{BaseURL: "http://panel.example:8080", Username: "bob", Password: "x"}

func TestLiveCandidates(t *testing.T) {
	got := Candidates(creds, 42, media.Live, "")
	want := []string{
		"http://panel.example:8080/live/bob/x/42.ts",
		"http://panel.example:8080/live/bob/x/42.m3u8",
		"http://panel.example:8080/bob/x/42.ts",
		"http://panel.example:8080/bob/x/42.m3u8",
	}
	assert.Equal(t, want, got)
	assert.Equal(t, "http://panel.example:8080/live/bob/x/42.ts", got[0])
}

func TestLiveCandidatesIgnoreExtension(t *testing.T) {
	assert.Equal(t, Candidates(creds, 42, media.Live, ""), Candidates(creds, 42, media.Live, "mkv"))
}

func TestVODCandidates(t *testing.T) {
	tests := []struct {
		name string
		t    media.ContentType
		ext  string
		want string
	}{
		{"movie with extension", media.Movie, "mkv", "http://panel.example:8080/movie/bob/x/7.mkv"},
		{"movie default", media.Movie, "", "http://panel.example:8080/movie/bob/x/7.mp4"},
		{"series with extension", media.Series, "avi", "http://panel.example:8080/series/bob/x/7.avi"},
		{"series default", media.Series, "", "http://panel.example:8080/series/bob/x/7.mp4"},
		{"unusable extension", media.Movie, "mp4/../../x", "http://panel.example:8080/movie/bob/x/7.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, []string{tt.want}, Candidates(creds, 7, tt.t, tt.ext))
		})
	}
}

func TestCandidatesDeterministic(t *testing.T) {
	a := Candidates(creds, 9, media.Live, "")
	b := Candidates(creds, 9, media.Live, "")
	assert.Equal(t, a, b)
}

func TestCandidatesEscapeCredentials(t *testing.T) {
	c := xtream.Credentials{BaseURL: "http://panel.example/", Username: "bob smith", Password: "p/ss"}
	got := Candidates(c, 1, media.Movie, "mp4")
	assert.Equal(t, []string{"http://panel.example/movie/bob%20smith/p%2Fss/1.mp4"}, got)
}

func TestDemoCandidates(t *testing.T) {
	assert.Equal(t, []string{SampleLiveURL}, Candidates(xtream.Credentials{}, 1, media.Live, ""))
	assert.Equal(t, []string{SampleVODURL}, Candidates(xtream.Credentials{}, 101, media.Movie, "mp4"))
}

func TestForEpisode(t *testing.T) {
	series := media.Item{Type: media.Series, ID: 202, Extension: "mkv"}
	assert.Equal(t, []string{"http://panel.example:8080/series/bob/x/3001.mkv"},
		ForEpisode(creds, series, media.Episode{ID: 3001}))
	assert.Equal(t, []string{"http://panel.example:8080/series/bob/x/3001.mp4"},
		ForEpisode(creds, series, media.Episode{ID: 3001, Extension: "mp4"}))
}

func TestIsHLS(t *testing.T) {
	assert.True(t, IsHLS("http://panel.example/live/a/b/1.m3u8"))
	assert.True(t, IsHLS("https://x.example/master.M3U8?token=1"))
	assert.False(t, IsHLS("http://panel.example/live/a/b/1.ts"))
}
