package download

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()

	got, err := OutputPath(dir, "Breaking Bad S01E02")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(got))
	assert.Equal(t, ".mkv", filepath.Ext(got))

	got, err = OutputPath(dir, "../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(got), "traversal is sanitized away")
}

func TestFFmpegArgs(t *testing.T) {
	assert.Equal(t, []string{
		"-y", "-user_agent", "UA",
		"-i", "http://panel.example/movie/u/p/101.mp4",
		"-map", "0", "-c", "copy",
		"-metadata", "title=Inception",
		"/tmp/Inception.mkv",
	}, ffmpegArgs("http://panel.example/movie/u/p/101.mp4", "Inception", "UA", "/tmp/Inception.mkv"))

	assert.NotContains(t, ffmpegArgs("u", "t", "", "o"), "-user_agent")
}

func TestDownloadNeedsCandidates(t *testing.T) {
	_, err := Download(context.Background(), Request{Title: "x", OutputDir: t.TempDir()})
	assert.Error(t, err)
}

func TestDownloadWithoutFFmpeg(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	_, err := Download(context.Background(), Request{Candidates: []string{"http://a/b.mp4"}, Title: "x", OutputDir: t.TempDir()})
	assert.ErrorContains(t, err, "ffmpeg not found")
}
