// Package download saves movies and episodes with ffmpeg.
// It uses exec.Command with explicit argument slices and validates
// output paths against directory traversal attacks.
package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"xtplay/internal/httputil"
	xlog "xtplay/internal/log"
)

// Request describes one download.
type Request struct {
	// Candidates are tried in order until ffmpeg succeeds with one.
	Candidates []string
	Title      string
	OutputDir  string
	UserAgent  string
}

// Download fetches the first working candidate into OutputDir and returns
// the file path.
func Download(ctx context.Context, req Request) (string, error) {
	if len(req.Candidates) == 0 {
		return "", errors.New("no stream URLs to download")
	}
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return "", fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}

	outputPath, err := OutputPath(req.OutputDir, req.Title)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	logger := xlog.WithComponent("download")
	var lastErr error
	for i, u := range req.Candidates {
		cmd := exec.CommandContext(ctx, ffmpegPath, ffmpegArgs(u, req.Title, req.UserAgent, outputPath)...)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		logger.Info().Int(xlog.FieldCandidate, i).Str(xlog.FieldURL, httputil.Redact(u)).Str("output", outputPath).Msg("downloading")
		if err := cmd.Run(); err != nil {
			// Clean up partial download on failure
			os.Remove(outputPath)
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		return outputPath, nil
	}
	return "", fmt.Errorf("ffmpeg download failed: %w", lastErr)
}

// OutputPath returns the sanitized .mkv path for title inside dir.
func OutputPath(dir, title string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	path, err := httputil.SafeDownloadPath(absDir, httputil.SanitizeFilename(title)+".mkv")
	if err != nil {
		return "", fmt.Errorf("invalid output path: %w", err)
	}
	return path, nil
}

func ffmpegArgs(src, title, userAgent, output string) []string {
	args := []string{"-y"} // overwrite output
	if userAgent != "" {
		args = append(args, "-user_agent", userAgent)
	}
	return append(args,
		"-i", src,
		"-map", "0",
		"-c", "copy", // no re-encoding
		"-metadata", "title="+title,
		output,
	)
}
