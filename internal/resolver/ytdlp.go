package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// YtDlp resolves URLs and search queries by shelling out to the yt-dlp
// binary.
type YtDlp struct {
	binary      string
	downloadDir string
	log         *logrus.Entry
}

// NewYtDlp creates a yt-dlp backed resolver writing into downloadDir.
func NewYtDlp(binary, downloadDir string, log *logrus.Entry) *YtDlp {
	return &YtDlp{
		binary:      binary,
		downloadDir: downloadDir,
		log:         log,
	}
}

// metadata is the subset of yt-dlp's --print-json output we consume.
type metadata struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Uploader  string  `json:"uploader"`
	Artist    string  `json:"artist"`
	Duration  float64 `json:"duration"`
	Thumbnail string  `json:"thumbnail"`
	Ext       string  `json:"ext"`
}

// Resolve downloads urlOrQuery and returns the local file. Free text (no
// scheme) is turned into a search.
func (r *YtDlp) Resolve(ctx context.Context, urlOrQuery string, onProgress func(Progress)) (*Result, error) {
	if err := os.MkdirAll(r.downloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	target := urlOrQuery
	if !strings.Contains(urlOrQuery, "://") {
		target = "ytsearch1:" + urlOrQuery
	}

	report(onProgress, Progress{Percent: 0, Status: "preparing"})

	outTemplate := filepath.Join(r.downloadDir, "%(id)s.%(ext)s")
	args := []string{
		"--no-playlist",
		"--no-progress",
		"--print-json",
		"-f", "bestaudio/best",
		"-x", "--audio-format", "mp3",
		"-o", outTemplate,
		target,
	}

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	report(onProgress, Progress{Percent: 10, Status: "downloading"})

	if err := cmd.Run(); err != nil {
		return nil, classifyOutput(stderr.String(), err)
	}

	var meta metadata
	if err := json.Unmarshal(firstLine(stdout.Bytes()), &meta); err != nil {
		return nil, fmt.Errorf("parse yt-dlp metadata: %w", err)
	}

	// --audio-format mp3 re-muxes after download, so the reported ext may
	// not match the file on disk.
	filePath := filepath.Join(r.downloadDir, meta.ID+".mp3")
	if _, err := os.Stat(filePath); err != nil {
		filePath = filepath.Join(r.downloadDir, meta.ID+"."+meta.Ext)
		if _, err := os.Stat(filePath); err != nil {
			return nil, fmt.Errorf("downloaded file missing: %w", ErrNotFound)
		}
	}

	artist := meta.Artist
	if artist == "" {
		artist = meta.Uploader
	}

	report(onProgress, Progress{Percent: 100, Status: "ready"})
	r.log.WithFields(logrus.Fields{"url": urlOrQuery, "file": filePath}).Debug("resolved")

	return &Result{
		FilePath:      filePath,
		Title:         meta.Title,
		Artist:        artist,
		ThumbnailPath: meta.Thumbnail,
		Duration:      time.Duration(meta.Duration * float64(time.Second)),
	}, nil
}

func report(onProgress func(Progress), p Progress) {
	if onProgress != nil {
		onProgress(p)
	}
}

func firstLine(b []byte) []byte {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[:i]
	}
	return b
}

// classifyOutput maps yt-dlp stderr content onto the classified errors.
func classifyOutput(stderr string, err error) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "429") || strings.Contains(lower, "rate-limit") || strings.Contains(lower, "too many requests"):
		return fmt.Errorf("yt-dlp: %s: %w", strings.TrimSpace(firstStderrLine(stderr)), ErrRateLimited)
	case strings.Contains(lower, "404") || strings.Contains(lower, "not available") || strings.Contains(lower, "no video results"):
		return fmt.Errorf("yt-dlp: %s: %w", strings.TrimSpace(firstStderrLine(stderr)), ErrNotFound)
	default:
		return fmt.Errorf("yt-dlp: %v: %s", err, strings.TrimSpace(firstStderrLine(stderr)))
	}
}

func firstStderrLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			return line
		}
	}
	return s
}
