package downloader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	logx "marketbot/pkg/logx"
)

// ErrExtraction wraps any failure of the extraction engine: unreachable
// source, blocked download, unsupported format, or the binary itself missing.
var ErrExtraction = errors.New("video extraction failed")

// TempPrefix is the filename prefix of all download artifacts. The
// maintenance sweeper only ever touches files carrying this prefix.
const TempPrefix = "video_"

const defaultBinary = "yt-dlp"
const defaultTimeout = 10 * time.Minute

type Config struct {
	Binary  string
	Dir     string
	Timeout time.Duration
}

// Downloader shells out to yt-dlp. Each Extract call owns exactly one
// uniquely named output file; the caller is responsible for Remove()ing it
// on every exit path.
type Downloader struct {
	bin     string
	dir     string
	timeout time.Duration
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Downloader {
	bin := strings.TrimSpace(cfg.Binary)
	if bin == "" {
		bin = defaultBinary
	}
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		dir = "."
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Downloader{bin: bin, dir: dir, timeout: timeout, log: log}
}

func (d *Downloader) Dir() string { return d.dir }

// Extract downloads the media behind url into a uniquely named local file
// and returns its path. On failure it still returns any partial artifact
// path it can find, so the caller's cleanup removes it.
func (d *Downloader) Extract(ctx context.Context, url string) (string, error) {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	outTmpl := filepath.Join(d.dir, TempPrefix+id+".%(ext)s")

	runCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// --print after_move:filepath with --no-simulate makes yt-dlp both
	// download and report the final local path on stdout.
	cmd := exec.CommandContext(runCtx, d.bin,
		"--format", "mp4/best",
		"--no-playlist",
		"--quiet",
		"--no-warnings",
		"--no-progress",
		"--no-simulate",
		"--print", "after_move:filepath",
		"--output", outTmpl,
		url,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	took := time.Since(start)

	if err != nil {
		// Keep whatever partial file exists visible to the caller's cleanup.
		partial := d.findArtifact(id)
		d.log.Warn("extraction failed",
			logx.String("url", url),
			logx.Duration("took", took),
			logx.String("stderr", lastLine(stderr.String())),
			logx.Err(err),
		)
		return partial, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	path := lastLine(stdout.String())
	if path == "" {
		path = d.findArtifact(id)
	}
	if path == "" {
		return "", fmt.Errorf("%w: no output file produced", ErrExtraction)
	}
	if _, statErr := os.Stat(path); statErr != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, statErr)
	}

	d.log.Info("extraction done", logx.String("path", filepath.Base(path)), logx.Duration("took", took))
	return path, nil
}

// Remove deletes a download artifact. Best-effort: cleanup failures are
// logged at debug and otherwise swallowed.
func (d *Downloader) Remove(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		d.log.Debug("temp file cleanup failed", logx.String("path", path), logx.Err(err))
	}
}

// findArtifact resolves the produced file for one extraction id, whatever
// extension yt-dlp picked.
func (d *Downloader) findArtifact(id string) string {
	matches, err := filepath.Glob(filepath.Join(d.dir, TempPrefix+id+".*"))
	if err != nil || len(matches) == 0 {
		return ""
	}
	return matches[0]
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
