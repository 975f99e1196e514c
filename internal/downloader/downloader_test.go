package downloader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	logx "marketbot/pkg/logx"
)

// writeStub drops a fake extraction binary that creates an output file from
// the --output template and prints its path, like yt-dlp with
// --print after_move:filepath.
func writeStub(t *testing.T, dir string, exitCode int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub binary test requires a POSIX shell")
	}
	script := `#!/bin/sh
out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "--output" ]; then out="$a"; fi
  prev="$a"
done
path=$(printf '%s' "$out" | sed 's/%(ext)s/mp4/')
: > "$path"
printf '%s\n' "$path"
exit ` + strconv.Itoa(exitCode) + `
`
	bin := filepath.Join(dir, "fake-yt-dlp")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	return bin
}

func TestExtractSuccess(t *testing.T) {
	dir := t.TempDir()
	d := New(Config{Binary: writeStub(t, dir, 0), Dir: dir}, logx.Nop())

	path, err := d.Extract(context.Background(), "https://example.com/video")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), TempPrefix) {
		t.Fatalf("artifact %q missing temp prefix", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}

	d.Remove(path)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("artifact not removed: %v", err)
	}
}

func TestExtractFailureReportsPartialArtifact(t *testing.T) {
	dir := t.TempDir()
	d := New(Config{Binary: writeStub(t, dir, 1), Dir: dir}, logx.Nop())

	path, err := d.Extract(context.Background(), "https://example.com/video")
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("Extract err = %v, want ErrExtraction", err)
	}
	// The stub wrote a partial file before failing; the caller needs its path
	// to clean up.
	if path == "" {
		t.Fatal("partial artifact path not reported")
	}
	if _, serr := os.Stat(path); serr != nil {
		t.Fatalf("reported partial artifact missing: %v", serr)
	}
}

func TestExtractMissingBinary(t *testing.T) {
	d := New(Config{Binary: filepath.Join(t.TempDir(), "nope"), Dir: t.TempDir()}, logx.Nop())
	if _, err := d.Extract(context.Background(), "https://example.com/video"); !errors.Is(err, ErrExtraction) {
		t.Fatalf("Extract err = %v, want ErrExtraction", err)
	}
}

func TestRemoveToleratesMissingAndEmptyPaths(t *testing.T) {
	d := New(Config{Dir: t.TempDir()}, logx.Nop())
	d.Remove("")
	d.Remove(filepath.Join(t.TempDir(), "never-existed.mp4"))
}

func TestLastLine(t *testing.T) {
	cases := []struct{ in, want string }{
		{"", ""},
		{"one", "one"},
		{"one\ntwo\n", "two"},
		{"  padded  \n final \n", "final"},
	}
	for _, tc := range cases {
		if got := lastLine(tc.in); got != tc.want {
			t.Fatalf("lastLine(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
