package bot

import "testing"

func TestIsURL(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"https://example.com/video", true},
		{"http://example.com", true},
		{"HTTPS://EXAMPLE.COM/V", true},
		{"  https://example.com  ", true},
		{"notaurl", false},
		{"ftp://example.com/file", false},
		{"https://", false},
		{"https:// example.com", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsURL(tc.in); got != tc.ok {
			t.Fatalf("IsURL(%q) = %v, want %v", tc.in, got, tc.ok)
		}
	}
}

func TestParseCommand(t *testing.T) {
	word, args, ok := parseCommand("/download https://example.com/video")
	if !ok || word != "download" {
		t.Fatalf("parseCommand = (%q, %v, %v)", word, args, ok)
	}
	if len(args) != 1 || args[0] != "https://example.com/video" {
		t.Fatalf("args = %v", args)
	}

	word, _, ok = parseCommand("/updates@MarketSnapshotBot 15m")
	if !ok || word != "updates" {
		t.Fatalf("group-suffixed command parsed as (%q, %v)", word, ok)
	}

	if _, _, ok := parseCommand("hello there"); ok {
		t.Fatal("plain text should not parse as a command")
	}
	if _, _, ok := parseCommand("/"); ok {
		t.Fatal("bare slash should not parse as a command")
	}
	if word, _, _ := parseCommand("/CRYPTO"); word != "crypto" {
		t.Fatalf("command word not lowercased: %q", word)
	}
}

func TestNewReqID(t *testing.T) {
	a, b := newReqID(), newReqID()
	if len(a) != 12 || len(b) != 12 {
		t.Fatalf("req id lengths = %d, %d", len(a), len(b))
	}
	if a == b {
		t.Fatal("req ids should be unique")
	}
}
