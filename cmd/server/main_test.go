package main

import (
	"path/filepath"
	"testing"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("MAZEPLAN_TEST_BOOL", "true")
	t.Setenv("MAZEPLAN_TEST_BAD", "maybe")
	t.Setenv("MAZEPLAN_TEST_STR", "  :9090 ")
	if !envBool("MAZEPLAN_TEST_BOOL", false) {
		t.Fatalf("expected true")
	}
	if envBool("MAZEPLAN_TEST_BAD", false) {
		t.Fatalf("unparseable value should fall back to default")
	}
	if got := envString("MAZEPLAN_TEST_STR", ":8080"); got != ":9090" {
		t.Fatalf("envString=%q", got)
	}
	if got := envString("MAZEPLAN_TEST_UNSET", ":8080"); got != ":8080" {
		t.Fatalf("envString default=%q", got)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:5000":     true,
		"10.0.0.2:5000":  false,
		"garbage":        false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want=%v", addr, got, want)
		}
	}
}

func TestOpenRuntimeIndex(t *testing.T) {
	dir := t.TempDir()
	idx, err := openRuntimeIndex(dir, true)
	if err != nil || idx != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}

	t.Setenv("MAZEPLAN_INDEX_BACKEND", "bogus")
	if _, err := openRuntimeIndex(dir, false); err == nil {
		t.Fatalf("expected unsupported backend error")
	}

	t.Setenv("MAZEPLAN_INDEX_BACKEND", "")
	idx, err = openRuntimeIndex(filepath.Join(dir, "data"), false)
	if err != nil || idx == nil {
		t.Fatalf("sqlite: idx=%v err=%v", idx, err)
	}
	_ = idx.Close()
}
