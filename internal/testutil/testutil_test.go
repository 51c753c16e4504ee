package testutil

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestAssertNoError(t *testing.T) {
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	AssertError(t, errors.New("boom"))
}

func TestLoopbackRequest(t *testing.T) {
	req := LoopbackRequest(http.MethodGet, "/debug/gesture-status")
	if req.Method != http.MethodGet {
		t.Errorf("Method = %q", req.Method)
	}
	if req.URL.Path != "/debug/gesture-status" {
		t.Errorf("Path = %q", req.URL.Path)
	}
	if req.RemoteAddr != "127.0.0.1:12345" {
		t.Errorf("RemoteAddr = %q", req.RemoteAddr)
	}
}

func TestWriteTempFile(t *testing.T) {
	path := WriteTempFile(t, "cfg.json", `{"mismatch_budget": 3}`)
	if filepath.Base(path) != "cfg.json" {
		t.Errorf("path = %q", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != `{"mismatch_budget": 3}` {
		t.Errorf("content = %q", got)
	}
}
