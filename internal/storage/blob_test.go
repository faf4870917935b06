package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalBackendRoundTrip(t *testing.T) {
	backend := NewLocalBackend(t.TempDir(), false)

	n, err := backend.Save("Ch/2024/video.mp4", strings.NewReader("media bytes"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if n != int64(len("media bytes")) {
		t.Errorf("Save returned %d bytes", n)
	}
	if !backend.Exists("Ch/2024/video.mp4") {
		t.Error("Saved blob should exist")
	}

	r, err := backend.Open("Ch/2024/video.mp4")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(r)
	r.Close()
	if string(data) != "media bytes" {
		t.Errorf("Read back %q", data)
	}

	if err := backend.Delete("Ch/2024/video.mp4"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if backend.Exists("Ch/2024/video.mp4") {
		t.Error("Deleted blob should be gone")
	}
	if err := backend.Delete("Ch/2024/video.mp4"); err != nil {
		t.Errorf("Deleting a missing blob should be a no-op: %v", err)
	}
}

func TestPublishHardlinks(t *testing.T) {
	cache := t.TempDir()
	src := filepath.Join(cache, "dl.mp4")
	if err := os.WriteFile(src, []byte("media"), 0o644); err != nil {
		t.Fatalf("Failed to write cache file: %v", err)
	}

	root := t.TempDir()
	backend := NewLocalBackend(root, true)
	size, err := Publish(backend, src, "Ch/video.mp4")
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if size != 5 {
		t.Errorf("Expected size 5, got %d", size)
	}

	srcInfo, _ := os.Stat(src)
	dstInfo, _ := os.Stat(filepath.Join(root, "Ch", "video.mp4"))
	if !os.SameFile(srcInfo, dstInfo) {
		t.Error("Hardlink publish should share the inode")
	}
}

func TestPublishFallsBackToCopy(t *testing.T) {
	cache := t.TempDir()
	src := filepath.Join(cache, "dl.mp4")
	if err := os.WriteFile(src, []byte("media"), 0o644); err != nil {
		t.Fatalf("Failed to write cache file: %v", err)
	}

	backend := NewLocalBackend(t.TempDir(), false)
	if _, err := Publish(backend, src, "Ch/video.mp4"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if !backend.Exists("Ch/video.mp4") {
		t.Error("Copy publish should create the blob")
	}
}

func TestPublishOverwritesExistingLink(t *testing.T) {
	cache := t.TempDir()
	src := filepath.Join(cache, "dl.mp4")
	os.WriteFile(src, []byte("new"), 0o644)

	root := t.TempDir()
	backend := NewLocalBackend(root, true)
	backend.Save("Ch/video.mp4", strings.NewReader("old"))

	if _, err := Publish(backend, src, "Ch/video.mp4"); err != nil {
		t.Fatalf("Republish failed: %v", err)
	}
	data, _ := os.ReadFile(filepath.Join(root, "Ch", "video.mp4"))
	if string(data) != "new" {
		t.Errorf("Republish should replace the blob, got %q", data)
	}
}
