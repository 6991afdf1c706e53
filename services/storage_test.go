package services

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CrowderSoup/begtask/config"
)

const pngHeader = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"

func newTestStorage(t *testing.T, maxSize int64) *FileStorage {
	t.Helper()
	s, err := NewFileStorage(config.StorageConfig{Dir: t.TempDir(), BaseURL: "/files/", MaxSize: maxSize})
	if err != nil {
		t.Fatalf("new storage: %v", err)
	}
	return s
}

func TestStorageSaveAndDelete(t *testing.T) {
	s := newTestStorage(t, 1024)

	f, err := s.Save(BucketAttachments, "Relatorio.PDF", "application/pdf", strings.NewReader("conteudo"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if f.Size != int64(len("conteudo")) || !strings.HasSuffix(f.Name, ".pdf") {
		t.Fatalf("unexpected file %+v", f)
	}
	if f.URL != "/files/attachments/"+f.Name {
		t.Fatalf("url = %s", f.URL)
	}

	onDisk := filepath.Join(s.Dir(), BucketAttachments, f.Name)
	data, err := os.ReadFile(onDisk)
	if err != nil || string(data) != "conteudo" {
		t.Fatalf("read back: %q %v", data, err)
	}

	if err := s.Delete(f.URL); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := os.Stat(onDisk); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err = %v", err)
	}
	if err := s.Delete("https://elsewhere.example.com/x.png"); err != nil {
		t.Fatalf("foreign urls are ignored, got %v", err)
	}
	if err := s.Delete("/files/attachments/../../etc/passwd"); err != nil {
		t.Fatalf("traversal must be ignored, got %v", err)
	}
}

func TestStorageRejects(t *testing.T) {
	s := newTestStorage(t, 4)

	if _, err := s.Save("secrets", "a.txt", "text/plain", strings.NewReader("x")); !errors.Is(err, ErrUnknownBucket) {
		t.Fatalf("expected ErrUnknownBucket, got %v", err)
	}
	if _, err := s.Save(BucketAvatars, "a.txt", "text/plain", strings.NewReader("x")); !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage, got %v", err)
	}
	if _, err := s.Save(BucketTaskImages, "a.png", "image/png", strings.NewReader("<html>")); !errors.Is(err, ErrNotAnImage) {
		t.Fatalf("expected ErrNotAnImage for a page declared as png, got %v", err)
	}
	if _, err := s.Save(BucketTaskImages, "a.png", "image/png", strings.NewReader(pngHeader)); !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(s.Dir(), BucketTaskImages))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("oversized upload left %d files behind", len(entries))
	}
}

func TestStorageNamesFilesFromContent(t *testing.T) {
	s := newTestStorage(t, 1024)

	img, err := s.Save(BucketAvatars, "eu.html", "text/html", strings.NewReader(pngHeader))
	if err != nil {
		t.Fatalf("save image: %v", err)
	}
	if !strings.HasSuffix(img.Name, ".png") || img.ContentType != "image/png" {
		t.Fatalf("image stored as %q (%s)", img.Name, img.ContentType)
	}

	doc, err := s.Save(BucketAttachments, "notas.ht<m>l", "text/plain", strings.NewReader("oi"))
	if err != nil {
		t.Fatalf("save attachment: %v", err)
	}
	if strings.Contains(doc.Name, ".") {
		t.Fatalf("odd extension kept: %q", doc.Name)
	}
}
