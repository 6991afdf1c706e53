package services

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/CrowderSoup/begtask/config"
	"github.com/CrowderSoup/begtask/database"
)

const (
	BucketAvatars     = "avatars"
	BucketTaskImages  = "task-images"
	BucketAttachments = "attachments"
)

var (
	ErrUnknownBucket = errors.New("unknown storage bucket")
	ErrFileTooLarge  = errors.New("file too large")
	ErrNotAnImage    = errors.New("file is not an image")
)

var buckets = map[string]bool{
	BucketAvatars:     true,
	BucketTaskImages:  true,
	BucketAttachments: true,
}

// imageOnly buckets accept only these formats, recognized from the file's
// first bytes. The stored extension comes from the detected format.
var imageOnly = map[string]bool{
	BucketAvatars:    true,
	BucketTaskImages: true,
}

var imageExtensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// sniffLen is how much http.DetectContentType looks at.
const sniffLen = 512

// StoredFile describes an object written to a bucket.
type StoredFile struct {
	Bucket      string
	Name        string
	URL         string
	ContentType string
	Size        int64
}

// FileStorage keeps uploaded objects on the local disk, one directory per
// bucket, and hands out public URLs under BaseURL.
type FileStorage struct {
	dir     string
	baseURL string
	maxSize int64
}

func NewFileStorage(cfg config.StorageConfig) (*FileStorage, error) {
	for bucket := range buckets {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, bucket), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
	}
	return &FileStorage{
		dir:     cfg.Dir,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		maxSize: cfg.MaxSize,
	}, nil
}

// Dir is the root directory holding the buckets.
func (s *FileStorage) Dir() string {
	return s.dir
}

// Save writes r to the bucket under a fresh name. Images are checked by
// content and named after the detected format; other files keep the
// extension of filename.
func (s *FileStorage) Save(bucket, filename, contentType string, r io.Reader) (*StoredFile, error) {
	if !buckets[bucket] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBucket, bucket)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	head = head[:n]
	r = io.MultiReader(bytes.NewReader(head), r)

	ext := safeExt(filename)
	if imageOnly[bucket] {
		detected := http.DetectContentType(head)
		imageExt, ok := imageExtensions[detected]
		if !ok {
			return nil, ErrNotAnImage
		}
		contentType, ext = detected, imageExt
	}

	name := database.NewID() + ext
	target := filepath.Join(s.dir, bucket, name)

	f, err := os.Create(target)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	limit := s.maxSize
	if limit <= 0 {
		limit = 1 << 62
	}
	written, err := io.Copy(f, io.LimitReader(r, limit+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && written > limit {
		err = ErrFileTooLarge
	}
	if err != nil {
		_ = os.Remove(target)
		if errors.Is(err, ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &StoredFile{
		Bucket:      bucket,
		Name:        name,
		URL:         s.URL(bucket, name),
		ContentType: contentType,
		Size:        written,
	}, nil
}

// safeExt returns the lower-cased extension of filename when it is short and
// alphanumeric, and "" otherwise.
func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// URL is the public address of an object.
func (s *FileStorage) URL(bucket, name string) string {
	return s.baseURL + "/" + path.Join(bucket, name)
}

// Delete removes the object behind a URL produced by this storage. URLs from
// elsewhere are ignored.
func (s *FileStorage) Delete(url string) error {
	rest, ok := strings.CutPrefix(url, s.baseURL+"/")
	if !ok {
		return nil
	}
	bucket, name, ok := strings.Cut(rest, "/")
	if !ok || !buckets[bucket] || name != filepath.Base(name) {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dir, bucket, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
