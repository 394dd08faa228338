package importer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// ErrUploadTooLarge is returned when an upload exceeds the configured limit.
var ErrUploadTooLarge = errors.New("upload exceeds size limit")

// StoredFile describes an upload persisted on disk.
type StoredFile struct {
	Path     string
	Checksum string
	Size     int64
}

// UploadStore persists uploads under a directory with generated names.
type UploadStore struct {
	dir      string
	maxBytes int64
}

// NewUploadStore builds the store. maxBytes <= 0 disables the size limit.
func NewUploadStore(dir string, maxBytes int64) *UploadStore {
	return &UploadStore{dir: dir, maxBytes: maxBytes}
}

// Save copies r to a new file keeping the extension of name, and returns
// the file's blake2b-256 checksum.
func (s *UploadStore) Save(name string, r io.Reader) (StoredFile, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return StoredFile{}, fmt.Errorf("importer: upload dir: %w", err)
	}
	path := filepath.Join(s.dir, uuid.NewString()+strings.ToLower(filepath.Ext(name)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return StoredFile{}, fmt.Errorf("importer: create upload: %w", err)
	}
	hash, _ := blake2b.New256(nil)
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	n, err := io.Copy(io.MultiWriter(f, hash), src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxBytes > 0 && n > s.maxBytes {
		err = ErrUploadTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return StoredFile{}, fmt.Errorf("importer: write upload: %w", err)
	}
	return StoredFile{Path: path, Checksum: hex.EncodeToString(hash.Sum(nil)), Size: n}, nil
}

// Open opens a stored upload for reading.
func (s *UploadStore) Open(path string) (*os.File, error) {
	return os.Open(path)
}

// Sweep removes stored uploads last modified before olderThan.
func (s *UploadStore) Sweep(olderThan time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("importer: sweep uploads: %w", err)
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(olderThan) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("importer: sweep uploads: %w", err)
		}
		removed++
	}
	return removed, nil
}
