// Package attach stages attachment bytes on local disk while they move
// between organizations.
// Files live under staging_dir/workitems/<source_id>/<sanitized filename>
package attach

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lherron/orgsync/internal/paths"
)

// Config holds attachment staging configuration.
type Config struct {
	StagingDir string // Base directory for staged files
	MaxMB      int64  // Maximum attachment size in MB (0 = unlimited)
}

// Staged describes a file written to the staging area.
type Staged struct {
	Path      string
	Filename  string
	MimeType  string
	SizeBytes int64
	Checksum  string
}

// ItemDir returns the staging directory for one source work item.
// Path: staging_dir/workitems/<source_id>
func ItemDir(stagingDir string, sourceID int) string {
	return filepath.Join(stagingDir, "workitems", strconv.Itoa(sourceID))
}

// Stage copies r into the staging area under a sanitized version of name.
// The copy is aborted, and the partial file removed, once it exceeds MaxMB.
func Stage(cfg Config, sourceID int, name string, r io.Reader) (*Staged, error) {
	filename := paths.SanitizeFilename(name, paths.MaxFilenameLen)
	dir := ItemDir(cfg.StagingDir, sourceID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	dst := filepath.Join(dir, filename)
	f, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file: %w", err)
	}

	src := r
	if cfg.MaxMB > 0 {
		src = io.LimitReader(r, cfg.MaxMB*1024*1024+1)
	}

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hasher), src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = ValidateSize(size, cfg.MaxMB)
	}
	if err != nil {
		_ = os.Remove(dst)
		return nil, fmt.Errorf("failed to stage %s: %w", filename, err)
	}

	return &Staged{
		Path:      dst,
		Filename:  filename,
		MimeType:  DetectMimeType(filename),
		SizeBytes: size,
		Checksum:  hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// Open opens the staged file for reading.
func (s *Staged) Open() (*os.File, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open staged file: %w", err)
	}
	return f, nil
}

// Remove deletes the staged file.
func (s *Staged) Remove() error {
	if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete staged file: %w", err)
	}
	return nil
}

// DetectMimeType attempts to detect MIME type from filename extension.
// Falls back to application/octet-stream if unknown.
func DetectMimeType(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return "application/octet-stream"
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}

	// Strip parameters like charset
	if idx := strings.IndexByte(mimeType, ';'); idx != -1 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}

	return mimeType
}

// ValidateSize checks if file size is within limits.
func ValidateSize(size int64, maxMB int64) error {
	if maxMB <= 0 {
		return nil // No limit
	}

	maxBytes := maxMB * 1024 * 1024
	if size > maxBytes {
		return fmt.Errorf("attachment size exceeds limit of %d MB", maxMB)
	}

	return nil
}

// DeleteItemDir removes the staging directory of one source work item.
func DeleteItemDir(stagingDir string, sourceID int) error {
	dir := ItemDir(stagingDir, sourceID)
	if err := os.RemoveAll(dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete staging directory: %w", err)
	}
	return nil
}
