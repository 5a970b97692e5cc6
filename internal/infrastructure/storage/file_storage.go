// internal/infrastructure/storage/file_storage.go
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/garyjia/onecost/internal/application/port"
	"go.uber.org/zap"
)

// LocalArtifactStore implements port.ArtifactStore for the local filesystem
type LocalArtifactStore struct {
	baseDir string
	folders *FolderManager
	now     func() time.Time
	logger  *zap.Logger
}

// NewLocalArtifactStore creates a new LocalArtifactStore rooted at baseDir
func NewLocalArtifactStore(baseDir string, logger *zap.Logger) *LocalArtifactStore {
	return &LocalArtifactStore{
		baseDir: baseDir,
		folders: NewFolderManager(baseDir, logger),
		now:     time.Now,
		logger:  logger,
	}
}

// DocumentFileName builds the deterministic artifact filename.
func DocumentFileName(name port.DocumentName) string {
	base := strings.Join([]string{
		SanitizeName(name.Label),
		SanitizeName(name.CaseReference),
		SanitizeName(name.NumeroSolicitacao),
		SanitizeName(name.Amount),
	}, "_")
	if name.Occurrence > 1 {
		base = fmt.Sprintf("%s_(%d)", base, name.Occurrence)
	}
	return base + normalizeExtension(name.Extension)
}

// SaveDocument implements port.ArtifactStore
func (s *LocalArtifactStore) SaveDocument(ctx context.Context, npj string, name port.DocumentName, content []byte) (string, error) {
	return s.write(npj, DocumentFileName(name), content)
}

// SaveScreenshot implements port.ArtifactStore
func (s *LocalArtifactStore) SaveScreenshot(ctx context.Context, npj string, kind string, recordID int64, png []byte) (string, error) {
	filename := fmt.Sprintf("erro_%s_%d_%d.png", SanitizeName(kind), recordID, s.now().Unix())
	return s.write(npj, filename, png)
}

// FullPath converts a root-relative path to a filesystem path
func (s *LocalArtifactStore) FullPath(relativePath string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(relativePath))
}

func (s *LocalArtifactStore) write(npj, filename string, content []byte) (string, error) {
	dir, err := s.folders.Ensure(npj)
	if err != nil {
		return "", err
	}

	rel := path.Join(dir, filename)
	fullPath := s.FullPath(rel)

	if err := s.validatePath(fullPath); err != nil {
		return "", err
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write artifact",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("Artifact saved",
		zap.String("path", rel),
		zap.Int("size", len(content)))

	return rel, nil
}

// validatePath checks that the path is within baseDir
func (s *LocalArtifactStore) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return fmt.Errorf("path escapes base directory: %s", fullPath)
	}

	return nil
}

func normalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ".pdf"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	clean := SanitizeName(strings.TrimPrefix(ext, "."))
	if clean == Placeholder {
		return ".pdf"
	}
	return "." + clean
}

var _ port.ArtifactStore = (*LocalArtifactStore)(nil)
