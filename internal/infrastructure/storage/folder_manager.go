package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Placeholder replaces a name that sanitizes to nothing.
const Placeholder = "sem_nome"

var (
	currencyPrefixes = regexp.MustCompile(`(?:R|US|A|C)\$`)
	currencySymbols  = regexp.MustCompile(`\p{Sc}`)
	illegalChars     = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f\s]`)
	repeatedUnders   = regexp.MustCompile(`_+`)
)

// SanitizeName returns a filesystem-safe single path component:
// currency symbols are stripped, separators and illegal characters become
// underscores, underscore runs collapse and leading/trailing underscores
// and dots are trimmed.
func SanitizeName(name string) string {
	name = currencyPrefixes.ReplaceAllString(name, "")
	name = currencySymbols.ReplaceAllString(name, "")
	name = strings.TrimSpace(name)
	name = illegalChars.ReplaceAllString(name, "_")
	name = repeatedUnders.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_.")
	if name == "" {
		return Placeholder
	}
	return name
}

// FolderManager maintains one directory per NPJ under the artifacts root.
type FolderManager struct {
	baseDir string
	logger  *zap.Logger
}

// NewFolderManager creates a new FolderManager
func NewFolderManager(baseDir string, logger *zap.Logger) *FolderManager {
	return &FolderManager{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Ensure creates the NPJ directory if needed and returns its root-relative name.
func (m *FolderManager) Ensure(npj string) (string, error) {
	dir := SanitizeName(npj)
	full := filepath.Join(m.baseDir, dir)

	if err := os.MkdirAll(full, 0755); err != nil {
		m.logger.Error("Failed to create case folder",
			zap.String("npj", npj),
			zap.String("folder_path", full),
			zap.Error(err))
		return "", fmt.Errorf("failed to create folder: %w", err)
	}

	return dir, nil
}

// Path returns the absolute-or-base-relative directory for an NPJ without creating it.
func (m *FolderManager) Path(npj string) string {
	return filepath.Join(m.baseDir, SanitizeName(npj))
}
