package port

import (
	"context"

	"github.com/garyjia/onecost/internal/domain/entity"
)

// ArtifactStore persists captured documents under a per-NPJ directory of
// the artifacts root. Returned paths are relative to the root and use
// forward slashes.
type ArtifactStore interface {
	// SaveDocument writes content as <label>_<ref>_<request>_<amount>[_(n)]<ext>
	// in the NPJ directory. An existing file with the same name is replaced.
	SaveDocument(ctx context.Context, npj string, name DocumentName, content []byte) (string, error)

	// SaveScreenshot writes erro_<kind>_<recordID>_<unix>.png in the NPJ directory.
	SaveScreenshot(ctx context.Context, npj string, kind string, recordID int64, png []byte) (string, error)

	// FullPath resolves a root-relative path.
	FullPath(relativePath string) string
}

// DocumentName carries the raw parts of an artifact filename; the store
// sanitizes each part.
type DocumentName struct {
	Label             string
	CaseReference     string
	NumeroSolicitacao string
	Amount            string
	Extension         string
	// Occurrence counts artifacts sharing Label within one record;
	// values above 1 add the _(n) suffix.
	Occurrence int
}

// DocumentInspector validates captured artifacts. It never blocks a save.
type DocumentInspector interface {
	Inspect(ctx context.Context, doc *entity.CapturedDocument) (pages int, err error)
}
