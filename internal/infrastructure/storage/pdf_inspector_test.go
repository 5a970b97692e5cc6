package storage

import (
	"context"
	"testing"

	"github.com/garyjia/onecost/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestPDFInspector_Inspect(t *testing.T) {
	inspector := NewPDFInspector(zap.NewNop())
	ctx := context.Background()

	t.Run("empty document", func(t *testing.T) {
		_, err := inspector.Inspect(ctx, &entity.CapturedDocument{Extension: ".pdf"})
		assert.Error(t, err)
	})

	t.Run("non pdf is skipped", func(t *testing.T) {
		pages, err := inspector.Inspect(ctx, &entity.CapturedDocument{Content: []byte("x"), Extension: ".png"})
		assert.NoError(t, err)
		assert.Equal(t, 0, pages)
	})

	t.Run("garbage pdf is reported", func(t *testing.T) {
		_, err := inspector.Inspect(ctx, &entity.CapturedDocument{Content: []byte("not a pdf"), Extension: ".pdf"})
		assert.Error(t, err)
	})
}
