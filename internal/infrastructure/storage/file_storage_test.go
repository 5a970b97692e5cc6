package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/onecost/internal/application/port"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDocumentFileName(t *testing.T) {
	name := port.DocumentName{
		Label:             "comprovante_1",
		CaseReference:     "2023/0001",
		NumeroSolicitacao: "55",
		Amount:            "R$ 120,00",
		Extension:         ".pdf",
	}
	assert.Equal(t, "comprovante_1_2023_0001_55_120,00.pdf", DocumentFileName(name))

	name.Occurrence = 2
	assert.Equal(t, "comprovante_1_2023_0001_55_120,00_(2).pdf", DocumentFileName(name))

	name.Occurrence = 0
	name.Extension = "PNG"
	assert.Equal(t, "comprovante_1_2023_0001_55_120,00.png", DocumentFileName(name))

	name.Extension = ""
	assert.Equal(t, "comprovante_1_2023_0001_55_120,00.pdf", DocumentFileName(name))
}

func TestLocalArtifactStore_SaveDocument(t *testing.T) {
	tempDir := t.TempDir()
	store := NewLocalArtifactStore(tempDir, zap.NewNop())
	ctx := context.Background()

	t.Run("writes under the npj folder", func(t *testing.T) {
		rel, err := store.SaveDocument(ctx, "2023/0001", port.DocumentName{
			Label:             "Guia de Custas",
			CaseReference:     "2023/0001",
			NumeroSolicitacao: "55",
			Amount:            "R$ 120,00",
			Extension:         ".pdf",
		}, []byte("%PDF-1.4"))

		require.NoError(t, err)
		assert.Equal(t, "2023_0001/Guia_de_Custas_2023_0001_55_120,00.pdf", rel)

		content, err := os.ReadFile(store.FullPath(rel))
		require.NoError(t, err)
		assert.Equal(t, []byte("%PDF-1.4"), content)
	})

	t.Run("overwrites same name", func(t *testing.T) {
		name := port.DocumentName{Label: "x", CaseReference: "r", NumeroSolicitacao: "1", Amount: "1,00"}
		_, err := store.SaveDocument(ctx, "npj", name, []byte("one"))
		require.NoError(t, err)
		rel, err := store.SaveDocument(ctx, "npj", name, []byte("two"))
		require.NoError(t, err)

		content, _ := os.ReadFile(store.FullPath(rel))
		assert.Equal(t, []byte("two"), content)
	})

	t.Run("traversal npj is contained", func(t *testing.T) {
		rel, err := store.SaveDocument(ctx, "../../etc", port.DocumentName{Label: "a"}, []byte("x"))
		require.NoError(t, err)
		assert.FileExists(t, filepath.Join(tempDir, filepath.FromSlash(rel)))
	})
}

func TestLocalArtifactStore_SaveScreenshot(t *testing.T) {
	tempDir := t.TempDir()
	store := NewLocalArtifactStore(tempDir, zap.NewNop())
	store.now = func() time.Time { return time.Unix(1700000000, 0) }

	rel, err := store.SaveScreenshot(context.Background(), "2023/0001", "inesperado", 42, []byte{0x89, 'P', 'N', 'G'})

	require.NoError(t, err)
	assert.Equal(t, "2023_0001/erro_inesperado_42_1700000000.png", rel)
	assert.FileExists(t, filepath.Join(tempDir, "2023_0001", "erro_inesperado_42_1700000000.png"))
}
