package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"npj with slash", "2023/0001", "2023_0001"},
		{"currency amount", "R$ 120,00", "120,00"},
		{"dollar amount", "US$ 1.000,00", "1.000,00"},
		{"label with spaces", "Guia de Custas", "Guia_de_Custas"},
		{"illegal characters", `a\b:c*d?e"f<g>h|i`, "a_b_c_d_e_f_g_h_i"},
		{"collapse runs", "a//\\\\b", "a_b"},
		{"trim edges", "/abc/", "abc"},
		{"all illegal", `/\:*?"<>|`, Placeholder},
		{"empty", "", Placeholder},
		{"only currency", "R$", Placeholder},
		{"dot traversal", "..", Placeholder},
		{"accents kept", "Petição Inicial", "Petição_Inicial"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeName(tt.input))
		})
	}
}

func TestSanitizeName_NeverLeaksIllegalCharacters(t *testing.T) {
	inputs := []string{
		`x/y\z`, `::a::`, `"quoted"`, `<tag>`, `pipe|pipe`, `what?*`, `__a__b__`, `_/_\_`,
	}

	for _, in := range inputs {
		out := SanitizeName(in)
		assert.NotEmpty(t, out)
		assert.False(t, strings.ContainsAny(out, `/\:*?"<>|`), "%q -> %q", in, out)
		assert.NotContains(t, out, "__", "%q -> %q", in, out)
	}
}

func TestFolderManager_Ensure(t *testing.T) {
	tempDir := t.TempDir()
	fm := NewFolderManager(tempDir, zap.NewNop())

	dir, err := fm.Ensure("2023/0001")
	require.NoError(t, err)
	assert.Equal(t, "2023_0001", dir)

	info, err := os.Stat(filepath.Join(tempDir, "2023_0001"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// idempotent
	_, err = fm.Ensure("2023/0001")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tempDir, "2023_0001"), fm.Path("2023/0001"))
}
