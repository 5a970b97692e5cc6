package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		tag  string
		want Kind
	}{
		{Pendente, KindPending},
		{Processando, KindInProgress},
		{FinalizadoSucesso, KindTerminal},
		{FinalizadoSemArquivo, KindTerminal},
		{Arquivado, KindTerminal},
		{ErroCustaNaoEncontrada, KindError},
		{Timeout("pesquisa"), KindError},
		{Unexpected("PathError"), KindError},
		{"Qualquer coisa", KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.tag))
		})
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from string
		to   string
		want bool
	}{
		{"pending to in progress", Pendente, Processando, true},
		{"in progress to success", Processando, FinalizadoSucesso, true},
		{"in progress back to re-check", Processando, Pendente, true},
		{"in progress to error", Processando, ErroTabelaNaoEncontrada, true},
		{"error retried", ErroCustaNaoEncontrada, Processando, true},
		{"error reset", ErroCustaNaoEncontrada, Pendente, true},
		{"success is final", FinalizadoSucesso, Processando, false},
		{"success to pending rejected", FinalizadoSucesso, Pendente, false},
		{"success archived", FinalizadoSucesso, Arquivado, true},
		{"qualified success archived", FinalizadoSemArquivo, Arquivado, true},
		{"archived stays", Arquivado, Pendente, false},
		{"identical rewrite", FinalizadoSucesso, FinalizadoSucesso, true},
		{"unknown target", Pendente, "Outro", false},
		{"empty source", "", Processando, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestValidateTransition(t *testing.T) {
	err := ValidateTransition(FinalizadoSucesso, Pendente)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	assert.NoError(t, ValidateTransition(Pendente, FinalizadoSucesso))
}

func TestBuilders(t *testing.T) {
	assert.Equal(t, "Erro: Timeout (pesquisa)", Timeout("pesquisa"))
	assert.Equal(t, "Erro: Inesperado (PathError)", Unexpected("PathError"))
	assert.Equal(t, "Erro: Inesperado (desconhecido)", Unexpected(""))
	assert.True(t, IsTerminal(FinalizadoSemArquivo))
	assert.False(t, IsTerminal(Pendente))
}
