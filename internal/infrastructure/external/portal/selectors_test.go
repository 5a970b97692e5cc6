package portal

import (
	"testing"

	"github.com/garyjia/onecost/internal/domain/entity"
	"github.com/stretchr/testify/assert"
)

func TestParseRows(t *testing.T) {
	raw := []rawRow{
		{Index: 0, Cells: []string{"", " 2024/0001 ", "x", "Custas iniciais", "Aguardando confirmação", "", "R$ 1.234,56", ""}},
		{Index: 1, Cells: []string{"", "2024/0002"}},
		{Index: 2, Cells: []string{"", "2024/0003", "", "Preparo", "Liquidado", "", "100,00", "", "extra"}},
	}

	rows := parseRows(raw)

	assert.Equal(t, []entity.PortalRow{
		{Index: 0, NumeroSolicitacao: "2024/0001", Especificacao: "Custas iniciais", Situacao: "Aguardando confirmação", ValorTexto: "R$ 1.234,56"},
		{Index: 2, NumeroSolicitacao: "2024/0003", Especificacao: "Preparo", Situacao: "Liquidado", ValorTexto: "100,00"},
	}, rows)
}

func TestParseRows_Empty(t *testing.T) {
	assert.Empty(t, parseRows(nil))
}

func TestExtractCaseReference(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"present", "Processo: 0801234-56.2023.8.15.2001 Comarca X", "0801234-56.2023.8.15.2001"},
		{"first wins", "1111111-11.2020.1.01.0001 e 2222222-22.2021.2.02.0002", "1111111-11.2020.1.01.0001"},
		{"absent", "Sem número de processo", ""},
		{"malformed", "080123-56.2023.8.15.2001", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractCaseReference(tt.text))
		})
	}
}

func TestJSStringEscapes(t *testing.T) {
	assert.Equal(t, `"it's \"quoted\""`, jsString(`it's "quoted"`))
	assert.Contains(t, scriptClickByText("button", "Limpar"), `"Limpar"`)
	assert.Contains(t, scriptClickInRow(3, selDetailButton), "[3]")
}

func TestDocumentLinks(t *testing.T) {
	links := documentLinks(entity.DocumentReceipt, []string{"Guia", "Guia"})

	assert.Equal(t, []entity.DocumentLink{
		{Kind: entity.DocumentReceipt, Index: 0, Label: "Guia"},
		{Kind: entity.DocumentReceipt, Index: 1, Label: "Guia"},
	}, links)
}
