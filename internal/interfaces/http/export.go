package http

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/onecost/internal/domain/entity"
)

const (
	exportSheet     = "Solicitacoes"
	exportPageSize  = 500
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var exportHeader = []string{
	"ID", "NPJ", "Número do Processo", "Número da Solicitação", "Valor",
	"Data da Solicitação", "Status Portal", "Status Robô",
	"Última Verificação", "Comprovantes",
}

// buildExport writes one row per record under a bold header
func buildExport(records []*entity.Solicitacao) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	header := make([]interface{}, len(exportHeader))
	for i, h := range exportHeader {
		header[i] = h
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(exportHeader))
	_ = f.SetCellStyle(exportSheet, "A1", lastCol+"1", bold)

	for i, r := range records {
		row := []interface{}{
			r.ID,
			r.NPJ,
			deref(r.NumeroProcesso),
			r.NumeroSolicitacao,
			r.Valor.InexactFloat64(),
			r.DataSolicitacao,
			deref(r.StatusPortal),
			r.StatusRobo,
			"",
			strings.Join(r.ComprovantesPath, "\n"),
		}
		if r.UltimaVerificacaoRobo != nil {
			row[8] = r.UltimaVerificacaoRobo.Format("2006-01-02 15:04:05")
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", r.ID, err)
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 8)
	_ = f.SetColWidth(exportSheet, "B", lastCol, 22)
	return f, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
