package portal

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/garyjia/onecost/internal/domain/entity"
)

// DOM of the costs module
const (
	selSearchInput   = "#npj"
	selHomeMarker    = "#aPaginaInicial"
	selResultPane    = "div.tabs__pane.is-visible div[style*='overflow-y: auto']"
	selResultRow     = "tr[ng-repeat='item in $data']"
	selDetailButton  = "button[bb-tooltip='Detalhes']"
	selConfirmButton = "button[bb-tooltip='Despachar']"
	selAccordion     = "div.accordion__item"
	selAccordionHead = ".accordion__title"
	selReceiptLink   = "a[name='itensComprov']"
	selDocumentLink  = "a[name='itensDoc'], a[download], a[href*='download']"
	selLoading       = "div.loading, .bb-loading, .spinner"

	xpDetailHeading = `//h3[contains(normalize-space(.), 'Detalhar Custo')]`
	xpListHeading   = `//h3[contains(normalize-space(.), 'Solicitações de Custo')]`
	xpConfirmDialog = `//h3[contains(normalize-space(.), 'Despachar') or contains(normalize-space(.), 'Confirmar')]`

	accordionReceipts  = "Comprovantes"
	accordionDocuments = "Documentos"

	labelClear   = "Limpar"
	labelBack    = "Voltar"
	labelApprove = "Aprovar"
	labelSubmit  = "Confirmar"
	labelAccess  = "ACESSAR"

	ssoPlaceholder = "Digite ou selecione um sistema pra acessar"
	ssoMenuItem    = `div[role="menuitem"]:not([disabled])`

	minRowCells = 8
)

// cnjPattern matches the unified process number shown in the detail view.
var cnjPattern = regexp.MustCompile(`\d{7}-\d{2}\.\d{4}\.\d\.\d{2}\.\d{4}`)

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// scriptReadRows returns [{index, cells}] for every rendered result row, or
// null when the result pane is absent.
func scriptReadRows() string {
	return fmt.Sprintf(`(() => {
	const pane = document.querySelector(%s);
	if (!pane) return null;
	return Array.from(pane.querySelectorAll(%s)).map((tr, i) => ({
		index: i,
		cells: Array.from(tr.querySelectorAll('td')).map(td => (td.textContent || '').trim())
	}));
})()`, jsString(selResultPane), jsString(selResultRow))
}

// scriptClickInRow clicks the first element matching sel inside row index.
func scriptClickInRow(index int, sel string) string {
	return fmt.Sprintf(`(() => {
	const pane = document.querySelector(%s);
	if (!pane) return false;
	const row = pane.querySelectorAll(%s)[%d];
	if (!row) return false;
	row.scrollIntoView({block: 'center'});
	const el = row.querySelector(%s);
	if (!el) return false;
	el.click();
	return true;
})()`, jsString(selResultPane), jsString(selResultRow), index, jsString(sel))
}

// scriptClickByText clicks the first visible element matching sel whose
// trimmed text contains text (case-insensitive).
func scriptClickByText(sel, text string) string {
	return fmt.Sprintf(`(() => {
	const want = %s.toLowerCase();
	const el = Array.from(document.querySelectorAll(%s)).find(e =>
		e.offsetParent !== null && (e.textContent || '').trim().toLowerCase().includes(want));
	if (!el) return false;
	el.click();
	return true;
})()`, jsString(text), jsString(sel))
}

// scriptOpenAccordion expands the accordion titled title and reports
// whether it exists.
func scriptOpenAccordion(title string) string {
	return fmt.Sprintf(`(() => {
	const item = Array.from(document.querySelectorAll(%s)).find(e => (e.textContent || '').includes(%s));
	if (!item) return false;
	if (!item.classList.contains('is-open')) {
		const head = item.querySelector(%s);
		if (head) head.click();
	}
	return true;
})()`, jsString(selAccordion), jsString(title), jsString(selAccordionHead))
}

// scriptAccordionLinks lists the trimmed labels of links matching sel in the
// accordion titled title.
func scriptAccordionLinks(title, sel string) string {
	return fmt.Sprintf(`(() => {
	const item = Array.from(document.querySelectorAll(%s)).find(e => (e.textContent || '').includes(%s));
	if (!item) return [];
	return Array.from(item.querySelectorAll(%s)).map(a => (a.textContent || a.getAttribute('title') || '').trim());
})()`, jsString(selAccordion), jsString(title), jsString(sel))
}

// scriptClickAccordionLink clicks link index of sel in the accordion titled title.
func scriptClickAccordionLink(title, sel string, index int) string {
	return fmt.Sprintf(`(() => {
	const item = Array.from(document.querySelectorAll(%s)).find(e => (e.textContent || '').includes(%s));
	if (!item) return false;
	const link = item.querySelectorAll(%s)[%d];
	if (!link) return false;
	link.scrollIntoView({block: 'center'});
	link.click();
	return true;
})()`, jsString(selAccordion), jsString(title), jsString(sel), index)
}

// scriptSelectOption checks the radio whose label contains text.
func scriptSelectOption(text string) string {
	return fmt.Sprintf(`(() => {
	const want = %s.toLowerCase();
	const label = Array.from(document.querySelectorAll('label')).find(l =>
		(l.textContent || '').trim().toLowerCase().includes(want));
	if (!label) return false;
	const input = label.control || label.querySelector('input');
	(input || label).click();
	return true;
})()`, jsString(text))
}

const scriptDetailText = `(() => {
	const h = Array.from(document.querySelectorAll('h3')).find(e => (e.textContent || '').includes('Detalhar Custo'));
	const root = h ? (h.closest('section, form, div.card, div.container') || document.body) : document.body;
	return root.innerText || '';
})()`

type rawRow struct {
	Index int      `json:"index"`
	Cells []string `json:"cells"`
}

// parseRows maps raw cell texts onto portal rows. Rows with an unexpected
// layout are skipped.
func parseRows(raw []rawRow) []entity.PortalRow {
	rows := make([]entity.PortalRow, 0, len(raw))
	for _, r := range raw {
		if len(r.Cells) < minRowCells {
			continue
		}
		rows = append(rows, entity.PortalRow{
			Index:             r.Index,
			NumeroSolicitacao: strings.TrimSpace(r.Cells[1]),
			Especificacao:     strings.TrimSpace(r.Cells[3]),
			Situacao:          strings.TrimSpace(r.Cells[4]),
			ValorTexto:        strings.TrimSpace(r.Cells[6]),
		})
	}
	return rows
}

// extractCaseReference returns the first unified process number in text.
func extractCaseReference(text string) string {
	return cnjPattern.FindString(text)
}

func documentLinks(kind entity.DocumentKind, labels []string) []entity.DocumentLink {
	links := make([]entity.DocumentLink, 0, len(labels))
	for i, label := range labels {
		links = append(links, entity.DocumentLink{Kind: kind, Index: i, Label: label})
	}
	return links
}
