package entity

// PortalRow is a read-only projection of one line of the portal's cost
// table. It only lives while a single record is being processed.
type PortalRow struct {
	Index             int    `json:"index"`
	NumeroSolicitacao string `json:"numero_solicitacao"`
	Especificacao     string `json:"especificacao"`
	Situacao          string `json:"situacao"`
	ValorTexto        string `json:"valor_texto"`
}

// DocumentKind distinguishes the two artifact triggers of the detail view.
type DocumentKind string

const (
	DocumentReceipt     DocumentKind = "comprovante"
	DocumentOriginating DocumentKind = "documento"
)

// DocumentLink is one artifact trigger found in the detail view.
// Index is the position among triggers of the same kind.
type DocumentLink struct {
	Kind  DocumentKind `json:"kind"`
	Index int          `json:"index"`
	Label string       `json:"label"`
}

// CapturedDocument is the raw artifact produced by a trigger, either a
// printed popup tab or a browser download.
type CapturedDocument struct {
	Content   []byte
	Extension string // with leading dot, e.g. ".pdf"
	Source    string // "popup" or "download"
}
