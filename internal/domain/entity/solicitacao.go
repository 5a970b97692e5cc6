package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Solicitacao is a reimbursement-cost request tracked by the backend and
// reconciled against the bank portal by the robot.
//
// NPJ + NumeroSolicitacao + Valor identify exactly one row in the portal's
// cost table: request numbers repeat across cases, and the amount acts as a
// disambiguator within one NPJ.
type Solicitacao struct {
	ID                int64           `json:"id"`
	NPJ               string          `json:"npj"`
	NumeroProcesso    *string         `json:"numero_processo"`
	NumeroSolicitacao string          `json:"numero_solicitacao"`
	Valor             decimal.Decimal `json:"valor"`
	DataSolicitacao   string          `json:"data_solicitacao"`

	AguardandoConfirmacao bool  `json:"aguardando_confirmacao"`
	UsuarioID             int64 `json:"usuario_id"`

	// Robot fields
	StatusPortal          *string    `json:"status_portal"`
	StatusRobo            string     `json:"status_robo"`
	UltimaVerificacaoRobo *time.Time `json:"ultima_verificacao_robo"`
	ComprovantesPath      []string   `json:"comprovantes_path"`
	UsuarioConfirmacaoID  *int64     `json:"usuario_confirmacao_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CaseReference returns the resolved process number, falling back to the NPJ
// when the portal has not exposed one yet.
func (s *Solicitacao) CaseReference() string {
	if s.NumeroProcesso != nil && *s.NumeroProcesso != "" {
		return *s.NumeroProcesso
	}
	return s.NPJ
}

// SolicitacaoCreate holds the user-provided fields of a new request.
type SolicitacaoCreate struct {
	NPJ                   string          `json:"npj" binding:"required"`
	NumeroProcesso        *string         `json:"numero_processo"`
	NumeroSolicitacao     string          `json:"numero_solicitacao" binding:"required"`
	Valor                 decimal.Decimal `json:"valor"`
	DataSolicitacao       string          `json:"data_solicitacao" binding:"required"`
	AguardandoConfirmacao *bool           `json:"aguardando_confirmacao"`
}

// SolicitacaoFilter selects requests by robot status.
// Include and Exclude are applied together when both are set.
type SolicitacaoFilter struct {
	StatusIn    []string
	StatusNotIn []string
	Skip        int
	Limit       int
}

// Initial values for freshly registered requests
const (
	InitialStatusPortal = "Aguardando Robô"
)
