// Package status defines the robot-facing lifecycle of a cost request
// (status_robo) and which transitions between tags are allowed.
package status

import (
	"errors"
	"fmt"
	"strings"
)

// Robot status tags
const (
	Pendente             = "Pendente"
	Processando          = "Processando"
	FinalizadoSucesso    = "Finalizado com Sucesso"
	FinalizadoSemArquivo = "Finalizado (Sem Comprovantes)"
	Arquivado            = "Arquivado"

	ErrorPrefix = "Erro"

	ErroTabelaNaoEncontrada     = "Erro: Tabela de custos não encontrada"
	ErroCustaNaoEncontrada      = "Erro: Custa específica não encontrada"
	ErroConfirmacaoSemLinha     = "Erro: Falha na Confirmação (custa não encontrada após envio)"
	ErroConfirmacaoNaoAlterada  = "Erro: Falha na Confirmação (status não alterado)"
	ErroConfirmacaoNaoConcluida = "Erro: Falha na Confirmação (envio não concluído)"
	erroTimeoutTemplate         = "Erro: Timeout (%s)"
	erroInesperadoTemplate      = "Erro: Inesperado (%s)"
)

// ErrInvalidTransition is returned when a status change is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// Kind groups tags by lifecycle position.
type Kind int

const (
	KindUnknown Kind = iota
	KindPending
	KindInProgress
	KindError
	KindTerminal
)

var terminal = map[string]bool{
	FinalizadoSucesso:    true,
	FinalizadoSemArquivo: true,
	Arquivado:            true,
}

// Terminal returns the tags that end the robot's interest in a record.
func Terminal() []string {
	return []string{FinalizadoSucesso, FinalizadoSemArquivo, Arquivado}
}

// Classify returns the lifecycle kind of a tag.
func Classify(tag string) Kind {
	switch {
	case tag == Pendente:
		return KindPending
	case tag == Processando:
		return KindInProgress
	case terminal[tag]:
		return KindTerminal
	case IsError(tag):
		return KindError
	default:
		return KindUnknown
	}
}

// IsError reports whether tag is an error-tagged status.
func IsError(tag string) bool {
	return strings.HasPrefix(tag, ErrorPrefix)
}

// IsTerminal reports whether tag is final.
func IsTerminal(tag string) bool {
	return terminal[tag]
}

// Timeout builds the status for a UI wait that expired during op.
func Timeout(op string) string {
	return fmt.Sprintf(erroTimeoutTemplate, op)
}

// Unexpected builds the status for an unclassified failure.
func Unexpected(typeName string) string {
	if typeName == "" {
		typeName = "desconhecido"
	}
	return fmt.Sprintf(erroInesperadoTemplate, typeName)
}

// CanTransition reports whether from -> to is allowed.
// Terminal tags only move to Arquivado; error tags move back into the
// pipeline (Processando) or are reset to Pendente.
func CanTransition(from, to string) bool {
	if from == to || from == "" {
		return true
	}
	toKind := Classify(to)
	if toKind == KindUnknown {
		return false
	}
	switch Classify(from) {
	case KindTerminal:
		return to == Arquivado && from != Arquivado
	case KindError:
		return toKind == KindInProgress || toKind == KindPending || toKind == KindError || to == Arquivado
	case KindPending, KindInProgress, KindUnknown:
		return true
	}
	return false
}

// ValidateTransition wraps CanTransition with a descriptive error.
func ValidateTransition(from, to string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %q -> %q", ErrInvalidTransition, from, to)
	}
	return nil
}
