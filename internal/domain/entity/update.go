package entity

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidUpdate is returned when a partial update violates field rules.
var ErrInvalidUpdate = errors.New("invalid update")

// SolicitacaoUpdate is the partial update pushed by the robot after
// processing a record. Each field follows its own null-ability rule:
//
//	status_robo             required when set, never null
//	status_portal           nullable
//	comprovantes_path       nullable; replaces the stored list
//	numero_processo         never null; only applied when the stored value is empty
//	usuario_confirmacao_id  nullable
type SolicitacaoUpdate struct {
	StatusRobo           Field[string]   `json:"status_robo"`
	StatusPortal         Field[string]   `json:"status_portal"`
	ComprovantesPath     Field[[]string] `json:"comprovantes_path"`
	NumeroProcesso       Field[string]   `json:"numero_processo"`
	UsuarioConfirmacaoID Field[int64]    `json:"usuario_confirmacao_id"`
}

// Validate checks the per-field null-ability rules.
func (u SolicitacaoUpdate) Validate() error {
	if u.StatusRobo.IsNull() {
		return fmt.Errorf("%w: status_robo cannot be null", ErrInvalidUpdate)
	}
	if v, ok := u.StatusRobo.Value(); ok && strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: status_robo cannot be empty", ErrInvalidUpdate)
	}
	if u.NumeroProcesso.IsNull() {
		return fmt.Errorf("%w: numero_processo cannot be cleared", ErrInvalidUpdate)
	}
	return nil
}

// Empty reports whether no field was provided.
func (u SolicitacaoUpdate) Empty() bool {
	return !u.StatusRobo.IsSet() &&
		!u.StatusPortal.IsSet() &&
		!u.ComprovantesPath.IsSet() &&
		!u.NumeroProcesso.IsSet() &&
		!u.UsuarioConfirmacaoID.IsSet()
}

// MarshalJSON emits only the fields that were set.
func (u SolicitacaoUpdate) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, 5)
	add := func(key string, set bool, m json.Marshaler) error {
		if !set {
			return nil
		}
		raw, err := m.MarshalJSON()
		if err != nil {
			return fmt.Errorf("marshal %s: %w", key, err)
		}
		out[key] = raw
		return nil
	}
	if err := add("status_robo", u.StatusRobo.IsSet(), u.StatusRobo); err != nil {
		return nil, err
	}
	if err := add("status_portal", u.StatusPortal.IsSet(), u.StatusPortal); err != nil {
		return nil, err
	}
	if err := add("comprovantes_path", u.ComprovantesPath.IsSet(), u.ComprovantesPath); err != nil {
		return nil, err
	}
	if err := add("numero_processo", u.NumeroProcesso.IsSet(), u.NumeroProcesso); err != nil {
		return nil, err
	}
	if err := add("usuario_confirmacao_id", u.UsuarioConfirmacaoID.IsSet(), u.UsuarioConfirmacaoID); err != nil {
		return nil, err
	}
	return json.Marshal(out)
}
