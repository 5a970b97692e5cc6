package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/onecost/internal/application/port"
	"github.com/garyjia/onecost/internal/domain/entity"
	"github.com/garyjia/onecost/internal/domain/status"
	"github.com/garyjia/onecost/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

const solicitacaoColumns = `id, npj, numero_processo, numero_solicitacao, valor, data_solicitacao,
	aguardando_confirmacao, usuario_id, status_portal, status_robo, ultima_verificacao_robo,
	comprovantes_path, usuario_confirmacao_id, created_at, updated_at`

// SolicitacaoRepository implements port.SolicitacaoRepository on SQLite
type SolicitacaoRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewSolicitacaoRepository creates a new solicitacao repository
func NewSolicitacaoRepository(db *sql.DB, logger *zap.Logger) *SolicitacaoRepository {
	return &SolicitacaoRepository{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts s and fills its ID and timestamps
func (r *SolicitacaoRepository) Create(ctx context.Context, s *entity.Solicitacao) error {
	paths, err := encodePaths(s.ComprovantesPath)
	if err != nil {
		return err
	}
	now := r.now()

	query := `
		INSERT INTO solicitacoes (
			npj, numero_processo, numero_solicitacao, valor, data_solicitacao,
			aguardando_confirmacao, usuario_id, status_portal, status_robo,
			ultima_verificacao_robo, comprovantes_path, usuario_confirmacao_id,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		s.NPJ,
		nullString(s.NumeroProcesso),
		s.NumeroSolicitacao,
		s.Valor.StringFixed(2),
		s.DataSolicitacao,
		s.AguardandoConfirmacao,
		s.UsuarioID,
		nullString(s.StatusPortal),
		s.StatusRobo,
		nullTime(s.UltimaVerificacaoRobo),
		paths,
		nullInt64(s.UsuarioConfirmacaoID),
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create solicitacao",
			zap.String("npj", s.NPJ),
			zap.String("numero_solicitacao", s.NumeroSolicitacao),
			zap.Error(err))
		return fmt.Errorf("failed to create solicitacao: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	s.ID = id
	s.CreatedAt = now
	s.UpdatedAt = now
	return nil
}

// GetByID returns nil, nil when no record has id
func (r *SolicitacaoRepository) GetByID(ctx context.Context, id int64) (*entity.Solicitacao, error) {
	query := `SELECT ` + solicitacaoColumns + ` FROM solicitacoes WHERE id = ?`

	s, err := scanSolicitacao(sqlite.Conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get solicitacao", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get solicitacao: %w", err)
	}
	return s, nil
}

// List returns the records matching filter ordered by id
func (r *SolicitacaoRepository) List(ctx context.Context, filter entity.SolicitacaoFilter) ([]*entity.Solicitacao, error) {
	var (
		where []string
		args  []interface{}
	)
	if len(filter.StatusIn) > 0 {
		where = append(where, "status_robo IN ("+placeholders(len(filter.StatusIn))+")")
		for _, st := range filter.StatusIn {
			args = append(args, st)
		}
	}
	if len(filter.StatusNotIn) > 0 {
		where = append(where, "status_robo NOT IN ("+placeholders(len(filter.StatusNotIn))+")")
		for _, st := range filter.StatusNotIn {
			args = append(args, st)
		}
	}

	query := `SELECT ` + solicitacaoColumns + ` FROM solicitacoes`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id LIMIT ? OFFSET ?"
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, filter.Skip)

	rows, err := sqlite.Conn(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list solicitacoes", zap.Error(err))
		return nil, fmt.Errorf("failed to list solicitacoes: %w", err)
	}
	defer rows.Close()

	result := make([]*entity.Solicitacao, 0)
	for rows.Next() {
		s, err := scanSolicitacao(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan solicitacao: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// Save writes the mutable fields of s
func (r *SolicitacaoRepository) Save(ctx context.Context, s *entity.Solicitacao) error {
	paths, err := encodePaths(s.ComprovantesPath)
	if err != nil {
		return err
	}
	now := r.now()

	query := `
		UPDATE solicitacoes SET
			numero_processo = ?, aguardando_confirmacao = ?, status_portal = ?,
			status_robo = ?, ultima_verificacao_robo = ?, comprovantes_path = ?,
			usuario_confirmacao_id = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		nullString(s.NumeroProcesso),
		s.AguardandoConfirmacao,
		nullString(s.StatusPortal),
		s.StatusRobo,
		nullTime(s.UltimaVerificacaoRobo),
		paths,
		nullInt64(s.UsuarioConfirmacaoID),
		now,
		s.ID,
	)
	if err != nil {
		r.logger.Error("Failed to save solicitacao", zap.Int64("id", s.ID), zap.Error(err))
		return fmt.Errorf("failed to save solicitacao: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("solicitacao %d: %w", s.ID, port.ErrNotFound)
	}
	s.UpdatedAt = now
	return nil
}

// ResetErrors moves every error-tagged record back to Pendente
func (r *SolicitacaoRepository) ResetErrors(ctx context.Context) (int, error) {
	query := `UPDATE solicitacoes SET status_robo = ?, updated_at = ? WHERE status_robo LIKE ?`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query, status.Pendente, r.now(), status.ErrorPrefix+"%")
	if err != nil {
		r.logger.Error("Failed to reset error statuses", zap.Error(err))
		return 0, fmt.Errorf("failed to reset error statuses: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

// ResetStale releases records left in Processando since before cutoff
func (r *SolicitacaoRepository) ResetStale(ctx context.Context, cutoff time.Time) (int, error) {
	query := `
		UPDATE solicitacoes SET status_robo = ?, updated_at = ?
		WHERE status_robo = ?
			AND (ultima_verificacao_robo IS NULL OR ultima_verificacao_robo < ?)
	`
	result, err := sqlite.Conn(ctx, r.db).ExecContext(ctx, query,
		status.Pendente, r.now(), status.Processando, cutoff.UTC())
	if err != nil {
		r.logger.Error("Failed to reset stale records", zap.Error(err))
		return 0, fmt.Errorf("failed to reset stale records: %w", err)
	}
	n, err := result.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSolicitacao(row scanner) (*entity.Solicitacao, error) {
	var (
		s                    entity.Solicitacao
		numeroProcesso       sql.NullString
		statusPortal         sql.NullString
		ultimaVerificacao    sql.NullTime
		paths                string
		usuarioConfirmacaoID sql.NullInt64
	)
	err := row.Scan(
		&s.ID,
		&s.NPJ,
		&numeroProcesso,
		&s.NumeroSolicitacao,
		&s.Valor,
		&s.DataSolicitacao,
		&s.AguardandoConfirmacao,
		&s.UsuarioID,
		&statusPortal,
		&s.StatusRobo,
		&ultimaVerificacao,
		&paths,
		&usuarioConfirmacaoID,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if numeroProcesso.Valid {
		s.NumeroProcesso = &numeroProcesso.String
	}
	if statusPortal.Valid {
		s.StatusPortal = &statusPortal.String
	}
	if ultimaVerificacao.Valid {
		t := ultimaVerificacao.Time
		s.UltimaVerificacaoRobo = &t
	}
	if usuarioConfirmacaoID.Valid {
		s.UsuarioConfirmacaoID = &usuarioConfirmacaoID.Int64
	}
	s.ComprovantesPath = []string{}
	if paths != "" {
		if err := json.Unmarshal([]byte(paths), &s.ComprovantesPath); err != nil {
			return nil, fmt.Errorf("invalid comprovantes_path for %d: %w", s.ID, err)
		}
	}
	return &s, nil
}

func encodePaths(paths []string) (string, error) {
	if paths == nil {
		paths = []string{}
	}
	b, err := json.Marshal(paths)
	if err != nil {
		return "", fmt.Errorf("failed to encode comprovantes_path: %w", err)
	}
	return string(b), nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var _ port.SolicitacaoRepository = (*SolicitacaoRepository)(nil)
