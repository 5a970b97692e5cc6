package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/onecost/internal/application/port"
	"github.com/garyjia/onecost/internal/domain/entity"
	"github.com/garyjia/onecost/internal/domain/status"
)

// Logger is the logging contract of the backend services
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ErrInvalidInput is returned for requests that fail field validation
var ErrInvalidInput = errors.New("invalid input")

// SolicitacaoService implements the tracking backend's record rules
type SolicitacaoService interface {
	// Create registers a new request as Pendente / "Aguardando Robô"
	Create(ctx context.Context, in entity.SolicitacaoCreate, ownerID int64) (*entity.Solicitacao, error)

	// Get retrieves one request
	Get(ctx context.Context, id int64) (*entity.Solicitacao, error)

	// List retrieves requests ordered by id
	List(ctx context.Context, filter entity.SolicitacaoFilter) ([]*entity.Solicitacao, error)

	// Update applies a robot partial update
	Update(ctx context.Context, id int64, upd entity.SolicitacaoUpdate) (*entity.Solicitacao, error)

	// ResetErrors moves every error-tagged request back to Pendente
	ResetErrors(ctx context.Context) (int, error)

	// ReapStale releases requests stuck in Processando for longer than staleAfter
	ReapStale(ctx context.Context, staleAfter time.Duration) (int, error)
}

type solicitacaoServiceImpl struct {
	repo      port.SolicitacaoRepository
	txManager port.TransactionManager
	logger    Logger
	now       func() time.Time
}

// NewSolicitacaoService creates a new SolicitacaoService
func NewSolicitacaoService(repo port.SolicitacaoRepository, txManager port.TransactionManager, logger Logger) SolicitacaoService {
	return &solicitacaoServiceImpl{
		repo:      repo,
		txManager: txManager,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *solicitacaoServiceImpl) Create(ctx context.Context, in entity.SolicitacaoCreate, ownerID int64) (*entity.Solicitacao, error) {
	if strings.TrimSpace(in.NPJ) == "" || strings.TrimSpace(in.NumeroSolicitacao) == "" {
		return nil, fmt.Errorf("%w: npj and numero_solicitacao are required", ErrInvalidInput)
	}
	if !in.Valor.IsPositive() {
		return nil, fmt.Errorf("%w: valor must be positive", ErrInvalidInput)
	}

	portal := entity.InitialStatusPortal
	rec := &entity.Solicitacao{
		NPJ:               strings.TrimSpace(in.NPJ),
		NumeroProcesso:    in.NumeroProcesso,
		NumeroSolicitacao: strings.TrimSpace(in.NumeroSolicitacao),
		Valor:             in.Valor.Round(2),
		DataSolicitacao:   in.DataSolicitacao,
		UsuarioID:         ownerID,
		StatusPortal:      &portal,
		StatusRobo:        status.Pendente,
		ComprovantesPath:  []string{},
	}
	if in.AguardandoConfirmacao != nil {
		rec.AguardandoConfirmacao = *in.AguardandoConfirmacao
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		s.logger.Error("Failed to create solicitacao", "npj", rec.NPJ, "error", err)
		return nil, fmt.Errorf("failed to create solicitacao: %w", err)
	}

	s.logger.Info("Solicitacao created", "id", rec.ID, "npj", rec.NPJ, "numero_solicitacao", rec.NumeroSolicitacao)
	return rec, nil
}

func (s *solicitacaoServiceImpl) Get(ctx context.Context, id int64) (*entity.Solicitacao, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("solicitacao %d: %w", id, port.ErrNotFound)
	}
	return rec, nil
}

func (s *solicitacaoServiceImpl) List(ctx context.Context, filter entity.SolicitacaoFilter) ([]*entity.Solicitacao, error) {
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Skip < 0 {
		filter.Skip = 0
	}
	return s.repo.List(ctx, filter)
}

// Update applies upd inside a transaction. numero_processo is append-once,
// comprovantes_path replaces the stored list and any status_robo write
// stamps ultima_verificacao_robo.
func (s *solicitacaoServiceImpl) Update(ctx context.Context, id int64, upd entity.SolicitacaoUpdate) (*entity.Solicitacao, error) {
	if err := upd.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	var updated *entity.Solicitacao
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		rec, err := s.Get(txCtx, id)
		if err != nil {
			return err
		}

		if next, ok := upd.StatusRobo.Value(); ok {
			if err := status.ValidateTransition(rec.StatusRobo, next); err != nil {
				return fmt.Errorf("%w: %w", port.ErrConflict, err)
			}
			rec.StatusRobo = next
			now := s.now()
			rec.UltimaVerificacaoRobo = &now
		}
		if upd.StatusPortal.IsSet() {
			rec.StatusPortal = upd.StatusPortal.Ptr()
		}
		if upd.ComprovantesPath.IsSet() {
			paths, _ := upd.ComprovantesPath.Value()
			if paths == nil {
				paths = []string{}
			}
			rec.ComprovantesPath = paths
		}
		if ref, ok := upd.NumeroProcesso.Value(); ok && strings.TrimSpace(ref) != "" {
			if rec.NumeroProcesso == nil || *rec.NumeroProcesso == "" {
				rec.NumeroProcesso = &ref
			}
		}
		if upd.UsuarioConfirmacaoID.IsSet() {
			rec.UsuarioConfirmacaoID = upd.UsuarioConfirmacaoID.Ptr()
		}

		if err := s.repo.Save(txCtx, rec); err != nil {
			return fmt.Errorf("failed to save solicitacao: %w", err)
		}
		updated = rec
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update solicitacao", "id", id, "error", err)
		return nil, err
	}

	s.logger.Info("Solicitacao updated", "id", id, "status_robo", updated.StatusRobo)
	return updated, nil
}

func (s *solicitacaoServiceImpl) ResetErrors(ctx context.Context) (int, error) {
	n, err := s.repo.ResetErrors(ctx)
	if err != nil {
		s.logger.Error("Failed to reset error statuses", "error", err)
		return 0, fmt.Errorf("failed to reset error statuses: %w", err)
	}
	s.logger.Info("Error statuses reset", "count", n)
	return n, nil
}

func (s *solicitacaoServiceImpl) ReapStale(ctx context.Context, staleAfter time.Duration) (int, error) {
	cutoff := s.now().Add(-staleAfter)
	n, err := s.repo.ResetStale(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale records: %w", err)
	}
	if n > 0 {
		s.logger.Info("Stale in-progress records released", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
