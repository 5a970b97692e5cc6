package port

import (
	"context"
	"time"

	"github.com/garyjia/onecost/internal/domain/entity"
)

// SolicitacaoRepository defines persistence operations for Solicitacao
type SolicitacaoRepository interface {
	Create(ctx context.Context, s *entity.Solicitacao) error
	GetByID(ctx context.Context, id int64) (*entity.Solicitacao, error)
	List(ctx context.Context, filter entity.SolicitacaoFilter) ([]*entity.Solicitacao, error)

	// Save writes every mutable robot field of s.
	Save(ctx context.Context, s *entity.Solicitacao) error

	// ResetErrors moves every error-tagged record to Pendente.
	ResetErrors(ctx context.Context) (int, error)

	// ResetStale moves records left in Processando since before cutoff
	// back to Pendente.
	ResetStale(ctx context.Context, cutoff time.Time) (int, error)
}

// UserRepository defines persistence operations for User
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
