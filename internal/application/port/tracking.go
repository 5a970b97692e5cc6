package port

import (
	"context"
	"errors"

	"github.com/garyjia/onecost/internal/domain/entity"
)

var (
	// ErrUnauthenticated: the tracking backend rejected the credentials or token.
	ErrUnauthenticated = errors.New("tracking backend: unauthenticated")

	// ErrNotFound: the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict: the update was rejected by the lifecycle rules.
	ErrConflict = errors.New("conflict")
)

// Identity is the authenticated robot account.
type Identity struct {
	Token   string
	ActorID int64
}

// TrackingClient is the narrow request/response contract the robot uses to
// read and update cost requests. One authenticated client per run.
type TrackingClient interface {
	Authenticate(ctx context.Context) (*Identity, error)
	ListPending(ctx context.Context, excludeStatuses []string) ([]*entity.Solicitacao, error)
	UpdateRecord(ctx context.Context, id int64, update entity.SolicitacaoUpdate) (*entity.Solicitacao, error)
	ResetErrorStatuses(ctx context.Context) (int, error)
}
