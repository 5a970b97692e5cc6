package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/garyjia/onecost/internal/application/port"
	"github.com/garyjia/onecost/internal/application/session"
	"github.com/garyjia/onecost/internal/domain/entity"
	"github.com/garyjia/onecost/internal/domain/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockTrackingClient struct {
	authenticateFunc func(ctx context.Context) (*port.Identity, error)
	listPendingFunc  func(ctx context.Context, exclude []string) ([]*entity.Solicitacao, error)
	updateFunc       func(ctx context.Context, id int64, upd entity.SolicitacaoUpdate) (*entity.Solicitacao, error)

	updates map[int64][]entity.SolicitacaoUpdate
}

func (m *mockTrackingClient) Authenticate(ctx context.Context) (*port.Identity, error) {
	if m.authenticateFunc != nil {
		return m.authenticateFunc(ctx)
	}
	return &port.Identity{Token: "t", ActorID: 3}, nil
}

func (m *mockTrackingClient) ListPending(ctx context.Context, exclude []string) ([]*entity.Solicitacao, error) {
	if m.listPendingFunc != nil {
		return m.listPendingFunc(ctx, exclude)
	}
	return nil, nil
}

func (m *mockTrackingClient) UpdateRecord(ctx context.Context, id int64, upd entity.SolicitacaoUpdate) (*entity.Solicitacao, error) {
	if m.updates == nil {
		m.updates = make(map[int64][]entity.SolicitacaoUpdate)
	}
	m.updates[id] = append(m.updates[id], upd)
	if m.updateFunc != nil {
		return m.updateFunc(ctx, id, upd)
	}
	return &entity.Solicitacao{ID: id}, nil
}

func (m *mockTrackingClient) ResetErrorStatuses(ctx context.Context) (int, error) {
	return 0, nil
}

func (m *mockTrackingClient) finalStatus(id int64) string {
	upds := m.updates[id]
	if len(upds) == 0 {
		return ""
	}
	v, _ := upds[len(upds)-1].StatusRobo.Value()
	return v
}

type mockProcessor struct {
	processFunc func(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, actorID int64) Outcome
	processed   []int64
}

func (m *mockProcessor) Process(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, actorID int64) Outcome {
	m.processed = append(m.processed, rec.ID)
	if m.processFunc != nil {
		return m.processFunc(ctx, page, rec, actorID)
	}
	return Outcome{StatusRobo: status.Pendente}
}

type mockSessionManager struct {
	establishErr   error
	ensureFreshErr func(call int) error
	ensureCalls    int
	closed         int
}

func (m *mockSessionManager) Establish(ctx context.Context) (port.PortalPage, error) {
	if m.establishErr != nil {
		return nil, m.establishErr
	}
	return newFakePortal(), nil
}

func (m *mockSessionManager) EnsureFresh(ctx context.Context) (port.PortalPage, error) {
	m.ensureCalls++
	if m.ensureFreshErr != nil {
		if err := m.ensureFreshErr(m.ensureCalls); err != nil {
			return nil, err
		}
	}
	return newFakePortal(), nil
}

func (m *mockSessionManager) Renewals() int { return 0 }

func (m *mockSessionManager) Close() error {
	m.closed++
	return nil
}

func pendingRecords(ids ...int64) func(ctx context.Context, exclude []string) ([]*entity.Solicitacao, error) {
	return func(ctx context.Context, exclude []string) ([]*entity.Solicitacao, error) {
		recs := make([]*entity.Solicitacao, 0, len(ids))
		for _, id := range ids {
			recs = append(recs, &entity.Solicitacao{ID: id, NPJ: fmt.Sprintf("2023/%04d", id), StatusRobo: status.Pendente})
		}
		return recs, nil
	}
}

func TestRobotService_Run_ProcessesInIDOrder(t *testing.T) {
	tracking := &mockTrackingClient{listPendingFunc: pendingRecords(9, 2, 5)}
	sessions := &mockSessionManager{}
	processor := &mockProcessor{processFunc: func(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, actorID int64) Outcome {
		switch rec.ID {
		case 2:
			return Outcome{StatusRobo: status.FinalizadoSucesso}
		case 5:
			return Outcome{StatusRobo: status.ErroCustaNaoEncontrada}
		}
		return Outcome{StatusRobo: status.Pendente}
	}}

	svc := NewRobotService(tracking, sessions, processor, nil, zap.NewNop())
	summary, err := svc.Run(context.Background(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, []int64{2, 5, 9}, processor.processed)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 1, sessions.closed)

	// phase 1 marks, phase 2 pushes the result
	require.Len(t, tracking.updates[2], 2)
	first, _ := tracking.updates[2][0].StatusRobo.Value()
	assert.Equal(t, status.Processando, first)
	assert.Equal(t, status.FinalizadoSucesso, tracking.finalStatus(2))
	assert.Equal(t, status.ErroCustaNaoEncontrada, tracking.finalStatus(5))
}

func TestRobotService_Run_ExcludesTerminalStatuses(t *testing.T) {
	var excluded []string
	tracking := &mockTrackingClient{listPendingFunc: func(ctx context.Context, exclude []string) ([]*entity.Solicitacao, error) {
		excluded = exclude
		return nil, nil
	}}
	sessions := &mockSessionManager{}

	svc := NewRobotService(tracking, sessions, &mockProcessor{}, nil, zap.NewNop())
	summary, err := svc.Run(context.Background(), "run-1")
	require.NoError(t, err)

	assert.ElementsMatch(t, status.Terminal(), excluded)
	assert.Zero(t, summary.Total)
	assert.Equal(t, 0, sessions.closed, "no session is opened for an empty run")
}

func TestRobotService_Run_RecordFailuresDoNotStopRun(t *testing.T) {
	tracking := &mockTrackingClient{
		listPendingFunc: pendingRecords(1, 2, 3),
		updateFunc: func(ctx context.Context, id int64, upd entity.SolicitacaoUpdate) (*entity.Solicitacao, error) {
			if id == 2 {
				return nil, errors.New("backend returned 500")
			}
			return &entity.Solicitacao{ID: id}, nil
		},
	}
	processor := &mockProcessor{processFunc: func(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, actorID int64) Outcome {
		return Outcome{StatusRobo: status.Timeout("pesquisa")}
	}}

	svc := NewRobotService(tracking, &mockSessionManager{}, processor, nil, zap.NewNop())
	summary, err := svc.Run(context.Background(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, processor.processed)
	assert.Equal(t, 3, summary.Failed)
}

func TestRobotService_Run_RunBoundaryFailures(t *testing.T) {
	t.Run("authentication", func(t *testing.T) {
		tracking := &mockTrackingClient{authenticateFunc: func(ctx context.Context) (*port.Identity, error) {
			return nil, port.ErrUnauthenticated
		}}
		svc := NewRobotService(tracking, &mockSessionManager{}, &mockProcessor{}, nil, zap.NewNop())

		_, err := svc.Run(context.Background(), "run-1")
		assert.True(t, errors.Is(err, ErrRunAborted))
		assert.True(t, errors.Is(err, port.ErrUnauthenticated))
	})

	t.Run("session establishment", func(t *testing.T) {
		tracking := &mockTrackingClient{listPendingFunc: pendingRecords(1)}
		sessions := &mockSessionManager{establishErr: port.ErrConnection}
		processor := &mockProcessor{}
		svc := NewRobotService(tracking, sessions, processor, nil, zap.NewNop())

		_, err := svc.Run(context.Background(), "run-1")
		assert.True(t, errors.Is(err, port.ErrConnection))
		assert.Empty(t, processor.processed)
		assert.Equal(t, 1, sessions.closed)
	})

	t.Run("renewal mid run", func(t *testing.T) {
		tracking := &mockTrackingClient{listPendingFunc: pendingRecords(1, 2, 3)}
		sessions := &mockSessionManager{ensureFreshErr: func(call int) error {
			if call == 2 {
				return &port.SessionExpiredError{Age: time.Hour, Cause: port.ErrConnection}
			}
			return nil
		}}
		processor := &mockProcessor{}
		svc := NewRobotService(tracking, sessions, processor, nil, zap.NewNop())

		summary, err := svc.Run(context.Background(), "run-1")
		var expired *port.SessionExpiredError
		assert.True(t, errors.As(err, &expired))
		assert.Equal(t, []int64{1}, processor.processed)
		assert.Equal(t, 1, summary.Processed)
		assert.Equal(t, 1, sessions.closed)
	})
}

// agingConnector hands out sessions whose start time the test can move
// back to simulate elapsed wall-clock time.
type agingConnector struct {
	sessions []*agingSession
	events   *[]string
}

type agingSession struct {
	page      *fakePortal
	startedAt time.Time
	closed    bool
}

func (s *agingSession) Page() port.PortalPage { return s.page }
func (s *agingSession) StartedAt() time.Time  { return s.startedAt }
func (s *agingSession) Close() error {
	s.closed = true
	return nil
}

func (c *agingConnector) Connect(ctx context.Context) (port.PortalSession, error) {
	*c.events = append(*c.events, "connect")
	s := &agingSession{page: newFakePortal(), startedAt: time.Now()}
	c.sessions = append(c.sessions, s)
	return s, nil
}

func (c *agingConnector) current() *agingSession {
	return c.sessions[len(c.sessions)-1]
}

// Scenario D: a session that outlives the timeout is renewed exactly once,
// right before the next record.
func TestRobotService_Run_RenewsAgedSessionBeforeRecord(t *testing.T) {
	var events []string
	connector := &agingConnector{events: &events}
	controller := session.NewController(session.Config{Timeout: 30 * time.Minute, ProbeTimeout: time.Second}, connector, zap.NewNop())

	tracking := &mockTrackingClient{listPendingFunc: pendingRecords(1, 2, 3, 4, 5)}
	processor := &mockProcessor{processFunc: func(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, actorID int64) Outcome {
		events = append(events, fmt.Sprintf("process %d", rec.ID))
		// every record consumes ten minutes of session lifetime
		s := connector.current()
		s.startedAt = s.startedAt.Add(-10 * time.Minute)
		return Outcome{StatusRobo: status.Pendente}
	}}

	svc := NewRobotService(tracking, controller, processor, nil, zap.NewNop())
	summary, err := svc.Run(context.Background(), "run-d")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"connect",
		"process 1", "process 2", "process 3",
		"connect",
		"process 4", "process 5",
	}, events)
	assert.Equal(t, 1, summary.Renewals)
	require.Len(t, connector.sessions, 2)
	assert.True(t, connector.sessions[0].closed)
	assert.True(t, connector.sessions[1].closed, "session is torn down at the end of the run")
}
