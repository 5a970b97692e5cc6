package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/garyjia/onecost/internal/application/port"
	"github.com/garyjia/onecost/internal/domain/entity"
	"github.com/garyjia/onecost/internal/domain/status"
	"go.uber.org/zap"
)

// ErrRunAborted wraps every run-boundary failure.
var ErrRunAborted = errors.New("robot run aborted")

// SessionManager is the part of the session controller a run needs.
type SessionManager interface {
	Establish(ctx context.Context) (port.PortalPage, error)
	EnsureFresh(ctx context.Context) (port.PortalPage, error)
	Renewals() int
	Close() error
}

// RecordProcessor handles one record against the portal.
type RecordProcessor interface {
	Process(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, actorID int64) Outcome
}

// RunSummary reports what one run did.
type RunSummary struct {
	RunID     string
	Total     int
	Processed int
	Succeeded int
	Pending   int
	Failed    int
	Renewals  int
	Duration  time.Duration
}

// RobotService drives one robot run: fetch pending records, open one
// portal session and process the records strictly in id order.
type RobotService struct {
	tracking  port.TrackingClient
	sessions  SessionManager
	processor RecordProcessor
	terminal  []string
	logger    *zap.Logger
	now       func() time.Time
}

// NewRobotService creates a new RobotService. terminal lists the statuses
// excluded from the pending fetch; empty means status.Terminal().
func NewRobotService(tracking port.TrackingClient, sessions SessionManager, processor RecordProcessor, terminal []string, logger *zap.Logger) *RobotService {
	if len(terminal) == 0 {
		terminal = status.Terminal()
	}
	return &RobotService{
		tracking:  tracking,
		sessions:  sessions,
		processor: processor,
		terminal:  terminal,
		logger:    logger,
		now:       time.Now,
	}
}

// Run executes one run. Record failures are written back as error statuses
// and never stop the run; authentication, the pending fetch, session
// establishment and session renewal failures abort it with ErrRunAborted.
// The portal session is closed on every exit path.
func (s *RobotService) Run(ctx context.Context, runID string) (summary RunSummary, err error) {
	started := s.now()
	summary.RunID = runID
	defer func() {
		summary.Renewals = s.sessions.Renewals()
		summary.Duration = s.now().Sub(started)
	}()

	identity, err := s.tracking.Authenticate(ctx)
	if err != nil {
		return summary, fmt.Errorf("%w: authentication: %w", ErrRunAborted, err)
	}
	s.logger.Info("Authenticated against tracking backend", zap.Int64("actor_id", identity.ActorID))

	records, err := s.tracking.ListPending(ctx, s.terminal)
	if err != nil {
		return summary, fmt.Errorf("%w: fetching pending records: %w", ErrRunAborted, err)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	summary.Total = len(records)

	if len(records) == 0 {
		s.logger.Info("No pending records")
		return summary, nil
	}
	s.logger.Info("Pending records fetched", zap.Int("count", len(records)))

	defer func() {
		if cerr := s.sessions.Close(); cerr != nil {
			s.logger.Warn("Failed to close portal session", zap.Error(cerr))
		}
	}()

	if _, err := s.sessions.Establish(ctx); err != nil {
		return summary, fmt.Errorf("%w: %w", ErrRunAborted, err)
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("%w: %w", ErrRunAborted, err)
		}

		// Renewal is checked right before each record's search.
		page, err := s.sessions.EnsureFresh(ctx)
		if err != nil {
			s.logger.Error("Portal session lost, aborting run",
				zap.Int("remaining", len(records)-i),
				zap.Error(err))
			return summary, fmt.Errorf("%w: %w", ErrRunAborted, err)
		}

		s.processRecord(ctx, page, rec, identity.ActorID, &summary)
	}

	s.logger.Info("Robot run finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("pending", summary.Pending),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

func (s *RobotService) processRecord(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, actorID int64, summary *RunSummary) {
	logger := s.logger.With(zap.Int64("record_id", rec.ID), zap.String("npj", rec.NPJ))
	logger.Info("Processing record")

	mark := entity.SolicitacaoUpdate{StatusRobo: entity.Set(status.Processando)}
	if _, err := s.tracking.UpdateRecord(ctx, rec.ID, mark); err != nil {
		logger.Warn("Failed to mark record as in progress", zap.Error(err))
	}

	out := s.processor.Process(ctx, page, rec, actorID)

	if _, err := s.tracking.UpdateRecord(ctx, rec.ID, out.Update()); err != nil {
		logger.Error("Failed to push record result",
			zap.String("status_robo", out.StatusRobo),
			zap.Error(err))
	}

	summary.Processed++
	switch {
	case status.IsError(out.StatusRobo):
		summary.Failed++
	case status.IsTerminal(out.StatusRobo):
		summary.Succeeded++
	default:
		summary.Pending++
	}
	logger.Info("Record processed", zap.String("status_robo", out.StatusRobo))
}
