package port

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/onecost/internal/domain/entity"
)

// Portal failure taxonomy
var (
	// ErrConnection: the debug-protocol endpoint never became reachable or
	// the browser process died. Fatal to session establishment.
	ErrConnection = errors.New("portal connection failed")

	// ErrUITimeout: an expected element did not appear within its wait.
	ErrUITimeout = errors.New("portal element wait timed out")

	// ErrTableNotFound: the search produced no cost table rows.
	ErrTableNotFound = errors.New("cost table not found")

	// ErrRowNotFound: no row matched request number and amount.
	ErrRowNotFound = errors.New("cost row not found")

	// ErrConfirmationIntegrity: the UI acknowledged a confirmation but a
	// fresh read shows the row unchanged or gone.
	ErrConfirmationIntegrity = errors.New("confirmation not reflected on portal")
)

// SessionExpiredError is returned when a session had to be replaced and the
// replacement could not be established. The run cannot continue.
type SessionExpiredError struct {
	Age   time.Duration
	Cause error
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("portal session expired after %s and could not be renewed: %v", e.Age.Round(time.Second), e.Cause)
}

func (e *SessionExpiredError) Unwrap() error { return e.Cause }

// TimeoutError reports which UI wait expired. It matches ErrUITimeout.
type TimeoutError struct {
	Op    string
	Cause error
}

func (e *TimeoutError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%v: %s", ErrUITimeout, e.Op)
	}
	return fmt.Sprintf("%v: %s: %v", ErrUITimeout, e.Op, e.Cause)
}

func (e *TimeoutError) Unwrap() error { return e.Cause }

func (e *TimeoutError) Is(target error) bool { return target == ErrUITimeout }

// UITimeout builds a *TimeoutError for op.
func UITimeout(op string, cause error) error {
	return &TimeoutError{Op: op, Cause: cause}
}

// PortalPage is the navigable, authenticated costs page. Every method is a
// blocking call bounded by the implementation's own waits.
type PortalPage interface {
	// Title is the cheap liveness probe.
	Title(ctx context.Context) (string, error)

	// SearchCase clears the search form, types the NPJ, blurs the input and
	// waits for at least one result row. Returns ErrTableNotFound when no
	// row renders within the wait.
	SearchCase(ctx context.Context, npj string) error

	// Rows reads every rendered result row.
	Rows(ctx context.Context) ([]entity.PortalRow, error)

	// OpenDetail opens the detail view of the row and waits for its
	// loading indicator to clear.
	OpenDetail(ctx context.Context, row entity.PortalRow) error

	// CaseReference extracts the canonical process number from the open
	// detail view. Returns "" when the view does not show one.
	CaseReference(ctx context.Context) (string, error)

	// Documents lists the receipt and originating-document triggers of the
	// open detail view.
	Documents(ctx context.Context) ([]entity.DocumentLink, error)

	// Capture fires one trigger and returns the artifact it produced, either
	// a new tab printed to PDF or a completed browser download.
	Capture(ctx context.Context, link entity.DocumentLink) (*entity.CapturedDocument, error)

	// BackToList leaves the detail view and waits for the list to return.
	BackToList(ctx context.Context) error

	// Confirm opens the dispatch sub-flow of the row, selects approve,
	// submits and waits for the list view to reappear.
	Confirm(ctx context.Context, row entity.PortalRow) error

	// Screenshot captures the current viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)
}

// PortalSession is one authenticated browser context. Close tears down the
// automation handle and terminates the browser process; it is idempotent.
type PortalSession interface {
	Page() PortalPage
	StartedAt() time.Time
	Close() error
}

// PortalConnector launches a browser, performs the SSO handshake and
// returns a session positioned on the costs module.
type PortalConnector interface {
	Connect(ctx context.Context) (PortalSession, error)
}
