package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/garyjia/onecost/internal/application/port"
	"github.com/garyjia/onecost/internal/domain/entity"
	"github.com/garyjia/onecost/internal/domain/money"
	"github.com/garyjia/onecost/internal/domain/status"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CustasConfig holds the portal vocabularies and matching tolerance.
// Statuses are matched as case-insensitive substrings of the portal text.
type CustasConfig struct {
	AmountTolerance    decimal.Decimal
	ConclusionStatuses []string
	AwaitingStatuses   []string
}

// DefaultCustasConfig returns the vocabulary of the current portal.
func DefaultCustasConfig() CustasConfig {
	return CustasConfig{
		AmountTolerance:    money.DefaultTolerance,
		ConclusionStatuses: []string{"efetivado/liquidado", "liquidado", "efetivado"},
		AwaitingStatuses:   []string{"aguardando confirmação", "aguardando confirmacao"},
	}
}

// Outcome is what processing one record produced. It maps onto the partial
// update pushed to the tracking backend.
type Outcome struct {
	StatusRobo   string
	StatusPortal *string

	// Paths replaces comprovantes_path when PathsSet.
	Paths    []string
	PathsSet bool

	NumeroProcesso string
	ConfirmedBy    int64

	Screenshot string
	Err        error
}

// Update builds the partial update for the tracking backend.
func (o Outcome) Update() entity.SolicitacaoUpdate {
	upd := entity.SolicitacaoUpdate{StatusRobo: entity.Set(o.StatusRobo)}
	if o.StatusPortal != nil {
		upd.StatusPortal = entity.Set(*o.StatusPortal)
	}
	if o.PathsSet {
		paths := o.Paths
		if paths == nil {
			paths = []string{}
		}
		upd.ComprovantesPath = entity.Set(paths)
	}
	if o.NumeroProcesso != "" {
		upd.NumeroProcesso = entity.Set(o.NumeroProcesso)
	}
	if o.ConfirmedBy != 0 {
		upd.UsuarioConfirmacaoID = entity.Set(o.ConfirmedBy)
	}
	return upd
}

type actionPath int

const (
	pathMonitor actionPath = iota
	pathConclusion
	pathAwaiting
)

// CustasService locates a tracking record on the portal's cost table and
// runs the action its displayed status calls for.
type CustasService struct {
	config    CustasConfig
	store     port.ArtifactStore
	inspector port.DocumentInspector
	logger    *zap.Logger
}

// NewCustasService creates a new CustasService. inspector may be nil.
func NewCustasService(config CustasConfig, store port.ArtifactStore, inspector port.DocumentInspector, logger *zap.Logger) *CustasService {
	// A zero-value config gets the default; configured tolerances are
	// validated as positive before they reach here.
	if config.AmountTolerance.IsZero() {
		config.AmountTolerance = money.DefaultTolerance
	}
	return &CustasService{
		config:    config,
		store:     store,
		inspector: inspector,
		logger:    logger,
	}
}

// MatchRow returns the first row whose request number equals numero and
// whose amount is within tolerance of valor.
func MatchRow(rows []entity.PortalRow, numero string, valor decimal.Decimal, tolerance decimal.Decimal) (entity.PortalRow, bool) {
	target := strings.TrimSpace(numero)
	for _, row := range rows {
		if strings.TrimSpace(row.NumeroSolicitacao) != target {
			continue
		}
		if money.Matches(valor, row.ValorTexto, tolerance) {
			return row, true
		}
	}
	return entity.PortalRow{}, false
}

// Process runs Search, Locate and Dispatch for one record. It never returns
// an error: failures become an error-tagged Outcome.
func (s *CustasService) Process(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, actorID int64) (out Outcome) {
	logger := s.logger.With(
		zap.Int64("record_id", rec.ID),
		zap.String("npj", rec.NPJ),
		zap.String("numero_solicitacao", rec.NumeroSolicitacao))

	defer func() {
		if r := recover(); r != nil {
			out = s.failure(ctx, page, rec, fmt.Errorf("panic: %v", r), logger)
		}
	}()

	row, err := s.locate(ctx, page, rec)
	if err != nil {
		return s.failure(ctx, page, rec, err, logger)
	}

	logger.Info("Cost row located",
		zap.Int("row", row.Index),
		zap.String("situacao", row.Situacao),
		zap.String("valor", row.ValorTexto))

	switch s.classify(row.Situacao) {
	case pathConclusion:
		return s.conclude(ctx, page, rec, row, logger)
	case pathAwaiting:
		return s.confirm(ctx, page, rec, row, actorID, logger)
	default:
		logger.Info("Status needs no action, keeping record for re-check", zap.String("situacao", row.Situacao))
		situacao := row.Situacao
		return Outcome{StatusRobo: status.Pendente, StatusPortal: &situacao}
	}
}

func (s *CustasService) locate(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao) (entity.PortalRow, error) {
	if err := page.SearchCase(ctx, rec.NPJ); err != nil {
		return entity.PortalRow{}, err
	}

	rows, err := page.Rows(ctx)
	if err != nil {
		return entity.PortalRow{}, fmt.Errorf("failed to read cost rows: %w", err)
	}
	if len(rows) == 0 {
		return entity.PortalRow{}, port.ErrTableNotFound
	}

	row, ok := MatchRow(rows, rec.NumeroSolicitacao, rec.Valor, s.config.AmountTolerance)
	if !ok {
		return entity.PortalRow{}, fmt.Errorf("%w: solicitacao %s valor %s among %d rows",
			port.ErrRowNotFound, rec.NumeroSolicitacao, rec.Valor.StringFixed(2), len(rows))
	}
	return row, nil
}

func (s *CustasService) classify(situacao string) actionPath {
	lower := strings.ToLower(situacao)
	if containsAny(lower, s.config.ConclusionStatuses) {
		return pathConclusion
	}
	if containsAny(lower, s.config.AwaitingStatuses) {
		return pathAwaiting
	}
	return pathMonitor
}

func (s *CustasService) isAwaiting(situacao string) bool {
	return containsAny(strings.ToLower(situacao), s.config.AwaitingStatuses)
}

func containsAny(text string, vocabulary []string) bool {
	for _, v := range vocabulary {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" && strings.Contains(text, v) {
			return true
		}
	}
	return false
}

// conclude opens the detail view and captures every receipt and
// originating document. The list view is restored whatever happens.
func (s *CustasService) conclude(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, row entity.PortalRow, logger *zap.Logger) Outcome {
	situacao := row.Situacao
	defer s.returnToList(ctx, page, logger)

	if err := page.OpenDetail(ctx, row); err != nil {
		out := s.failure(ctx, page, rec, err, logger)
		out.StatusPortal = &situacao
		return out
	}

	out := Outcome{StatusPortal: &situacao, PathsSet: true}

	caseRef := rec.CaseReference()
	if ref, err := page.CaseReference(ctx); err != nil {
		logger.Warn("Could not read process number from detail view", zap.Error(err))
	} else if ref != "" {
		caseRef = ref
		if rec.NumeroProcesso == nil || *rec.NumeroProcesso == "" {
			out.NumeroProcesso = ref
		}
	}

	out.Paths = s.extractDocuments(ctx, page, rec, caseRef, row.ValorTexto, logger)
	if len(out.Paths) > 0 {
		out.StatusRobo = status.FinalizadoSucesso
	} else {
		out.StatusRobo = status.FinalizadoSemArquivo
	}

	logger.Info("Settled cost processed",
		zap.Int("documents", len(out.Paths)),
		zap.String("status_robo", out.StatusRobo))
	return out
}

func (s *CustasService) returnToList(ctx context.Context, page port.PortalPage, logger *zap.Logger) {
	if err := page.BackToList(ctx); err != nil {
		logger.Warn("Failed to return to cost list", zap.Error(err))
	}
}

// extractDocuments captures each trigger independently; one failing
// document never stops the others.
func (s *CustasService) extractDocuments(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, caseRef, amountText string, logger *zap.Logger) []string {
	links, err := page.Documents(ctx)
	if err != nil {
		logger.Warn("Could not list documents in detail view", zap.Error(err))
		return nil
	}
	if len(links) == 0 {
		logger.Info("Detail view has no documents")
		return nil
	}

	paths := make([]string, 0, len(links))
	occurrences := make(map[string]int, len(links))

	for _, link := range links {
		label := documentLabel(link)
		key := strings.ToLower(label)
		occurrences[key]++

		rel, err := s.captureOne(ctx, page, rec, link, port.DocumentName{
			Label:             label,
			CaseReference:     caseRef,
			NumeroSolicitacao: rec.NumeroSolicitacao,
			Amount:            amountText,
			Occurrence:        occurrences[key],
		}, logger)
		if err != nil {
			logger.Warn("Document extraction failed, skipping",
				zap.String("kind", string(link.Kind)),
				zap.Int("index", link.Index),
				zap.String("label", link.Label),
				zap.Error(err))
			continue
		}
		paths = append(paths, rel)
	}
	return paths
}

func (s *CustasService) captureOne(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, link entity.DocumentLink, name port.DocumentName, logger *zap.Logger) (rel string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic capturing document: %v", r)
		}
	}()

	doc, err := page.Capture(ctx, link)
	if err != nil {
		return "", err
	}
	if doc == nil || len(doc.Content) == 0 {
		return "", errors.New("empty artifact")
	}

	if s.inspector != nil {
		if pages, err := s.inspector.Inspect(ctx, doc); err != nil {
			logger.Warn("Captured document did not pass inspection, keeping it", zap.Error(err))
		} else if pages > 0 {
			logger.Debug("Captured document inspected", zap.Int("pages", pages))
		}
	}

	name.Extension = doc.Extension
	rel, err = s.store.SaveDocument(ctx, rec.NPJ, name, doc.Content)
	if err != nil {
		return "", err
	}

	logger.Info("Document saved", zap.String("path", rel), zap.String("source", doc.Source))
	return rel, nil
}

func documentLabel(link entity.DocumentLink) string {
	switch link.Kind {
	case entity.DocumentReceipt:
		return fmt.Sprintf("comprovante_%d", link.Index+1)
	default:
		if strings.TrimSpace(link.Label) != "" {
			return link.Label
		}
		return fmt.Sprintf("documento_%d", link.Index+1)
	}
}

// confirm approves the row and then re-reads the portal from scratch.
// A submission is only trusted once a fresh search shows the row out of
// the awaiting-confirmation vocabulary.
func (s *CustasService) confirm(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, row entity.PortalRow, actorID int64, logger *zap.Logger) Outcome {
	submitErr := page.Confirm(ctx, row)
	if submitErr != nil {
		logger.Warn("Confirmation submission was not acknowledged, verifying portal state", zap.Error(submitErr))
	} else {
		logger.Info("Confirmation submitted, verifying portal state")
	}

	again, err := s.locate(ctx, page, rec)
	if err != nil {
		if errors.Is(err, port.ErrRowNotFound) || errors.Is(err, port.ErrTableNotFound) {
			out := s.integrityFailure(ctx, page, rec, status.ErroConfirmacaoSemLinha, err, logger)
			return out
		}
		return s.failure(ctx, page, rec, err, logger)
	}

	situacao := again.Situacao
	if s.isAwaiting(situacao) {
		tag := status.ErroConfirmacaoNaoAlterada
		if submitErr != nil {
			tag = status.ErroConfirmacaoNaoConcluida
		}
		out := s.integrityFailure(ctx, page, rec, tag, fmt.Errorf("%w: still %q", port.ErrConfirmationIntegrity, situacao), logger)
		out.StatusPortal = &situacao
		return out
	}

	logger.Info("Confirmation verified, record left for re-check",
		zap.String("situacao", situacao),
		zap.Int64("confirmed_by", actorID))
	return Outcome{
		StatusRobo:   status.Pendente,
		StatusPortal: &situacao,
		ConfirmedBy:  actorID,
	}
}

func (s *CustasService) integrityFailure(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, tag string, err error, logger *zap.Logger) Outcome {
	logger.Error("Confirmation integrity check failed", zap.String("status_robo", tag), zap.Error(err))
	return Outcome{
		StatusRobo: tag,
		Screenshot: s.screenshot(ctx, page, rec, "confirmacao", logger),
		Err:        err,
	}
}

// failure converts a record-scoped error into an error-tagged outcome.
func (s *CustasService) failure(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, err error, logger *zap.Logger) Outcome {
	out := Outcome{Err: err}

	var timeout *port.TimeoutError
	switch {
	case errors.Is(err, port.ErrTableNotFound):
		out.StatusRobo = status.ErroTabelaNaoEncontrada
		logger.Warn("Cost table not found", zap.Error(err))
		return out
	case errors.Is(err, port.ErrRowNotFound):
		out.StatusRobo = status.ErroCustaNaoEncontrada
		logger.Warn("Cost row not found", zap.Error(err))
		return out
	case errors.As(err, &timeout):
		out.StatusRobo = status.Timeout(timeout.Op)
		out.Screenshot = s.screenshot(ctx, page, rec, "timeout", logger)
	case errors.Is(err, context.DeadlineExceeded):
		out.StatusRobo = status.Timeout("operação")
		out.Screenshot = s.screenshot(ctx, page, rec, "timeout", logger)
	default:
		out.StatusRobo = status.Unexpected(ErrorTypeName(err))
		out.Screenshot = s.screenshot(ctx, page, rec, "inesperado", logger)
	}

	logger.Error("Record processing failed",
		zap.String("status_robo", out.StatusRobo),
		zap.String("screenshot", out.Screenshot),
		zap.Error(err))
	return out
}

// screenshot is best-effort: an unresponsive page yields "".
func (s *CustasService) screenshot(ctx context.Context, page port.PortalPage, rec *entity.Solicitacao, kind string, logger *zap.Logger) (rel string) {
	defer func() {
		if r := recover(); r != nil {
			rel = ""
		}
	}()

	png, err := page.Screenshot(ctx)
	if err != nil || len(png) == 0 {
		logger.Warn("Failed to capture error screenshot", zap.Error(err))
		return ""
	}
	rel, err = s.store.SaveScreenshot(ctx, rec.NPJ, kind, rec.ID, png)
	if err != nil {
		logger.Warn("Failed to save error screenshot", zap.Error(err))
		return ""
	}
	return rel
}

// ErrorTypeName returns the first exported concrete type name found
// walking the chain from the outermost error, e.g. "PathError" or
// "TimeoutError". Unexported wrappers such as fmt's are skipped; a chain
// with no exported type yields "Error".
func ErrorTypeName(err error) string {
	if err == nil {
		return ""
	}
	if name := firstExportedType(err); name != "" {
		return name
	}
	return "Error"
}

func firstExportedType(err error) string {
	if err == nil {
		return ""
	}
	if name := exportedTypeName(err); name != "" {
		return name
	}
	switch e := err.(type) {
	case interface{ Unwrap() error }:
		return firstExportedType(e.Unwrap())
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			if name := firstExportedType(inner); name != "" {
				return name
			}
		}
	}
	return ""
}

func exportedTypeName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := t.Name()
	if name == "" || strings.ToLower(name[:1]) == name[:1] {
		return ""
	}
	return name
}
