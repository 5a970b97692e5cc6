package portal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/garyjia/onecost/internal/application/port"
	"github.com/garyjia/onecost/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	settleAfterSearch = 1500 * time.Millisecond
	settleAfterBack   = time.Second
	screenshotTimeout = 10 * time.Second
)

// Page drives the costs module in one browser tab.
type Page struct {
	config    Config
	tabCtx    context.Context
	targetID  target.ID
	network   *networkTracker
	downloads *downloadTracker
	logger    *zap.Logger
}

func newPage(config Config, tabCtx context.Context, network *networkTracker, downloads *downloadTracker, logger *zap.Logger) *Page {
	var id target.ID
	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		id = c.Target.TargetID
	}
	return &Page{
		config:    config,
		tabCtx:    tabCtx,
		targetID:  id,
		network:   network,
		downloads: downloads,
		logger:    logger,
	}
}

func (p *Page) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	return runBounded(ctx, p.tabCtx, op, timeout, actions...)
}

// runBounded runs actions on a chromedp context bounded by timeout and by
// the caller's ctx. An expired wait is reported as a *port.TimeoutError
// for op.
func runBounded(ctx, chromeCtx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(chromeCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return port.UITimeout(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// clickScript evaluates a click script that reports whether it found its target.
func clickScript(script, what string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var ok bool
		if err := chromedp.Evaluate(script, &ok).Do(ctx); err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s not found", what)
		}
		return nil
	})
}

func (p *Page) waitIdle() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return p.network.waitIdle(ctx)
	})
}

func (p *Page) Title(ctx context.Context) (string, error) {
	var title string
	if err := p.run(ctx, "título", p.config.ElementTimeout, chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// SearchCase resets the search form, types the NPJ and blurs the field so
// the portal fires its own search.
func (p *Page) SearchCase(ctx context.Context, npj string) error {
	var cleared bool
	err := p.run(ctx, "pesquisa", p.config.ElementTimeout,
		chromedp.WaitVisible(selSearchInput, chromedp.ByQuery),
		chromedp.Evaluate(scriptClickByText("button", labelClear), &cleared),
		chromedp.Clear(selSearchInput, chromedp.ByQuery),
		chromedp.SendKeys(selSearchInput, npj, chromedp.ByQuery),
		chromedp.SendKeys(selSearchInput, kb.Tab, chromedp.ByQuery),
	)
	if err != nil {
		return err
	}

	if err := p.run(ctx, "pesquisa", p.config.NetworkIdle, p.waitIdle()); err != nil {
		p.logger.Debug("Network did not settle after search", zap.Error(err))
	}

	err = p.run(ctx, "tabela de custos", p.config.TableTimeout,
		chromedp.WaitVisible(selResultPane+" "+selResultRow, chromedp.ByQuery),
		chromedp.Sleep(settleAfterSearch),
	)
	if err != nil {
		var timeout *port.TimeoutError
		if errors.As(err, &timeout) {
			return fmt.Errorf("%w: npj %s", port.ErrTableNotFound, npj)
		}
		return err
	}
	return nil
}

func (p *Page) Rows(ctx context.Context) ([]entity.PortalRow, error) {
	var raw []rawRow
	if err := p.run(ctx, "leitura da tabela", p.config.ElementTimeout, chromedp.Evaluate(scriptReadRows(), &raw)); err != nil {
		return nil, err
	}
	return parseRows(raw), nil
}

func (p *Page) OpenDetail(ctx context.Context, row entity.PortalRow) error {
	return p.run(ctx, "detalhes", p.config.ElementTimeout,
		clickScript(scriptClickInRow(row.Index, selDetailButton), "detail button"),
		chromedp.WaitVisible(xpDetailHeading, chromedp.BySearch),
		chromedp.WaitNotPresent(selLoading, chromedp.ByQuery),
	)
}

func (p *Page) CaseReference(ctx context.Context) (string, error) {
	var text string
	if err := p.run(ctx, "número do processo", p.config.ElementTimeout, chromedp.Evaluate(scriptDetailText, &text)); err != nil {
		return "", err
	}
	return extractCaseReference(text), nil
}

// Documents expands the receipt and document accordions and lists their
// triggers. A missing accordion contributes no links.
func (p *Page) Documents(ctx context.Context) ([]entity.DocumentLink, error) {
	var links []entity.DocumentLink
	for _, group := range []struct {
		title string
		sel   string
		kind  entity.DocumentKind
	}{
		{accordionReceipts, selReceiptLink, entity.DocumentReceipt},
		{accordionDocuments, selDocumentLink, entity.DocumentOriginating},
	} {
		var present bool
		var labels []string
		err := p.run(ctx, "documentos", p.config.ElementTimeout,
			chromedp.Evaluate(scriptOpenAccordion(group.title), &present),
			chromedp.Sleep(300*time.Millisecond),
			chromedp.Evaluate(scriptAccordionLinks(group.title, group.sel), &labels),
		)
		if err != nil {
			return links, err
		}
		if !present {
			p.logger.Debug("Accordion not present in detail view", zap.String("accordion", group.title))
			continue
		}
		links = append(links, documentLinks(group.kind, labels)...)
	}
	return links, nil
}

// Capture fires one trigger and waits for whichever artifact it produces
// first: a new tab, printed to PDF, or a completed download.
func (p *Page) Capture(ctx context.Context, link entity.DocumentLink) (*entity.CapturedDocument, error) {
	title, sel := accordionReceipts, selReceiptLink
	if link.Kind == entity.DocumentOriginating {
		title, sel = accordionDocuments, selDocumentLink
	}

	waitCtx, cancel := context.WithTimeout(p.tabCtx, p.config.DownloadTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	p.downloads.drain()
	opener := p.targetID
	popups := chromedp.WaitNewTarget(waitCtx, func(info *target.Info) bool {
		return info.Type == "page" && info.OpenerID == opener
	})

	if err := chromedp.Run(waitCtx, clickScript(scriptClickAccordionLink(title, sel, link.Index), "document trigger")); err != nil {
		return nil, fmt.Errorf("failed to trigger %s %d: %w", link.Kind, link.Index, err)
	}

	select {
	case id, ok := <-popups:
		if !ok {
			return nil, p.captureTimeout(ctx, waitCtx)
		}
		content, err := p.printPopup(ctx, id)
		if err != nil {
			return nil, err
		}
		return &entity.CapturedDocument{Content: content, Extension: ".pdf", Source: "popup"}, nil
	case done := <-p.downloads.completed:
		content, ext, err := p.downloads.collect(done)
		if err != nil {
			return nil, err
		}
		return &entity.CapturedDocument{Content: content, Extension: ext, Source: "download"}, nil
	case <-waitCtx.Done():
		return nil, p.captureTimeout(ctx, waitCtx)
	}
}

func (p *Page) captureTimeout(ctx, waitCtx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return port.UITimeout("download", waitCtx.Err())
}

// printPopup attaches to a new tab, prints it to PDF and closes it.
func (p *Page) printPopup(ctx context.Context, id target.ID) ([]byte, error) {
	popupCtx, cancel := chromedp.NewContext(p.tabCtx, chromedp.WithTargetID(id))
	defer cancel()

	runCtx, cancelRun := context.WithTimeout(popupCtx, p.config.DownloadTimeout)
	defer cancelRun()
	stop := context.AfterFunc(ctx, cancelRun)
	defer stop()

	var pdf []byte
	err := chromedp.Run(runCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
		page.Close(),
	)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, port.UITimeout("comprovante", err)
		}
		return nil, fmt.Errorf("failed to print popup: %w", err)
	}
	return pdf, nil
}

func (p *Page) BackToList(ctx context.Context) error {
	return p.run(ctx, "retorno à lista", p.config.ElementTimeout,
		clickScript(scriptClickByText("button", labelBack), "back button"),
		chromedp.WaitVisible(xpListHeading, chromedp.BySearch),
		chromedp.Sleep(settleAfterBack),
	)
}

// Confirm approves the row through the dispatch dialog and waits for the
// list to come back.
func (p *Page) Confirm(ctx context.Context, row entity.PortalRow) error {
	err := p.run(ctx, "confirmação", p.config.ElementTimeout,
		clickScript(scriptClickInRow(row.Index, selConfirmButton), "dispatch button"),
		chromedp.WaitVisible(xpConfirmDialog, chromedp.BySearch),
		clickScript(scriptSelectOption(labelApprove), "approve option"),
		clickScript(scriptClickByText("button", labelSubmit), "submit button"),
	)
	if err != nil {
		return err
	}
	return p.run(ctx, "confirmação", p.config.NetworkIdle,
		chromedp.WaitVisible(xpListHeading, chromedp.BySearch),
		p.waitIdle(),
	)
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := p.run(ctx, "screenshot", screenshotTimeout, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

var _ port.PortalPage = (*Page)(nil)
