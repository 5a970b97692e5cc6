package portal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
)

// completedDownload is one finished browser download saved as <dir>/<guid>.
type completedDownload struct {
	GUID     string
	Filename string
}

// downloadTracker turns browser download events into completed files.
type downloadTracker struct {
	dir string

	mu        sync.Mutex
	suggested map[string]string
	completed chan completedDownload
}

func newDownloadTracker(dir string) *downloadTracker {
	return &downloadTracker{
		dir:       dir,
		suggested: make(map[string]string),
		completed: make(chan completedDownload, 8),
	}
}

func (d *downloadTracker) listen(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *browser.EventDownloadWillBegin:
			d.mu.Lock()
			d.suggested[e.GUID] = e.SuggestedFilename
			d.mu.Unlock()
		case *browser.EventDownloadProgress:
			if e.State != browser.DownloadProgressStateCompleted {
				return
			}
			d.mu.Lock()
			name := d.suggested[e.GUID]
			delete(d.suggested, e.GUID)
			d.mu.Unlock()
			select {
			case d.completed <- completedDownload{GUID: e.GUID, Filename: name}:
			default:
			}
		}
	})
}

// enable routes the tab's downloads into dir under their GUIDs.
func (d *downloadTracker) enable() chromedp.Action {
	return browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllowAndName).
		WithDownloadPath(d.dir).
		WithEventsEnabled(true)
}

// drain discards completions left over from earlier captures.
func (d *downloadTracker) drain() {
	for {
		select {
		case <-d.completed:
		default:
			return
		}
	}
}

// collect reads and removes a completed download.
func (d *downloadTracker) collect(done completedDownload) ([]byte, string, error) {
	path := filepath.Join(d.dir, done.GUID)
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read download %s: %w", done.GUID, err)
	}
	_ = os.Remove(path)

	ext := strings.ToLower(filepath.Ext(done.Filename))
	if ext == "" {
		ext = ".pdf"
	}
	return content, ext, nil
}
