package navigation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"sunday-assistant/retry"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

const (
	defaultLoadTimeout   = 15 * time.Second
	defaultActionTimeout = 10 * time.Second
	defaultSettleDelay   = 4 * time.Second
	defaultClickDelay    = 2 * time.Second
)

type BrowserConfig struct {
	URL           string
	Headless      bool
	WindowWidth   int
	WindowHeight  int
	LoadTimeout   time.Duration
	ActionTimeout time.Duration
	// SettleDelay lets the page scripts initialize after load.
	SettleDelay time.Duration
	// ClickDelay lets the section render after a click.
	ClickDelay time.Duration
	Sleep      retry.SleepFunc
	Logger     zerolog.Logger
}

// Browser drives the companion web app in a Chrome instance.
type Browser struct {
	cfg    BrowserConfig
	logger zerolog.Logger

	mu         sync.Mutex
	browserCtx context.Context
	cancel     context.CancelFunc
}

func NewBrowser(cfg *BrowserConfig) (*Browser, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	if cfg.URL == "" {
		return nil, fmt.Errorf("url is empty")
	}

	c := *cfg
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1200
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 800
	}
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = defaultLoadTimeout
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = defaultActionTimeout
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.ClickDelay < 0 {
		c.ClickDelay = 0
	}
	if c.Sleep == nil {
		c.Sleep = retry.Sleep
	}

	return &Browser{
		cfg:    c,
		logger: c.Logger.With().Str("component", "browser").Logger(),
	}, nil
}

// Connect launches the browser and loads the companion URL. A failed attempt
// releases its browser before returning.
func (b *Browser) Connect(ctx context.Context) (Navigator, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.WindowSize(b.cfg.WindowWidth, b.cfg.WindowHeight),
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("use-fake-ui-for-media-stream", true),
		chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		chromedp.Flag("disable-infobars", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	cancel := func() {
		browserCancel()
		allocCancel()
	}

	loadCtx, loadCancel := context.WithTimeout(browserCtx, b.cfg.LoadTimeout)
	defer loadCancel()

	err := chromedp.Run(loadCtx,
		chromedp.Navigate(b.cfg.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to load %s: %w", b.cfg.URL, err)
	}

	if err := b.cfg.Sleep(ctx, b.cfg.SettleDelay); err != nil {
		cancel()
		return nil, err
	}

	b.mu.Lock()
	previous := b.cancel
	b.browserCtx, b.cancel = browserCtx, cancel
	b.mu.Unlock()

	if previous != nil {
		previous()
	}

	b.logger.Info().Str("url", b.cfg.URL).Msg("browser connected")

	return b, nil
}

// Navigate clicks the section's button, falling back to app.showSection.
func (b *Browser) Navigate(ctx context.Context, sectionID string) (bool, error) {
	b.mu.Lock()
	browserCtx := b.browserCtx
	b.mu.Unlock()

	if browserCtx == nil {
		return false, ErrNotConnected
	}

	runCtx, cancel := context.WithTimeout(browserCtx, b.cfg.ActionTimeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, chromedp.WaitReady("#app", chromedp.ByQuery)); err != nil {
		return false, fmt.Errorf("companion app not ready: %w", err)
	}

	if label, ok := SectionLabel(sectionID); ok {
		clicked, err := b.clickButton(runCtx, label)
		if err != nil {
			b.logger.Warn().Err(err).Str("section", sectionID).Msg("button click failed, using script")
		}
		if clicked {
			return true, b.cfg.Sleep(ctx, b.cfg.ClickDelay)
		}
	}

	var shown bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(showSectionScript(sectionID), &shown)); err != nil {
		return false, fmt.Errorf("showSection %q failed: %w", sectionID, err)
	}

	if !shown {
		return false, nil
	}

	return true, b.cfg.Sleep(ctx, b.cfg.ClickDelay)
}

func (b *Browser) clickButton(ctx context.Context, label string) (bool, error) {
	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(buttonXPath(label), &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return false, err
	}

	if len(nodes) == 0 {
		return false, nil
	}

	if err := chromedp.Run(ctx, chromedp.MouseClickNode(nodes[0])); err != nil {
		return false, err
	}

	return true, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	cancel := b.cancel
	b.browserCtx, b.cancel = nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()
	return nil
}

func buttonXPath(label string) string {
	return fmt.Sprintf("//button[contains(text(), %s)]", xpathLiteral(label))
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}

	parts := strings.Split(s, "'")
	quoted := make([]string, len(parts))
	for i, part := range parts {
		quoted[i] = "'" + part + "'"
	}
	return "concat(" + strings.Join(quoted, `, "'", `) + ")"
}

func showSectionScript(sectionID string) string {
	id, err := json.Marshal(sectionID)
	if err != nil {
		id = []byte(`""`)
	}
	return fmt.Sprintf(
		"(typeof app !== 'undefined' && typeof app.showSection === 'function') ? (app.showSection(%s), true) : false",
		id,
	)
}
