package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/internal/config"
)

// ChromeDriver implements Driver with a single chromedp tab.
type ChromeDriver struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu            sync.Mutex
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

var _ Driver = (*ChromeDriver)(nil)

// NewChromeDriver creates a driver; the browser is launched by Start.
func NewChromeDriver(cfg config.BrowserConfig, logger *zap.Logger) *ChromeDriver {
	return &ChromeDriver{cfg: cfg, logger: logger.Named("chromedp")}
}

// execOptions translates the browser configuration into chromedp allocator options.
func execOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("headless", cfg.Headless),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if key, value, ok := strings.Cut(arg, "="); ok {
			opts = append(opts, chromedp.Flag(key, value))
			continue
		}
		opts = append(opts, chromedp.Flag(arg, true))
	}
	return opts
}

// Start launches the browser process and opens a tab. The browser lives until
// Close, independent of ctx.
func (d *ChromeDriver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browserCtx != nil {
		return nil
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), execOptions(d.cfg)...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.logger.Sugar().Debugf),
		chromedp.WithErrorf(d.logger.Sugar().Warnf),
	)

	// The first Run launches the process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	d.browserCtx = browserCtx
	d.cancelBrowser = cancelBrowser
	d.cancelAlloc = cancelAlloc
	d.logger.Info("Browser started.", zap.Bool("headless", d.cfg.Headless))
	return nil
}

// tabCtx derives a context for one operation: a child of the tab context,
// bounded by timeout and cancelled when the caller's ctx is.
func (d *ChromeDriver) tabCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	d.mu.Lock()
	parent := d.browserCtx
	d.mu.Unlock()
	if parent == nil {
		return nil, nil, ErrNotStarted
	}

	var opCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		opCtx, cancel = context.WithTimeout(parent, timeout)
	} else {
		opCtx, cancel = context.WithCancel(parent)
	}
	stop := context.AfterFunc(ctx, cancel)
	return opCtx, func() {
		stop()
		cancel()
	}, nil
}

func (d *ChromeDriver) Goto(ctx context.Context, url string) (int64, error) {
	opCtx, cancel, err := d.tabCtx(ctx, d.cfg.NavigationTimeout)
	if err != nil {
		return 0, err
	}
	defer cancel()

	resp, err := chromedp.RunResponse(opCtx, chromedp.Navigate(url))
	if err != nil {
		return 0, fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	if err := chromedp.Run(opCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return statusOf(resp), fmt.Errorf("waiting for document body: %w", err)
	}
	return statusOf(resp), nil
}

func statusOf(resp *network.Response) int64 {
	if resp == nil {
		return 0
	}
	return resp.Status
}

// requireNode fails fast with ErrElementNotFound instead of waiting for a selector that will never match.
func requireNode(ctx context.Context, selector string) error {
	var nodes []*cdp.Node
	if err := chromedp.Run(ctx, chromedp.Nodes(selector, &nodes, chromedp.ByQuery, chromedp.AtLeast(0))); err != nil {
		return fmt.Errorf("querying %q: %w", selector, err)
	}
	if len(nodes) == 0 {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return nil
}

func (d *ChromeDriver) Text(ctx context.Context, selector string) (string, error) {
	opCtx, cancel, err := d.tabCtx(ctx, d.cfg.ActionTimeout)
	if err != nil {
		return "", err
	}
	defer cancel()

	if err := requireNode(opCtx, selector); err != nil {
		return "", err
	}
	var text string
	if err := chromedp.Run(opCtx, chromedp.Text(selector, &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading text of %q: %w", selector, err)
	}
	return text, nil
}

func (d *ChromeDriver) HTML(ctx context.Context) (string, error) {
	opCtx, cancel, err := d.tabCtx(ctx, d.cfg.ActionTimeout)
	if err != nil {
		return "", err
	}
	defer cancel()

	var html string
	if err := chromedp.Run(opCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("reading document html: %w", err)
	}
	return html, nil
}

func (d *ChromeDriver) Click(ctx context.Context, selector string) error {
	opCtx, cancel, err := d.tabCtx(ctx, d.cfg.ActionTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	if err := requireNode(opCtx, selector); err != nil {
		return err
	}
	if err := chromedp.Run(opCtx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("clicking %q: %w", selector, err)
	}
	return nil
}

func (d *ChromeDriver) SetValue(ctx context.Context, selector, value string) error {
	opCtx, cancel, err := d.tabCtx(ctx, d.cfg.ActionTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	if err := requireNode(opCtx, selector); err != nil {
		return err
	}
	err = chromedp.Run(opCtx,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("filling %q: %w", selector, err)
	}
	return nil
}

// Close shuts down the tab and the browser process.
func (d *ChromeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browserCtx == nil {
		return nil
	}
	d.cancelBrowser()
	d.cancelAlloc()
	d.browserCtx = nil
	d.logger.Info("Browser closed.")
	return nil
}
