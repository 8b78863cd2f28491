package browser

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/internal/config"
	"github.com/xkilldash9x/rabbit-cli/internal/llmutil"
	"github.com/xkilldash9x/rabbit-cli/internal/observability"
)

// ContentStatus classifies the result of an extraction.
type ContentStatus string

const (
	ContentFound ContentStatus = "found"
	ContentEmpty ContentStatus = "empty"
	ContentError ContentStatus = "error"
)

// Content is the result of ExtractContent. It is always a value; failures are
// reported through Status and Err.
type Content struct {
	Status ContentStatus
	Text   string
	Err    error
}

// Controller is the resource capability used by the task loop: navigation with
// bounded retries, content extraction with a whole-document fallback, and
// element interaction.
type Controller struct {
	driver  Driver
	cfg     config.BrowserConfig
	logger  *zap.Logger
	metrics *observability.Metrics

	mu         sync.Mutex
	currentURL string
}

// NewController wraps a driver.
func NewController(driver Driver, cfg config.BrowserConfig, logger *zap.Logger, metrics *observability.Metrics) *Controller {
	return &Controller{
		driver:  driver,
		cfg:     cfg,
		logger:  logger.Named("browser"),
		metrics: metrics,
	}
}

// Init starts the underlying driver.
func (c *Controller) Init(ctx context.Context) error {
	if err := c.driver.Start(ctx); err != nil {
		return fmt.Errorf("browser init: %w", err)
	}
	return nil
}

// Close stops the underlying driver.
func (c *Controller) Close() error {
	return c.driver.Close()
}

// CurrentURL returns the last URL navigated to successfully.
func (c *Controller) CurrentURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentURL
}

func successfulStatus(status int64) bool {
	return status >= 200 && status < 400
}

// Navigate loads url, making up to RetryAttempts attempts with RetryDelay
// between them. An attempt fails on error or on a status outside 2xx/3xx.
// Exhausting the attempts returns false.
func (c *Controller) Navigate(ctx context.Context, url string) bool {
	attempts := c.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		c.metrics.NavigationAttempt()
		status, err := c.driver.Goto(ctx, url)
		if err == nil && successfulStatus(status) {
			c.mu.Lock()
			c.currentURL = url
			c.mu.Unlock()
			c.logger.Debug("Navigation succeeded.", zap.String("url", url), zap.Int64("status", status), zap.Int("attempt", attempt))
			return true
		}

		c.logger.Warn("Navigation attempt failed.",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Int64("status", status),
			zap.Error(err),
		)

		if attempt == attempts {
			break
		}
		if !sleepCtx(ctx, c.cfg.RetryDelay) {
			c.logger.Info("Navigation retries aborted by context.", zap.String("url", url))
			return false
		}
	}

	c.logger.Error("Navigation failed after all attempts.", zap.String("url", url), zap.Int("attempts", attempts))
	return false
}

// sleepCtx waits for d or until ctx is done. It reports whether the full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// ExtractContent returns the text of selector, or of the whole document when
// selector is empty or yields nothing.
func (c *Controller) ExtractContent(ctx context.Context, selector string) Content {
	if selector != "" {
		text, err := c.driver.Text(ctx, selector)
		if err == nil && strings.TrimSpace(text) != "" {
			return c.found(text)
		}
		c.logger.Debug("Selector extraction yielded nothing, falling back to whole document.",
			zap.String("selector", selector), zap.Error(err))
	}

	document, err := c.driver.HTML(ctx)
	if err != nil {
		return Content{Status: ContentError, Err: fmt.Errorf("extracting content: %w", err)}
	}

	text := ExtractText(document, c.CurrentURL())
	if text == "" {
		return Content{Status: ContentEmpty}
	}
	return c.found(text)
}

func (c *Controller) found(text string) Content {
	text = strings.TrimSpace(text)
	if c.cfg.MaxContentChars > 0 {
		text = llmutil.Truncate(text, c.cfg.MaxContentChars)
	}
	return Content{Status: ContentFound, Text: text}
}

// Click clicks the first element matching selector.
func (c *Controller) Click(ctx context.Context, selector string) error {
	if selector == "" {
		return errors.New("click requires a selector")
	}
	return c.driver.Click(ctx, selector)
}

// FillFields sets each field (selector -> value) in selector order, then clicks
// submitSelector when one is given.
func (c *Controller) FillFields(ctx context.Context, fields map[string]string, submitSelector string) error {
	if len(fields) == 0 {
		return errors.New("fill requires at least one field")
	}

	selectors := make([]string, 0, len(fields))
	for sel := range fields {
		selectors = append(selectors, sel)
	}
	sort.Strings(selectors)

	for _, sel := range selectors {
		if err := c.driver.SetValue(ctx, sel, fields[sel]); err != nil {
			return err
		}
	}

	if submitSelector != "" {
		if err := c.driver.Click(ctx, submitSelector); err != nil {
			return fmt.Errorf("submitting form: %w", err)
		}
	}
	return nil
}
