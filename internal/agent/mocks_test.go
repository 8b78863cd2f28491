// File: internal/agent/mocks_test.go
package agent

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
	"github.com/xkilldash9x/rabbit-cli/internal/browser"
)

// -- Capability Mock --

type mockCapability struct {
	mock.Mock
}

func (m *mockCapability) Init(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockCapability) Close() error {
	return m.Called().Error(0)
}

func (m *mockCapability) Navigate(ctx context.Context, url string) bool {
	return m.Called(ctx, url).Bool(0)
}

func (m *mockCapability) ExtractContent(ctx context.Context, selector string) browser.Content {
	return m.Called(ctx, selector).Get(0).(browser.Content)
}

func (m *mockCapability) Click(ctx context.Context, selector string) error {
	return m.Called(ctx, selector).Error(0)
}

func (m *mockCapability) FillFields(ctx context.Context, fields map[string]string, submitSelector string) error {
	return m.Called(ctx, fields, submitSelector).Error(0)
}

// -- Oracle Mock --

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) InitialPlan(ctx context.Context, task string, resources []string) schemas.Plan {
	return m.Called(ctx, task, resources).Get(0).(schemas.Plan)
}

func (m *mockOracle) ShouldReuse(ctx context.Context, task, resource string, cached any) bool {
	return m.Called(ctx, task, resource, cached).Bool(0)
}

func (m *mockOracle) NextAction(ctx context.Context, task, resource, content string, sc schemas.StepContext) schemas.ActionSpec {
	return m.Called(ctx, task, resource, content, sc).Get(0).(schemas.ActionSpec)
}

func (m *mockOracle) Analyze(ctx context.Context, task string, results []schemas.ResourceResult) map[string]any {
	out, _ := m.Called(ctx, task, results).Get(0).(map[string]any)
	return out
}

func (m *mockOracle) Summarize(ctx context.Context, task string, snapshot schemas.TaskSnapshot) string {
	return m.Called(ctx, task, snapshot).String(0)
}

// -- Driver Fake --

// statusDriver is a browser.Driver whose navigations always answer with a fixed status.
type statusDriver struct {
	status   int64
	document string
	gotos    int
}

func (d *statusDriver) Start(context.Context) error { return nil }

func (d *statusDriver) Goto(context.Context, string) (int64, error) {
	d.gotos++
	return d.status, nil
}

func (d *statusDriver) Text(context.Context, string) (string, error) {
	return "", browser.ErrElementNotFound
}

func (d *statusDriver) HTML(context.Context) (string, error) { return d.document, nil }

func (d *statusDriver) Click(context.Context, string) error { return browser.ErrElementNotFound }

func (d *statusDriver) SetValue(context.Context, string, string) error {
	return browser.ErrElementNotFound
}

func (d *statusDriver) Close() error { return nil }
