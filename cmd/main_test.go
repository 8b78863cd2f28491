// File: cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rabbit-cli/api/schemas"
	"github.com/xkilldash9x/rabbit-cli/internal/agent"
	"github.com/xkilldash9x/rabbit-cli/internal/browser"
	"github.com/xkilldash9x/rabbit-cli/internal/config"
	"github.com/xkilldash9x/rabbit-cli/internal/llmclient"
	"github.com/xkilldash9x/rabbit-cli/internal/observability"
	"github.com/xkilldash9x/rabbit-cli/internal/store"
)

// fakeCapability serves a fixed page for every URL.
type fakeCapability struct {
	mu      sync.Mutex
	current string
	visits  []string
	closed  bool
}

func (f *fakeCapability) Init(context.Context) error { return nil }

func (f *fakeCapability) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeCapability) Navigate(_ context.Context, url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = url
	f.visits = append(f.visits, url)
	return true
}

func (f *fakeCapability) ExtractContent(context.Context, string) browser.Content {
	f.mu.Lock()
	defer f.mu.Unlock()
	return browser.Content{Status: browser.ContentFound, Text: "content of " + f.current}
}

func (f *fakeCapability) Click(context.Context, string) error { return nil }

func (f *fakeCapability) FillFields(context.Context, map[string]string, string) error { return nil }

// testEnv captures what the commands under test were given.
type testEnv struct {
	memory *store.Store

	mu           sync.Mutex
	capabilities []*fakeCapability
}

// resetForTest isolates package state and swaps the external collaborators
// for in-process fakes. The returned env shares one in-memory store across
// command invocations.
func resetForTest(t *testing.T) *testEnv {
	t.Helper()

	cfgFile = ""
	t.Setenv("RABBIT_MEMORY_BACKEND", "")
	t.Setenv("RABBIT_AGENT_LLM_API_KEY", "")

	observability.ResetForTest()
	observability.InitializeLogger(config.LoggerConfig{Level: "fatal", Format: "console", ServiceName: "test"})

	env := &testEnv{memory: store.New(store.NewMemoryBackend(), zap.NewNop())}

	origStore, origLLM, origCapability := openStore, newLLMClient, newCapability
	openStore = func(context.Context, config.MemoryConfig, *zap.Logger) (*store.Store, error) {
		return env.memory, nil
	}
	newLLMClient = func(context.Context, config.AgentConfig, *zap.Logger) (schemas.LLMClient, error) {
		return nil, llmclient.ErrNoCredential
	}
	newCapability = func(config.BrowserConfig, *zap.Logger, *observability.Metrics) agent.Capability {
		c := &fakeCapability{}
		env.mu.Lock()
		env.capabilities = append(env.capabilities, c)
		env.mu.Unlock()
		return c
	}

	t.Cleanup(func() {
		openStore, newLLMClient, newCapability = origStore, origLLM, origCapability
		cfgFile = ""
		observability.ResetForTest()
	})
	return env
}

// executeCommand runs the root command with args and returns its stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := executeCommand(t, args...)
	require.NoError(t, err, out)
	return out
}
