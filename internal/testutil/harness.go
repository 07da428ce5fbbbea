// Package testutil holds the end-to-end harness that runs HCL scenarios
// through a fully wired App.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/specialistvlad/pdgsim/internal/app"
	"github.com/specialistvlad/pdgsim/internal/hcl"
	"github.com/stretchr/testify/require"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of a scenario run.
type HarnessResult struct {
	LogOutput string
	Result    *app.Result
	Err       error
	App       *app.App
	// Dir is the scenario directory; outputs are written below it.
	Dir string
}

// Option adjusts the App configuration before the run.
type Option func(*app.Config)

// WriteScenario writes name -> content below a fresh temp dir.
func WriteScenario(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

// RunScenario provides a standardized harness for running a scenario using
// a background context.
func RunScenario(t *testing.T, files map[string]string, opts ...Option) *HarnessResult {
	t.Helper()
	return RunScenarioWithContext(context.Background(), t, files, opts...)
}

// RunScenarioWithContext writes files to a temp dir and runs them once.
// Outputs go below the same dir. The App is closed on test cleanup.
func RunScenarioWithContext(ctx context.Context, t *testing.T, files map[string]string, opts ...Option) *HarnessResult {
	t.Helper()

	dir := WriteScenario(t, files)
	cfg := app.Config{
		ScenarioPaths: []string{dir},
		LogLevel:      "debug",
		LogFormat:     "text",
		Device:        "cpu:2",
		OutputDir:     dir,
	}
	for _, o := range opts {
		o(&cfg)
	}

	logBuffer := &SafeBuffer{}
	res := &HarnessResult{Dir: dir}
	appConfig, err := app.NewConfig(cfg)
	if err != nil {
		res.Err = err
		return res
	}
	a, err := app.NewApp(ctx, logBuffer, appConfig, hcl.NewLoader())
	if err != nil {
		res.Err = err
		res.LogOutput = logBuffer.String()
		return res
	}
	t.Cleanup(func() { _ = a.Close() })

	res.App = a
	res.Result, res.Err = a.Run(ctx)
	res.LogOutput = logBuffer.String()

	if os.Getenv("PDGSIM_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), res.LogOutput)
	}
	return res
}
