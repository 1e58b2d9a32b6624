// Package script runs Starlark walkthrough scripts against a live session.
// Scripts see a small API surface: ingestion builtins, frame values with
// transformation methods, fitted model handles, and chart output.
package script

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	mallard "github.com/mallard-db/mallard"
)

const (
	defaultMaxSteps = uint64(10_000_000)
	defaultTimeout  = 5 * time.Minute
)

// Runtime evaluates scripts against one session. Not safe for concurrent
// use; each run shares the runtime's output writer and context.
type Runtime struct {
	sess     *mallard.Session
	out      io.Writer
	maxSteps uint64
	timeout  time.Duration

	ctx context.Context
}

// New builds a runtime over an open session. Script print output goes
// to out.
func New(sess *mallard.Session, out io.Writer) *Runtime {
	return &Runtime{
		sess:     sess,
		out:      out,
		maxSteps: defaultMaxSteps,
		timeout:  defaultTimeout,
	}
}

// RunFile loads and executes a script file.
func (r *Runtime) RunFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script %s: %w", path, err)
	}
	return r.RunSource(ctx, path, string(src))
}

// RunSource executes script source under the given name.
func (r *Runtime) RunSource(ctx context.Context, name, src string) error {
	r.ctx = ctx
	defer func() { r.ctx = nil }()

	thread := &starlark.Thread{
		Name: "walkthrough",
		Print: func(_ *starlark.Thread, msg string) {
			fmt.Fprintln(r.out, msg)
		},
	}
	thread.SetMaxExecutionSteps(r.maxSteps)

	return runWithTimeout(thread, r.timeout, func() error {
		_, err := starlark.ExecFileOptions(&syntax.FileOptions{}, thread, name, src, r.predeclared())
		return err
	})
}

// predeclared is the global API surface visible to scripts.
func (r *Runtime) predeclared() starlark.StringDict {
	return starlark.StringDict{
		"sample_data":  starlark.NewBuiltin("sample_data", r.builtinSampleData),
		"read_csv":     starlark.NewBuiltin("read_csv", r.builtinReadCSV),
		"read_parquet": starlark.NewBuiltin("read_parquet", r.builtinReadParquet),
		"copy_to":      starlark.NewBuiltin("copy_to", r.builtinCopyTo),
		"table":        starlark.NewBuiltin("table", r.builtinTable),
		"tables":       starlark.NewBuiltin("tables", r.builtinTables),

		"fit_linear":   starlark.NewBuiltin("fit_linear", r.builtinFitLinear),
		"fit_glm":      starlark.NewBuiltin("fit_glm", r.builtinFitGLM),
		"fit_logistic": starlark.NewBuiltin("fit_logistic", r.builtinFitLogistic),
		"fit_mlp":      starlark.NewBuiltin("fit_mlp", r.builtinFitMLP),
		"fit_lda":      starlark.NewBuiltin("fit_lda", r.builtinFitLDA),

		"chart_scatter":   starlark.NewBuiltin("chart_scatter", r.builtinChartScatter),
		"chart_histogram": starlark.NewBuiltin("chart_histogram", r.builtinChartHistogram),
		"chart_bar":       starlark.NewBuiltin("chart_bar", r.builtinChartBar),
	}
}

func runWithTimeout(thread *starlark.Thread, timeout time.Duration, fn func() error) error {
	if timeout <= 0 {
		return fn()
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		thread.Cancel("script execution timed out")
		<-done
		return fmt.Errorf("script execution timed out after %s", timeout)
	}
}
