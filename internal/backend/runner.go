// Package backend drives the real environment through external helper
// commands: a template locator, an input injector and a window placer.
// Every call starts one short lived process.
package backend

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CZERTAINLY/Sortie/internal/model"
)

var (
	ErrNotStarted    = errors.New("command not started")
	ErrCommandFailed = errors.New("helper command failed")
)

// waitDelay bounds waiting for output of children a killed helper leaves
// behind.
const waitDelay = 500 * time.Millisecond

type StderrFunc func(ctx context.Context, line string)

// LogStderr forwards helper stderr to slog at debug level.
func LogStderr(ctx context.Context, line string) {
	slog.DebugContext(ctx, "helper stderr", "line", line)
}

type Command struct {
	Path    string
	Args    []string
	Env     []string
	Timeout time.Duration
}

type Result struct {
	Path    string
	Args    []string
	Started time.Time
	Stopped time.Time
	State   *os.ProcessState
	Stdout  []byte
	Err     error
}

// Runner runs helper commands one at a time.
type Runner struct {
	mx     sync.Mutex
	stderr StderrFunc
	last   Result
}

// NewRunner returns a runner forwarding stderr lines to stderr. A nil
// function discards them.
func NewRunner(stderr StderrFunc) *Runner {
	return &Runner{
		stderr: stderr,
		last:   Result{Err: ErrNotStarted},
	}
}

// Run starts proto with extra arguments appended and waits for it. Calls
// are serialized. The error of the process is returned in Result.Err.
func (r *Runner) Run(ctx context.Context, proto Command, extra ...string) Result {
	r.mx.Lock()
	defer r.mx.Unlock()

	res := Result{
		Path: proto.Path,
		Args: append(slices.Clone(proto.Args), extra...),
	}
	if proto.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, proto.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, res.Path, res.Args...)
	if len(proto.Env) > 0 {
		cmd.Env = append(os.Environ(), proto.Env...)
	}
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	pr, pw := io.Pipe()
	cmd.Stderr = pw
	cmd.WaitDelay = waitDelay

	res.Started = time.Now().UTC()
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		res.Stopped = time.Now().UTC()
		res.Err = err
		r.last = res
		return res
	}

	var g errgroup.Group
	g.Go(func() error {
		return r.processStderr(ctx, pr)
	})
	res.Err = cmd.Wait()
	_ = pw.Close()
	captureErr := g.Wait()

	res.Stopped = time.Now().UTC()
	res.State = cmd.ProcessState
	res.Stdout = stdout.Bytes()
	if res.Err == nil && captureErr != nil {
		res.Err = fmt.Errorf("reading helper stderr: %w", captureErr)
	}
	slog.DebugContext(ctx, "helper finished",
		"path", res.Path,
		"args", res.Args,
		"elapsed", res.Stopped.Sub(res.Started).String(),
		"error", res.Err)
	r.last = res
	return res
}

func (r *Runner) processStderr(ctx context.Context, stderr io.Reader) error {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if r.stderr != nil {
			r.stderr(ctx, scanner.Text())
		}
	}
	err := scanner.Err()
	if err != nil {
		// keep the writer unblocked
		_, _ = io.Copy(io.Discard, stderr)
	}
	return err
}

// LastResult returns the result of the last finished command, or a result
// with ErrNotStarted.
func (r *Runner) LastResult() Result {
	r.mx.Lock()
	defer r.mx.Unlock()
	return r.last
}

// CommandFromConfig converts a configured helper. Environment values
// starting with $ are expanded, keys are upper cased.
func CommandFromConfig(c *model.Command) (Command, error) {
	if c == nil {
		return Command{}, errors.New("command is not configured")
	}
	cmd := Command{
		Path: c.Path,
		Args: slices.Clone(c.Args),
	}
	keys := make([]string, 0, len(c.Env))
	for k := range c.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := c.Env[k]
		if strings.HasPrefix(v, "$") {
			v = os.ExpandEnv(v)
		}
		cmd.Env = append(cmd.Env, strings.ToUpper(k)+"="+v)
	}
	if c.Timeout != "" {
		d, err := model.ParseCueDuration(c.Timeout)
		if err != nil {
			return Command{}, fmt.Errorf("parsing timeout of %s: %w", c.Path, err)
		}
		cmd.Timeout = d
	}
	return cmd, nil
}

func failed(res Result) error {
	return fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, res.Path, strings.Join(res.Args, " "), res.Err)
}
