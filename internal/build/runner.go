package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"

	"github.com/samber/lo"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Invocation is where and how a script or command runs.
type Invocation struct {
	Dir    string
	Env    map[string]string
	Output io.Writer
}

// Runner executes the build script and the optional setup command.
type Runner interface {
	// RunScript executes the file at path.
	RunScript(ctx context.Context, inv Invocation, path string) error
	// RunCommand executes a shell command line.
	RunCommand(ctx context.Context, inv Invocation, command string) error
}

// NewRunner returns the runner registered under name: "exec" or "shell".
func NewRunner(name string) (Runner, error) {
	switch name {
	case "", "exec":
		return &ExecRunner{}, nil
	case "shell":
		return &ShellRunner{}, nil
	default:
		return nil, fmt.Errorf("unknown build runner %q", name)
	}
}

// EnvFromList converts KEY=VALUE pairs, as returned by os.Environ, to a map.
func EnvFromList(pairs []string) map[string]string {
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		if k, v, ok := strings.Cut(pair, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

// EnvToList flattens an environment map to sorted KEY=VALUE pairs.
func EnvToList(env map[string]string) []string {
	pairs := lo.MapToSlice(env, func(k, v string) string {
		return k + "=" + v
	})
	slices.Sort(pairs)
	return pairs
}

// ExecRunner runs scripts as child processes. The script must be executable
// and carry its own interpreter line.
type ExecRunner struct{}

func (r *ExecRunner) RunScript(ctx context.Context, inv Invocation, path string) error {
	return r.run(ctx, inv, path, path)
}

func (r *ExecRunner) RunCommand(ctx context.Context, inv Invocation, command string) error {
	return r.run(ctx, inv, command, "/bin/sh", "-c", command)
}

func (r *ExecRunner) run(ctx context.Context, inv Invocation, name string, argv ...string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = inv.Dir
	cmd.Env = EnvToList(inv.Env)
	out := inv.Output
	if out == nil {
		out = io.Discard
	}
	cmd.Stdout = out
	cmd.Stderr = out

	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ScriptError{Name: name, ExitCode: exitErr.ExitCode()}
	}
	return fmt.Errorf("failed to start %s: %w", name, err)
}

// ShellRunner interprets scripts with an in-process POSIX shell, so a build
// script works even where the runtime image has no /bin/sh. External
// programs the script calls still run as child processes.
type ShellRunner struct{}

func (r *ShellRunner) RunScript(ctx context.Context, inv Invocation, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	prog, err := syntax.NewParser().Parse(f, path)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return r.run(ctx, inv, path, prog)
}

func (r *ShellRunner) RunCommand(ctx context.Context, inv Invocation, command string) error {
	prog, err := syntax.NewParser().Parse(strings.NewReader(command), "setup")
	if err != nil {
		return fmt.Errorf("failed to parse %q: %w", command, err)
	}
	return r.run(ctx, inv, command, prog)
}

func (r *ShellRunner) run(ctx context.Context, inv Invocation, name string, prog *syntax.File) error {
	out := inv.Output
	if out == nil {
		out = io.Discard
	}

	runner, err := interp.New(
		interp.Dir(inv.Dir),
		interp.Env(expand.ListEnviron(EnvToList(inv.Env)...)),
		interp.StdIO(nil, out, out),
	)
	if err != nil {
		return fmt.Errorf("failed to create interpreter: %w", err)
	}

	err = runner.Run(ctx, prog)
	if err == nil {
		return nil
	}
	var exitStatus interp.ExitStatus
	if errors.As(err, &exitStatus) {
		return &ScriptError{Name: name, ExitCode: int(exitStatus)}
	}
	return fmt.Errorf("failed to run %s: %w", name, err)
}
