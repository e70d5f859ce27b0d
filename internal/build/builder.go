package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/picklr-io/zipbuilder/internal/logging"
	"github.com/picklr-io/zipbuilder/internal/storage"
)

const (
	// DefaultScratchDir is the only writable path inside Lambda.
	DefaultScratchDir = "/tmp"
	// DefaultScript is the entry point expected at the root of every source archive.
	DefaultScript = "build.sh"

	buildDirName = "build"
)

// Options configure a Builder. Nothing here is read from the process
// environment; the caller decides what the build script sees.
type Options struct {
	ScratchDir   string
	Script       string
	SetupCommand string
	Env          map[string]string
	Runner       Runner
	Logger       *slog.Logger
}

// Builder downloads a source archive, runs its build script and publishes
// the result as a zip archive.
type Builder struct {
	store  storage.Store
	opts   Options
	logger *slog.Logger
}

// New returns a Builder backed by store.
func New(store storage.Store, opts Options) *Builder {
	if opts.ScratchDir == "" {
		opts.ScratchDir = DefaultScratchDir
	}
	if opts.Script == "" {
		opts.Script = DefaultScript
	}
	if opts.Runner == nil {
		opts.Runner = &ExecRunner{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Logger()
	}
	return &Builder{store: store, opts: opts, logger: logger}
}

// BuildDir is the directory the source archive is extracted into and the
// build script runs in.
func (b *Builder) BuildDir() string {
	return filepath.Join(b.opts.ScratchDir, buildDirName)
}

// Build runs the whole pipeline for one source/target pair. Steps run in
// order and the first failure aborts; nothing already done is rolled back.
func (b *Builder) Build(ctx context.Context, bucket, keySource, keyTarget string) error {
	log := b.logger.With("bucket", bucket, "key_source", keySource, "key_target", keyTarget)

	env, err := b.prepare(ctx, log)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDependencyInstall, err)
	}

	id := uuid.NewString()
	sourcePath := filepath.Join(b.opts.ScratchDir, "source-"+id+".zip")
	builtPath := filepath.Join(b.opts.ScratchDir, "built-"+id+".zip")
	buildDir := b.BuildDir()

	log.Info("downloading source", "path", sourcePath)
	if err := b.download(ctx, bucket, keySource, sourcePath); err != nil {
		os.Remove(sourcePath)
		return fmt.Errorf("%w: %w", ErrDownload, err)
	}

	log.Info("extracting source", "build_dir", buildDir)
	if err := b.extract(sourcePath, buildDir); err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	log.Info("running build script", "script", b.opts.Script)
	if err := b.runScript(ctx, buildDir, env); err != nil {
		return fmt.Errorf("%w: %w", ErrBuild, err)
	}

	log.Info("packing build output", "path", builtPath)
	entries, err := Pack(buildDir, builtPath)
	if err != nil {
		os.Remove(builtPath)
		return fmt.Errorf("%w: %w", ErrPack, err)
	}
	defer os.Remove(builtPath)

	size, err := b.upload(ctx, bucket, keyTarget, builtPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}

	log.Info("published build", "entries", entries, "bytes", size)
	return nil
}

// prepare makes sure the scratch dir is usable and returns the environment
// for the build. HOME points at the scratch dir because package managers
// write caches there and the real home is read-only under Lambda.
func (b *Builder) prepare(ctx context.Context, log *slog.Logger) (map[string]string, error) {
	if err := os.MkdirAll(b.opts.ScratchDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch dir: %w", err)
	}

	env := lo.Assign(b.opts.Env, map[string]string{
		"HOME": b.opts.ScratchDir,
	})

	if b.opts.SetupCommand == "" {
		return env, nil
	}

	log.Info("running setup command", "command", b.opts.SetupCommand)
	out := newLineLogger(log, "setup")
	defer out.Flush()
	err := b.opts.Runner.RunCommand(ctx, Invocation{
		Dir:    b.opts.ScratchDir,
		Env:    env,
		Output: out,
	}, b.opts.SetupCommand)
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (b *Builder) download(ctx context.Context, bucket, key, dest string) error {
	body, err := b.store.Get(ctx, bucket, key)
	if err != nil {
		return err
	}
	defer body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return fmt.Errorf("failed to write s3://%s/%s to %s: %w", bucket, key, dest, err)
	}
	return f.Close()
}

// extract replaces buildDir with the contents of the archive at src and
// removes the archive.
func (b *Builder) extract(src, buildDir string) error {
	defer os.Remove(src)

	if err := os.RemoveAll(buildDir); err != nil {
		return fmt.Errorf("failed to clear %s: %w", buildDir, err)
	}
	if err := os.Mkdir(buildDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", buildDir, err)
	}
	return Extract(src, buildDir)
}

func (b *Builder) runScript(ctx context.Context, buildDir string, env map[string]string) error {
	script := filepath.Join(buildDir, filepath.FromSlash(b.opts.Script))
	if err := os.Chmod(script, 0o755); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("build script %s not found in source archive", b.opts.Script)
		}
		return fmt.Errorf("failed to make %s executable: %w", b.opts.Script, err)
	}

	out := newLineLogger(b.logger, b.opts.Script)
	defer out.Flush()
	return b.opts.Runner.RunScript(ctx, Invocation{
		Dir:    buildDir,
		Env:    env,
		Output: out,
	}, script)
}

func (b *Builder) upload(ctx context.Context, bucket, key, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	b.logger.Info("uploading build", "bucket", bucket, "key", key, "bytes", info.Size())
	if err := b.store.Put(ctx, bucket, key, f); err != nil {
		return 0, err
	}
	return info.Size(), nil
}
