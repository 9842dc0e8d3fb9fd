package steps

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/ravi-parthasarathy/workflow/pkg/definition"
	"github.com/ravi-parthasarathy/workflow/pkg/workflow"
)

// resolvePath joins relative paths to the directory of the definition.
func resolvePath(baseDir, path string) string {
	if path == "" || filepath.IsAbs(path) || baseDir == "" {
		return path
	}
	return filepath.Join(baseDir, path)
}

// newReadFile stores the content of path under key. With required set to
// false a missing file yields an empty string.
func newReadFile(def definition.StepDef, b definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	key, err := a.String("key", "")
	if err != nil {
		return nil, err
	}
	path, err := a.Template("path", "")
	if err != nil {
		return nil, err
	}
	required, err := a.Bool("required", true)
	if err != nil {
		return nil, err
	}
	baseDir := b.BaseDir()

	return workflow.Func(describe(def, "Read "+path.String()), func(_ context.Context, _ *workflow.Control, c workflow.Container) error {
		p, err := path.render(c.Snapshot())
		if err != nil {
			return fmt.Errorf("read_file: path template: %w", err)
		}
		p = resolvePath(baseDir, p)
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) && !required {
				c.Set(key, "")
				return nil
			}
			return fmt.Errorf("read_file: %w", err)
		}
		c.Set(key, string(data))
		return nil
	}), nil
}

// newWriteFile renders content to path, creating parent directories.
func newWriteFile(def definition.StepDef, b definition.Builder) (workflow.Step, error) {
	a := attrsOf(def)
	path, err := a.Template("path", "")
	if err != nil {
		return nil, err
	}
	content, err := a.Template("content", "")
	if err != nil {
		return nil, err
	}
	appendMode, err := a.Bool("append", false)
	if err != nil {
		return nil, err
	}
	modeStr, err := a.String("mode", "")
	if err != nil {
		return nil, err
	}
	mode := fs.FileMode(0o644)
	if modeStr != "" {
		parsed, err := strconv.ParseUint(modeStr, 8, 32)
		if err != nil {
			return nil, a.errorf("invalid mode %q: %w", modeStr, err)
		}
		mode = fs.FileMode(parsed)
	}
	baseDir := b.BaseDir()

	return workflow.Func(describe(def, "Write "+path.String()), func(_ context.Context, _ *workflow.Control, c workflow.Container) error {
		snap := c.Snapshot()
		p, err := path.render(snap)
		if err != nil {
			return fmt.Errorf("write_file: path template: %w", err)
		}
		body, err := content.render(snap)
		if err != nil {
			return fmt.Errorf("write_file: content template: %w", err)
		}
		p = resolvePath(baseDir, p)

		if dir := filepath.Dir(p); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("write_file: create dirs %q: %w", dir, err)
			}
		}
		if !appendMode {
			if err := os.WriteFile(p, []byte(body), mode); err != nil {
				return fmt.Errorf("write_file: %w", err)
			}
			return nil
		}

		f, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, mode)
		if err != nil {
			return fmt.Errorf("write_file: %w", err)
		}
		_, writeErr := f.WriteString(body)
		closeErr := f.Close()
		return errors.Join(writeErr, closeErr)
	}), nil
}
