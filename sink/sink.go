// Package sink provides render targets other than an in-memory page.
//
// Every target implements SetInnerHTML(ctx, elementID, markup), the same
// method a page.Document has, so any of them can be passed to
// taskstatus.WithTarget.
package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Target is the method set shared by all render targets.
type Target interface {
	SetInnerHTML(ctx context.Context, elementID string, markup []byte) error
}

// WriterTarget writes rendered markup to an io.Writer, one render per line.
type WriterTarget struct {
	mu sync.Mutex
	w  io.Writer
}

// Writer returns a target that writes markup followed by a newline to w.
func Writer(w io.Writer) *WriterTarget {
	return &WriterTarget{w: w}
}

// SetInnerHTML writes markup to the underlying writer.
func (t *WriterTarget) SetInnerHTML(_ context.Context, _ string, markup []byte) error {
	return t.write("", markup)
}

// Labeled returns a target that shares t's writer and puts a
// "==> label <==" line before each render, so results from several
// pages can be told apart.
func (t *WriterTarget) Labeled(label string) *LabeledTarget {
	return &LabeledTarget{w: t, label: label}
}

func (t *WriterTarget) write(header string, markup []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if header != "" {
		if _, err := io.WriteString(t.w, header+"\n"); err != nil {
			return fmt.Errorf("failed to write markup: %w", err)
		}
	}
	if _, err := t.w.Write(markup); err != nil {
		return fmt.Errorf("failed to write markup: %w", err)
	}
	if len(markup) == 0 || markup[len(markup)-1] != '\n' {
		if _, err := io.WriteString(t.w, "\n"); err != nil {
			return fmt.Errorf("failed to write markup: %w", err)
		}
	}
	return nil
}

// LabeledTarget writes rendered markup under a header line naming its source.
type LabeledTarget struct {
	w     *WriterTarget
	label string
}

// SetInnerHTML writes the header line and markup as one unit.
func (t *LabeledTarget) SetInnerHTML(_ context.Context, _ string, markup []byte) error {
	return t.w.write("==> "+t.label+" <==", markup)
}

// FileTarget replaces a file's content with the rendered markup.
type FileTarget struct {
	path string
}

// File returns a target that overwrites the file at path on every render.
func File(path string) *FileTarget {
	return &FileTarget{path: path}
}

// SetInnerHTML writes markup to a temp file next to the target and renames
// it into place, so readers never see a partial file.
func (t *FileTarget) SetInnerHTML(_ context.Context, _ string, markup []byte) error {
	dir := filepath.Dir(t.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(t.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(markup); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, t.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", t.path, err)
	}
	return nil
}

// MultiTarget renders into several targets in order.
type MultiTarget struct {
	targets []Target
}

// Multi returns a target that renders into every non-nil target in order,
// stopping at the first error.
func Multi(targets ...Target) *MultiTarget {
	m := &MultiTarget{}
	for _, t := range targets {
		if t != nil {
			m.targets = append(m.targets, t)
		}
	}
	return m
}

// SetInnerHTML renders into each target in turn.
func (m *MultiTarget) SetInnerHTML(ctx context.Context, elementID string, markup []byte) error {
	for _, t := range m.targets {
		if err := t.SetInnerHTML(ctx, elementID, markup); err != nil {
			return err
		}
	}
	return nil
}
