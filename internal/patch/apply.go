package patch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ReadFunc reads a file's full contents. It must return an error satisfying
// errors.Is(err, os.ErrNotExist) when path does not exist.
type ReadFunc func(path string) ([]byte, error)

// WriteFunc writes a file's full contents, creating parent directories and
// replacing any existing file atomically.
type WriteFunc func(path string, content []byte) error

// DeleteFunc removes a file.
type DeleteFunc func(path string) error

// HunkError names the failing file and hunk so the caller can report which
// hunk in a multi-file patch failed to apply.
type HunkError struct {
	Path      string
	HunkIndex int
	Reason    string
}

func (e *HunkError) Error() string {
	return fmt.Sprintf("patch: %s hunk %d: %s", e.Path, e.HunkIndex+1, e.Reason)
}

// Apply applies every operation in declaration order using the supplied file
// callbacks. On any failure it stops immediately and returns a *HunkError (for
// hunk-application failures) or a plain error (for structural failures like an
// Add targeting an existing file); the caller is expected to run this inside a
// version-control-backed workspace since there is no rollback on partial
// failure.
func Apply(p Patch, read ReadFunc, write WriteFunc, del DeleteFunc) (string, error) {
	var summary strings.Builder
	for _, op := range p.Ops {
		switch op.Kind {
		case OpAdd:
			if _, err := read(op.Path); err == nil {
				return "", fmt.Errorf("patch: add target already exists: %s", op.Path)
			} else if !errors.Is(err, os.ErrNotExist) {
				return "", fmt.Errorf("patch: checking add target %s: %w", op.Path, err)
			}
			if err := write(op.Path, []byte(op.Content)); err != nil {
				return "", fmt.Errorf("patch: writing %s: %w", op.Path, err)
			}
			fmt.Fprintf(&summary, "A %s\n", op.Path)

		case OpDelete:
			if _, err := read(op.Path); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return "", fmt.Errorf("patch: delete target does not exist: %s", op.Path)
				}
				return "", fmt.Errorf("patch: checking delete target %s: %w", op.Path, err)
			}
			if err := del(op.Path); err != nil {
				return "", fmt.Errorf("patch: deleting %s: %w", op.Path, err)
			}
			fmt.Fprintf(&summary, "D %s\n", op.Path)

		case OpUpdate:
			original, err := read(op.Path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					return "", fmt.Errorf("patch: update target does not exist: %s", op.Path)
				}
				return "", fmt.Errorf("patch: reading %s: %w", op.Path, err)
			}
			updated, err := applyHunks(op.Path, original, op.Hunks)
			if err != nil {
				return "", err
			}
			target := op.Path
			if strings.TrimSpace(op.MoveTo) != "" {
				target = op.MoveTo
			}
			if err := write(target, updated); err != nil {
				return "", fmt.Errorf("patch: writing %s: %w", target, err)
			}
			if target != op.Path {
				if err := del(op.Path); err != nil {
					return "", fmt.Errorf("patch: removing moved source %s: %w", op.Path, err)
				}
				fmt.Fprintf(&summary, "M %s -> %s\n", op.Path, target)
			} else {
				fmt.Fprintf(&summary, "U %s\n", op.Path)
			}

		default:
			return "", fmt.Errorf("patch: unknown operation kind %q", op.Kind)
		}
	}
	return summary.String(), nil
}

// applyHunks applies every hunk in order against original. Each hunk is
// located by searching the whole current content (with earlier hunks already
// applied) for a unique match; no preferred position or line offset is used.
func applyHunks(path string, original []byte, hunks []Hunk) ([]byte, error) {
	text := strings.ReplaceAll(string(original), "\r\n", "\n")
	hadTrailingNewline := strings.HasSuffix(text, "\n")
	text = strings.TrimSuffix(text, "\n")

	var lines []string
	if text != "" {
		lines = strings.Split(text, "\n")
	}

	for idx, h := range hunks {
		from := contextAndRemoveLines(h)
		start, err := locateHunk(lines, from)
		if err != nil {
			return nil, &HunkError{Path: path, HunkIndex: idx, Reason: err.Error()}
		}
		next, err := applyOneHunk(lines, h, start)
		if err != nil {
			return nil, &HunkError{Path: path, HunkIndex: idx, Reason: err.Error()}
		}
		lines = next
	}

	out := strings.Join(lines, "\n")
	if hadTrailingNewline || len(lines) > 0 {
		out += "\n"
	}
	return []byte(out), nil
}

func contextAndRemoveLines(h Hunk) []string {
	out := make([]string, 0, len(h.Lines))
	for _, l := range h.Lines {
		if l.Kind == LineContext || l.Kind == LineRemove {
			out = append(out, l.Text)
		}
	}
	return out
}

// locateHunk finds the unique position in lines where from occurs
// contiguously. Zero matches and more than one match are both failures.
func locateHunk(lines []string, from []string) (int, error) {
	if len(from) == 0 {
		// Pure-insert hunk with no anchor: only valid at end of file.
		return len(lines), nil
	}
	matches := 0
	found := -1
	for pos := 0; pos+len(from) <= len(lines); pos++ {
		ok := true
		for i, want := range from {
			if lines[pos+i] != want {
				ok = false
				break
			}
		}
		if ok {
			matches++
			found = pos
			if matches > 1 {
				return 0, errors.New("ambiguous hunk context: matches more than one location")
			}
		}
	}
	if matches == 0 {
		return 0, errors.New("hunk context not found")
	}
	return found, nil
}

func applyOneHunk(lines []string, h Hunk, start int) ([]string, error) {
	cursor := start
	for _, l := range h.Lines {
		switch l.Kind {
		case LineContext:
			if cursor >= len(lines) || lines[cursor] != l.Text {
				return nil, fmt.Errorf("context mismatch at line %d", cursor+1)
			}
			cursor++
		case LineRemove:
			if cursor >= len(lines) || lines[cursor] != l.Text {
				return nil, fmt.Errorf("remove mismatch at line %d", cursor+1)
			}
			lines = append(lines[:cursor], lines[cursor+1:]...)
		case LineInsert:
			lines = append(lines[:cursor], append([]string{l.Text}, lines[cursor:]...)...)
			cursor++
		default:
			return nil, fmt.Errorf("invalid hunk line kind %q", l.Kind)
		}
	}
	return lines, nil
}

// OSFileOps builds filesystem-backed Read/Write/Delete callbacks rooted at no
// particular directory — paths passed in are used as-is (absolute paths are
// expected to already have been validated by the safety classifier's path
// containment check).
func OSFileOps() (ReadFunc, WriteFunc, DeleteFunc) {
	read := func(path string) ([]byte, error) {
		return os.ReadFile(path)
	}
	write := func(path string, content []byte) error {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		return atomicWriteFile(path, content, 0o644)
	}
	del := func(path string) error {
		return os.Remove(path)
	}
	return read, write, del
}

// atomicWriteFile writes via a temp file + rename so a process crash mid-write
// never leaves a partially written file.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".turnengine-patch-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	_ = os.Chmod(tmpName, perm)
	if err := os.Rename(tmpName, path); err == nil {
		return nil
	}
	_ = os.Remove(path)
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
