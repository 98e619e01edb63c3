package patch

import (
	"errors"
	"os"
	"testing"
)

// fakeFS is an in-memory ReadFunc/WriteFunc/DeleteFunc trio for exercising
// Apply without touching disk.
type fakeFS struct {
	files map[string][]byte
}

func newFakeFS(seed map[string]string) *fakeFS {
	files := make(map[string][]byte, len(seed))
	for k, v := range seed {
		files[k] = []byte(v)
	}
	return &fakeFS{files: files}
}

func (f *fakeFS) read(path string) ([]byte, error) {
	data, ok := f.files[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

func (f *fakeFS) write(path string, content []byte) error {
	f.files[path] = content
	return nil
}

func (f *fakeFS) del(path string) error {
	if _, ok := f.files[path]; !ok {
		return os.ErrNotExist
	}
	delete(f.files, path)
	return nil
}

func TestApply_AddWritesNewFile(t *testing.T) {
	t.Parallel()

	fs := newFakeFS(nil)
	p, err := Parse("*** Begin Patch\n*** Add File: new.go\n+package new\n*** End Patch\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	summary, err := Apply(p, fs.read, fs.write, fs.del)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if string(fs.files["new.go"]) != "package new\n" {
		t.Fatalf("new.go=%q", fs.files["new.go"])
	}
	if summary == "" {
		t.Fatalf("expected non-empty summary")
	}
}

func TestApply_AddFailsWhenTargetExists(t *testing.T) {
	t.Parallel()

	fs := newFakeFS(map[string]string{"existing.go": "package existing\n"})
	p, err := Parse("*** Begin Patch\n*** Add File: existing.go\n+package x\n*** End Patch\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Apply(p, fs.read, fs.write, fs.del); err == nil {
		t.Fatalf("expected error adding over an existing file")
	}
}

func TestApply_DeleteFailsWhenMissing(t *testing.T) {
	t.Parallel()

	fs := newFakeFS(nil)
	p, err := Parse("*** Begin Patch\n*** Delete File: ghost.go\n*** End Patch\n")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Apply(p, fs.read, fs.write, fs.del); err == nil {
		t.Fatalf("expected error deleting a nonexistent file")
	}
}

func TestApply_UpdateReplacesMatchedContext(t *testing.T) {
	t.Parallel()

	fs := newFakeFS(map[string]string{
		"main.go": "package main\n\nfunc main() {\n\tfmt.Println(\"old\")\n}\n",
	})
	src := "*** Begin Patch\n" +
		"*** Update File: main.go\n" +
		"@@\n" +
		" func main() {\n" +
		"-\tfmt.Println(\"old\")\n" +
		"+\tfmt.Println(\"new\")\n" +
		" }\n" +
		"*** End Patch\n"
	p, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Apply(p, fs.read, fs.write, fs.del); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := "package main\n\nfunc main() {\n\tfmt.Println(\"new\")\n}\n"
	if string(fs.files["main.go"]) != want {
		t.Fatalf("main.go=%q, want %q", fs.files["main.go"], want)
	}
}

func TestApply_UpdateFailsOnAmbiguousContext(t *testing.T) {
	t.Parallel()

	fs := newFakeFS(map[string]string{
		"dup.go": "func a() {\n\tdo()\n}\n\nfunc b() {\n\tdo()\n}\n",
	})
	src := "*** Begin Patch\n" +
		"*** Update File: dup.go\n" +
		"@@\n" +
		"-\tdo()\n" +
		"+\tdoOther()\n" +
		"*** End Patch\n"
	p, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	_, err = Apply(p, fs.read, fs.write, fs.del)
	if err == nil {
		t.Fatalf("expected ambiguous-match error")
	}
	var hunkErr *HunkError
	if !errors.As(err, &hunkErr) {
		t.Fatalf("error=%v, want *HunkError", err)
	}
}

func TestApply_UpdateFailsWhenContextNotFound(t *testing.T) {
	t.Parallel()

	fs := newFakeFS(map[string]string{"f.go": "package f\n"})
	src := "*** Begin Patch\n" +
		"*** Update File: f.go\n" +
		"@@\n" +
		"-nonexistent line\n" +
		"+replacement\n" +
		"*** End Patch\n"
	p, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Apply(p, fs.read, fs.write, fs.del); err == nil {
		t.Fatalf("expected context-not-found error")
	}
}

func TestApply_UpdateWithMoveRenamesFile(t *testing.T) {
	t.Parallel()

	fs := newFakeFS(map[string]string{"old.go": "package old\n"})
	src := "*** Begin Patch\n" +
		"*** Update File: old.go\n" +
		"*** Move to: renamed.go\n" +
		"@@\n" +
		"-package old\n" +
		"+package renamed\n" +
		"*** End Patch\n"
	p, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Apply(p, fs.read, fs.write, fs.del); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if _, ok := fs.files["old.go"]; ok {
		t.Fatalf("old.go should have been removed after move")
	}
	if string(fs.files["renamed.go"]) != "package renamed\n" {
		t.Fatalf("renamed.go=%q", fs.files["renamed.go"])
	}
}

// TestApply_RoundTrip exercises the generate-then-apply round trip: applying
// an Add followed by an Update that edits the just-added content must produce
// the same result as constructing the final content directly.
func TestApply_RoundTrip(t *testing.T) {
	t.Parallel()

	fs := newFakeFS(nil)
	addSrc := "*** Begin Patch\n*** Add File: counter.go\n" +
		"+package counter\n" +
		"+\n" +
		"+func Value() int { return 1 }\n" +
		"*** End Patch\n"
	p1, err := Parse(addSrc)
	if err != nil {
		t.Fatalf("Parse add: %v", err)
	}
	if _, err := Apply(p1, fs.read, fs.write, fs.del); err != nil {
		t.Fatalf("Apply add: %v", err)
	}

	updateSrc := "*** Begin Patch\n" +
		"*** Update File: counter.go\n" +
		"@@\n" +
		"-func Value() int { return 1 }\n" +
		"+func Value() int { return 2 }\n" +
		"*** End Patch\n"
	p2, err := Parse(updateSrc)
	if err != nil {
		t.Fatalf("Parse update: %v", err)
	}
	if _, err := Apply(p2, fs.read, fs.write, fs.del); err != nil {
		t.Fatalf("Apply update: %v", err)
	}

	want := "package counter\n\nfunc Value() int { return 2 }\n"
	if string(fs.files["counter.go"]) != want {
		t.Fatalf("counter.go=%q, want %q", fs.files["counter.go"], want)
	}
}

func TestApply_MultiOperationStopsOnFirstFailure(t *testing.T) {
	t.Parallel()

	fs := newFakeFS(map[string]string{"exists.go": "package exists\n"})
	src := "*** Begin Patch\n" +
		"*** Add File: fresh.go\n" +
		"+package fresh\n" +
		"*** Add File: exists.go\n" +
		"+package clash\n" +
		"*** End Patch\n"
	p, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if _, err := Apply(p, fs.read, fs.write, fs.del); err == nil {
		t.Fatalf("expected failure on second add")
	}
	if _, ok := fs.files["fresh.go"]; !ok {
		t.Fatalf("first operation should have already been applied (no rollback)")
	}
}
