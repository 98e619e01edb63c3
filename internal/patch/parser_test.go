package patch

import "testing"

func TestParse_AddFile(t *testing.T) {
	t.Parallel()

	src := "*** Begin Patch\n" +
		"*** Add File: greeting.go\n" +
		"+package greeting\n" +
		"+\n" +
		"+func Hello() string { return \"hi\" }\n" +
		"*** End Patch\n"

	p, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Ops) != 1 {
		t.Fatalf("len(ops)=%d, want 1", len(p.Ops))
	}
	op := p.Ops[0]
	if op.Kind != OpAdd || op.Path != "greeting.go" {
		t.Fatalf("unexpected op: %+v", op)
	}
	want := "package greeting\n\nfunc Hello() string { return \"hi\" }\n"
	if op.Content != want {
		t.Fatalf("content=%q, want %q", op.Content, want)
	}
}

func TestParse_UpdateFileWithHunk(t *testing.T) {
	t.Parallel()

	src := "*** Begin Patch\n" +
		"*** Update File: main.go\n" +
		"@@ func main()\n" +
		" func main() {\n" +
		"-\tfmt.Println(\"old\")\n" +
		"+\tfmt.Println(\"new\")\n" +
		" }\n" +
		"*** End Patch\n"

	p, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	op := p.Ops[0]
	if op.Kind != OpUpdate || op.Path != "main.go" {
		t.Fatalf("unexpected op: %+v", op)
	}
	if len(op.Hunks) != 1 || len(op.Hunks[0].Lines) != 4 {
		t.Fatalf("unexpected hunks: %+v", op.Hunks)
	}
}

func TestParse_UpdateWithMove(t *testing.T) {
	t.Parallel()

	src := "*** Begin Patch\n" +
		"*** Update File: old.go\n" +
		"*** Move to: new.go\n" +
		"@@\n" +
		"-package old\n" +
		"+package new\n" +
		"*** End Patch\n"

	p, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	op := p.Ops[0]
	if op.MoveTo != "new.go" {
		t.Fatalf("move_to=%q, want %q", op.MoveTo, "new.go")
	}
}

func TestParse_DeleteFile(t *testing.T) {
	t.Parallel()

	src := "*** Begin Patch\n*** Delete File: obsolete.go\n*** End Patch\n"
	p, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Ops) != 1 || p.Ops[0].Kind != OpDelete || p.Ops[0].Path != "obsolete.go" {
		t.Fatalf("unexpected ops: %+v", p.Ops)
	}
}

func TestParse_MultipleOperations(t *testing.T) {
	t.Parallel()

	src := "*** Begin Patch\n" +
		"*** Add File: a.go\n" +
		"+package a\n" +
		"*** Delete File: b.go\n" +
		"*** Update File: c.go\n" +
		"@@\n" +
		" context\n" +
		"-old\n" +
		"+new\n" +
		"*** End Patch\n"

	p, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(p.Ops) != 3 {
		t.Fatalf("len(ops)=%d, want 3", len(p.Ops))
	}
	if p.Ops[0].Kind != OpAdd || p.Ops[1].Kind != OpDelete || p.Ops[2].Kind != OpUpdate {
		t.Fatalf("unexpected op ordering: %+v", p.Ops)
	}
}

func TestParse_MissingBeginMarkerFails(t *testing.T) {
	t.Parallel()

	_, err := Parse("*** Add File: a.go\n+x\n*** End Patch\n")
	if err == nil {
		t.Fatalf("expected error for missing begin marker")
	}
}

func TestParse_MissingEndMarkerFails(t *testing.T) {
	t.Parallel()

	_, err := Parse("*** Begin Patch\n*** Add File: a.go\n+x\n")
	if err == nil {
		t.Fatalf("expected error for missing end marker")
	}
}

func TestParse_UpdateWithNoHunksFails(t *testing.T) {
	t.Parallel()

	_, err := Parse("*** Begin Patch\n*** Update File: a.go\n*** End Patch\n")
	if err == nil {
		t.Fatalf("expected error for update with no hunks")
	}
}

func TestIdentifyFiles(t *testing.T) {
	t.Parallel()

	src := "*** Begin Patch\n" +
		"*** Add File: a.go\n" +
		"+package a\n" +
		"*** Delete File: b.go\n" +
		"*** Update File: c.go\n" +
		"@@\n" +
		" x\n" +
		"-y\n" +
		"+z\n" +
		"*** End Patch\n"
	p, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	needed := p.IdentifyFilesNeeded()
	if len(needed) != 2 || needed[0] != "b.go" || needed[1] != "c.go" {
		t.Fatalf("needed=%v, want [b.go c.go]", needed)
	}
	added := p.IdentifyFilesAdded()
	if len(added) != 1 || added[0] != "a.go" {
		t.Fatalf("added=%v, want [a.go]", added)
	}
}
