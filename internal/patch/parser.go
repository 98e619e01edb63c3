package patch

import (
	"fmt"
	"strings"
)

const (
	beginMarker  = "*** Begin Patch"
	endMarker    = "*** End Patch"
	addPrefix    = "*** Add File: "
	updatePrefix = "*** Update File: "
	deletePrefix = "*** Delete File: "
	moveToPrefix = "*** Move to: "
	hunkPrefix   = "@@"
)

// Parse parses a patch envelope into an ordered operation list.
func Parse(text string) (Patch, error) {
	lines := splitLines(text)
	i := 0
	for i < len(lines) && strings.TrimSpace(lines[i]) == "" {
		i++
	}
	if i >= len(lines) || strings.TrimSpace(lines[i]) != beginMarker {
		return Patch{}, fmt.Errorf("patch: missing %q header", beginMarker)
	}
	i++

	var ops []Op
	for i < len(lines) {
		line := lines[i]
		trimmed := strings.TrimRight(line, "\r")
		switch {
		case trimmed == endMarker:
			return Patch{Ops: ops}, nil
		case strings.HasPrefix(trimmed, addPrefix):
			op, next, err := parseAdd(lines, i)
			if err != nil {
				return Patch{}, err
			}
			ops = append(ops, op)
			i = next
		case strings.HasPrefix(trimmed, updatePrefix):
			op, next, err := parseUpdate(lines, i)
			if err != nil {
				return Patch{}, err
			}
			ops = append(ops, op)
			i = next
		case strings.HasPrefix(trimmed, deletePrefix):
			path := strings.TrimSpace(strings.TrimPrefix(trimmed, deletePrefix))
			if path == "" {
				return Patch{}, fmt.Errorf("patch: empty path in delete header at line %d", i+1)
			}
			ops = append(ops, Op{Kind: OpDelete, Path: path})
			i++
		case strings.TrimSpace(trimmed) == "":
			i++
		default:
			return Patch{}, fmt.Errorf("patch: unexpected line %d: %q", i+1, line)
		}
	}
	return Patch{}, fmt.Errorf("patch: missing %q footer", endMarker)
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

func parseAdd(lines []string, start int) (Op, int, error) {
	path := strings.TrimSpace(strings.TrimPrefix(lines[start], addPrefix))
	if path == "" {
		return Op{}, 0, fmt.Errorf("patch: empty path in add header at line %d", start+1)
	}
	i := start + 1
	var content strings.Builder
	for i < len(lines) {
		line := lines[i]
		if isOpHeader(line) || strings.TrimRight(line, "\r") == endMarker {
			break
		}
		if strings.HasPrefix(line, "+") {
			content.WriteString(line[1:])
			content.WriteString("\n")
		} else if strings.TrimSpace(line) != "" {
			return Op{}, 0, fmt.Errorf("patch: add body line %d must start with '+': %q", i+1, line)
		}
		i++
	}
	return Op{Kind: OpAdd, Path: path, Content: content.String()}, i, nil
}

func parseUpdate(lines []string, start int) (Op, int, error) {
	path := strings.TrimSpace(strings.TrimPrefix(lines[start], updatePrefix))
	if path == "" {
		return Op{}, 0, fmt.Errorf("patch: empty path in update header at line %d", start+1)
	}
	op := Op{Kind: OpUpdate, Path: path}
	i := start + 1
	if i < len(lines) && strings.HasPrefix(strings.TrimRight(lines[i], "\r"), moveToPrefix) {
		op.MoveTo = strings.TrimSpace(strings.TrimPrefix(strings.TrimRight(lines[i], "\r"), moveToPrefix))
		i++
	}

	for i < len(lines) {
		line := strings.TrimRight(lines[i], "\r")
		if isOpHeader(line) || line == endMarker {
			break
		}
		if strings.HasPrefix(line, hunkPrefix) {
			hunk := Hunk{Anchor: strings.TrimSpace(strings.TrimPrefix(line, hunkPrefix))}
			i++
			for i < len(lines) {
				l := strings.TrimRight(lines[i], "\r")
				if isOpHeader(l) || l == endMarker || strings.HasPrefix(l, hunkPrefix) {
					break
				}
				if l == "" {
					i++
					continue
				}
				kind := LineKind(l[0])
				switch kind {
				case LineContext, LineRemove, LineInsert:
					hunk.Lines = append(hunk.Lines, HunkLine{Kind: kind, Text: l[1:]})
				default:
					return Op{}, 0, fmt.Errorf("patch: invalid hunk line %d: %q", i+1, l)
				}
				i++
			}
			op.Hunks = append(op.Hunks, hunk)
			continue
		}
		if strings.TrimSpace(line) == "" {
			i++
			continue
		}
		return Op{}, 0, fmt.Errorf("patch: unexpected line %d in update body: %q", i+1, line)
	}
	if len(op.Hunks) == 0 {
		return Op{}, 0, fmt.Errorf("patch: update file %q has no hunks", path)
	}
	return op, i, nil
}

func isOpHeader(line string) bool {
	trimmed := strings.TrimRight(line, "\r")
	return strings.HasPrefix(trimmed, addPrefix) ||
		strings.HasPrefix(trimmed, updatePrefix) ||
		strings.HasPrefix(trimmed, deletePrefix)
}
