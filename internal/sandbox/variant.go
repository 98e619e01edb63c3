package sandbox

import (
	"fmt"
	"runtime"
	"strings"
)

// DefaultVariant picks the platform sandbox variant for the current host.
// Hosts with no sandbox launcher fall back to VariantRaw, which runs the
// command unconfined; the exec handler adds no writable-root containment of
// its own in that case.
func DefaultVariant() Variant {
	switch runtime.GOOS {
	case "darwin":
		return VariantMacosSeatbelt
	case "linux":
		return VariantLinuxLandlock
	default:
		return VariantRaw
	}
}

// wrapForVariant prepends the host sandbox launcher to argv when a platform
// sandbox variant is selected. Semantics and
// result shape are identical to the raw path; only the spawned argv differs.
func wrapForVariant(variant Variant, argv []string, writableRoots []string, networkDisabled bool) []string {
	switch variant {
	case VariantMacosSeatbelt:
		return wrapMacosSeatbelt(argv, writableRoots, networkDisabled)
	case VariantLinuxLandlock:
		return wrapLinuxLandlock(argv, writableRoots, networkDisabled)
	default:
		return argv
	}
}

// wrapMacosSeatbelt builds a minimal seatbelt profile granting write access only
// to writableRoots (and, implicitly, read access everywhere) and invokes
// /usr/bin/sandbox-exec with it. Network access is allowed unless
// networkDisabled is true.
func wrapMacosSeatbelt(argv []string, writableRoots []string, networkDisabled bool) []string {
	var sb strings.Builder
	sb.WriteString("(version 1)(deny default)(allow file-read*)(allow process-fork)(allow process-exec)")
	for _, root := range writableRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		fmt.Fprintf(&sb, "(allow file-write* (subpath %q))", root)
	}
	if !networkDisabled {
		sb.WriteString("(allow network*)")
	}
	wrapped := append([]string{"/usr/bin/sandbox-exec", "-p", sb.String()}, argv...)
	return wrapped
}

// wrapLinuxLandlock shells out to a bwrap-style invocation restricting
// filesystem writes to writableRoots. Landlock enforcement itself requires a
// kernel-side ruleset installer; this wraps the best available userspace
// equivalent (bwrap) the way the macOS path wraps sandbox-exec, keeping the
// ExecResult shape identical between variants.
func wrapLinuxLandlock(argv []string, writableRoots []string, networkDisabled bool) []string {
	wrapped := []string{"bwrap", "--ro-bind", "/", "/", "--dev", "/dev", "--proc", "/proc"}
	for _, root := range writableRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		wrapped = append(wrapped, "--bind", root, root)
	}
	if networkDisabled {
		wrapped = append(wrapped, "--unshare-net")
	}
	wrapped = append(wrapped, argv...)
	return wrapped
}
