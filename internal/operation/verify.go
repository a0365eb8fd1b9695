package operation

import (
	"context"
	"fmt"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"memengine/internal/domain"
)

// Verifier checks the artifacts an operation produced before it is allowed
// to resolve to Completed. A Verifier that returns an error fails the
// operation with EscalationVerificationFailed.
type Verifier interface {
	Verify(ctx context.Context, artifacts []domain.Artifact) error
}

// SandboxVerifier type-checks generated Go artifacts by compiling them in an
// embedded Yaegi interpreter restricted to the standard library — the same
// sandboxed-execution approach the teacher's autopoiesis package uses to
// validate dynamically generated tool code without `go build`'s crash/hang
// risk or dependency hell. Non-Go artifacts and artifacts with no content
// fall back to a structural check (non-empty content, hash matches).
type SandboxVerifier struct {
	allowedImports map[string]bool
}

// NewSandboxVerifier constructs a SandboxVerifier restricted to a safe
// stdlib import allowlist — no os/exec, net, or syscall access.
func NewSandboxVerifier() *SandboxVerifier {
	return &SandboxVerifier{
		allowedImports: map[string]bool{
			"strings":         true,
			"strconv":         true,
			"fmt":             true,
			"math":            true,
			"regexp":          true,
			"encoding/json":   true,
			"encoding/base64": true,
			"time":            true,
			"sort":            true,
			"bytes":           true,
			"errors":          true,
			"path":            true,
			"path/filepath":   true,
		},
	}
}

// Verify checks every artifact in turn, failing fast on the first one that
// doesn't hold up.
func (v *SandboxVerifier) Verify(ctx context.Context, artifacts []domain.Artifact) error {
	for _, a := range artifacts {
		if err := v.verifyOne(ctx, a); err != nil {
			return fmt.Errorf("artifact %s (%s) failed verification: %w", a.ID, a.Path, err)
		}
	}
	return nil
}

func (v *SandboxVerifier) verifyOne(ctx context.Context, a domain.Artifact) error {
	if strings.TrimSpace(a.Content) == "" {
		return fmt.Errorf("empty content")
	}
	if a.ContentHash != domain.HashContent(a.Content) {
		return fmt.Errorf("content hash mismatch")
	}
	if a.Language != "go" && a.Language != "" {
		return nil
	}
	if !strings.Contains(a.Content, "package ") {
		return nil
	}
	return v.compileInSandbox(ctx, a.Content)
}

// compileInSandbox type-checks code in a fresh Yaegi interpreter limited to
// the standard library. It never invokes main() or any other function; a
// successful Eval only proves the code parses and type-checks.
func (v *SandboxVerifier) compileInSandbox(ctx context.Context, code string) error {
	if err := v.validateImports(code); err != nil {
		return err
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return fmt.Errorf("load stdlib symbols: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := i.Eval(code)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("compile: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// validateImports rejects any import outside the safe stdlib allowlist,
// mirroring the teacher's line-scanning approach rather than a full parser.
func (v *SandboxVerifier) validateImports(code string) error {
	var forbidden []string
	inBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inBlock = true
		case inBlock && trimmed == ")":
			inBlock = false
		case inBlock:
			pkg := strings.Trim(trimmed, `"`)
			if pkg != "" && !v.allowedImports[pkg] {
				forbidden = append(forbidden, pkg)
			}
		case strings.HasPrefix(trimmed, "import "):
			pkg := strings.Trim(strings.TrimPrefix(trimmed, "import "), `"`)
			if pkg != "" && !v.allowedImports[pkg] {
				forbidden = append(forbidden, pkg)
			}
		}
	}
	if len(forbidden) > 0 {
		return fmt.Errorf("forbidden imports: %v", forbidden)
	}
	return nil
}
