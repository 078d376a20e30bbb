package renderer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	v1 "chatreel/internal/contracts/renderer/v1"
	"chatreel/internal/pkg/errors"
)

// CommandEngine runs a local render program as
//
//	<command> <propsPath> <outputPath> <compositionId>
//
// where propsPath holds the JSON spec. A non-zero exit fails the render and
// the tail of stderr becomes the diagnostic.
type CommandEngine struct {
	command string
	workDir string
	// waitDelay bounds how long Wait lingers on inherited pipes after a kill.
	waitDelay time.Duration
}

func NewCommandEngine(command, workDir string) *CommandEngine {
	return &CommandEngine{command: command, workDir: workDir, waitDelay: 5 * time.Second}
}

func (e *CommandEngine) Name() string { return "command" }

func (e *CommandEngine) Render(ctx context.Context, spec v1.RenderSpec) error {
	props, err := e.writeProps(spec)
	if err != nil {
		return err
	}
	defer os.Remove(props)

	cmd := exec.CommandContext(ctx, e.command, props, spec.OutputPath, spec.Composition)
	cmd.Dir = e.workDir
	cmd.WaitDelay = e.waitDelay
	stderr := newTailBuffer(maxDiagnostic)
	cmd.Stderr = stderr
	cmd.Stdout = nil

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		diag := strings.TrimSpace(stderr.String())
		if diag == "" {
			diag = err.Error()
		}
		return errors.WrapWithCode(err, errors.CodeRenderFailed, "renderer.command",
			fmt.Sprintf("render command failed: %s", diag))
	}
	return nil
}

func (e *CommandEngine) writeProps(spec v1.RenderSpec) (string, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return "", errors.Wrap(err, "renderer.command", "encode props")
	}
	dir := e.workDir
	if dir == "" {
		dir = os.TempDir()
	}
	p := filepath.Join(dir, fmt.Sprintf("props_%s_%s.json", spec.JobID, uuid.NewString()))
	if err := os.WriteFile(p, data, 0o600); err != nil {
		return "", errors.Wrap(err, "renderer.command", "write props")
	}
	return p, nil
}
