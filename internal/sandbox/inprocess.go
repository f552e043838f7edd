package sandbox

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// inProcessExecutor runs code directly on the host using the local language
// runtime, with no container or remote isolation. It is the fallback of
// last resort, selected only when neither a remote sandbox nor a container
// runtime is available, and disabled entirely when guardrails run strict.
type inProcessExecutor struct {
	language string
}

func newInProcessExecutor(language string) (*inProcessExecutor, error) {
	bin, err := inProcessInterpreter(language)
	if err != nil {
		return nil, err
	}
	if _, err := exec.LookPath(bin); err != nil {
		return nil, fmt.Errorf("in-process backend requires %q on PATH: %w", bin, err)
	}
	return &inProcessExecutor{language: language}, nil
}

// Run executes the workspace's main file using the host's local interpreter.
func (e *inProcessExecutor) Run(ctx context.Context, params *ExecuteParams, workspace string) (*ExecuteResult, error) {
	args := inProcessArgs(params.Language)

	cmd := exec.CommandContext(ctx, args[0], append(args[1:], filepath.Join(workspace, getMainFilename(params.Language)))...)
	cmd.Dir = workspace
	if params.Stdin != "" {
		cmd.Stdin = strings.NewReader(params.Stdin)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &ExecuteResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else if ctx.Err() != nil {
			result.Timeout = true
			result.Status = ExitTimeout
			result.Error = "execution timeout"
		} else {
			result.Status = ExitSandboxDown
			result.Error = err.Error()
		}
	}

	return result, nil
}

// Language returns the language this executor handles.
func (e *inProcessExecutor) Language() string {
	return e.language
}

// Close is a no-op: there is no subprocess or connection to release.
func (e *inProcessExecutor) Close() error {
	return nil
}

func inProcessInterpreter(language string) (string, error) {
	switch language {
	case "python":
		return "python3", nil
	case "nodejs":
		return "node", nil
	case "go":
		return "go", nil
	case "bash":
		return "bash", nil
	default:
		return "", fmt.Errorf("unsupported language for in-process backend: %s", language)
	}
}

func inProcessArgs(language string) []string {
	switch language {
	case "python":
		return []string{"python3"}
	case "nodejs":
		return []string{"node"}
	case "go":
		return []string{"go", "run"}
	case "bash":
		return []string{"bash"}
	default:
		return []string{"cat"}
	}
}
