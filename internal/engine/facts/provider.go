package facts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	codeerrors "codeintel/internal/core/errors"
)

// Provider turns the current content of one file into facts. Watch mode uses
// it to re-extract changed files.
type Provider interface {
	Extract(ctx context.Context, path string, content []byte) (FileFacts, error)
}

// CommandProvider runs an external extractor. The path is appended as the
// final argument, the content is written to stdin and one FileFacts JSON
// document is read from stdout.
type CommandProvider struct {
	Command []string
	Timeout time.Duration
}

func NewCommandProvider(command []string, timeout time.Duration) (*CommandProvider, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, fmt.Errorf("extraction command must not be empty")
	}
	return &CommandProvider{Command: append([]string(nil), command...), Timeout: timeout}, nil
}

func (p *CommandProvider) Extract(ctx context.Context, path string, content []byte) (FileFacts, error) {
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args := append(append([]string(nil), p.Command[1:]...), path)
	cmd := exec.CommandContext(ctx, p.Command[0], args...)
	cmd.Stdin = bytes.NewReader(content)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = "extractor failed"
		}
		return FileFacts{}, codeerrors.AddContext(
			codeerrors.Wrap(err, codeerrors.CodeMalformedFacts, msg), codeerrors.CtxPath, path)
	}

	var out FileFacts
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return FileFacts{}, codeerrors.AddContext(
			codeerrors.Wrap(err, codeerrors.CodeMalformedFacts, "decode extractor output"), codeerrors.CtxPath, path)
	}
	if out.Path == "" {
		out.Path = path
	}
	// Baselines are compared against HashContent, so the extractor's own
	// hash only stands when there is no content to hash.
	if content != nil || out.Hash == "" {
		out.Hash = HashContent(content)
	}
	return out, nil
}

// StaticProvider serves facts from memory, keyed by normalized path. Used
// when facts are supplied up front and in tests.
type StaticProvider map[string]FileFacts

func (p StaticProvider) Extract(_ context.Context, path string, content []byte) (FileFacts, error) {
	f, ok := p[NormalizePath(path)]
	if !ok {
		return FileFacts{}, codeerrors.AddContext(
			codeerrors.New(codeerrors.CodeNotFound, "no facts for path"), codeerrors.CtxPath, path)
	}
	if content != nil {
		f.Hash = HashContent(content)
	}
	return f, nil
}
