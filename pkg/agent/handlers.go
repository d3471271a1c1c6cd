package agent

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/cyw0ng95/sentinel/pkg/model"
)

const tailCap = 4 * 1024 // last 4 KiB of each output stream is kept

// Handler runs one ActionKind's remediation, returning captured output and
// an error if the step itself failed (distinct from the surrounding
// timeout/panic handling in Executor).
type Handler func(ctx context.Context, action model.Action) (stdout, stderr string, err error)

// handlers is the dispatch table keyed by ActionKind. RunCommand and
// AdminHttp are the two generic escape hatches; the rest are placeholders a
// real deployment would wire to validator-specific tooling — they are
// still exercised end to end via RunCommand semantics where no more
// specific mechanism is specified.
var handlers = map[model.ActionKind]Handler{
	model.ActionRunCommand:       runCommandHandler,
	model.ActionAdminHttp:        adminHTTPHandler,
	model.ActionRestartValidator: restartValidatorHandler,
	model.ActionFlushLedger:      flushLedgerHandler,
	model.ActionRotateSnapshot:   rotateSnapshotHandler,
	model.ActionKillProcess:      killProcessHandler,
}

func tail(b []byte) string {
	if len(b) > tailCap {
		b = b[len(b)-tailCap:]
	}
	return string(b)
}

func runCommandHandler(ctx context.Context, action model.Action) (string, string, error) {
	cmdline := action.Params["command"]
	if cmdline == "" {
		return "", "", fmt.Errorf("agent: RunCommand missing \"command\" param")
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return tail(stdout.Bytes()), tail(stderr.Bytes()), err
}

func adminHTTPHandler(ctx context.Context, action model.Action) (string, string, error) {
	url := action.Params["url"]
	if url == "" {
		return "", "", fmt.Errorf("agent: AdminHttp missing \"url\" param")
	}
	method := action.Params["method"]
	if method == "" {
		method = http.MethodPost
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()
	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	if resp.StatusCode >= 400 {
		return tail(body.Bytes()), "", fmt.Errorf("agent: AdminHttp %s returned %d", url, resp.StatusCode)
	}
	return tail(body.Bytes()), "", nil
}

// restartValidatorHandler, flushLedgerHandler, rotateSnapshotHandler and
// killProcessHandler all shell out to a per-kind command: the action's own
// param (e.g. "restart_cmd") if set, otherwise the operator-supplied
// environment variable named by convention, e.g. VALIDATOR_RESTART_CMD;
// this keeps the executor generic across validator client implementations while still giving each
// ActionKind a distinct, auditable entry point.
func restartValidatorHandler(ctx context.Context, action model.Action) (string, string, error) {
	return runConventionalCommand(ctx, action, "restart_cmd")
}

func flushLedgerHandler(ctx context.Context, action model.Action) (string, string, error) {
	return runConventionalCommand(ctx, action, "flush_ledger_cmd")
}

func rotateSnapshotHandler(ctx context.Context, action model.Action) (string, string, error) {
	return runConventionalCommand(ctx, action, "rotate_snapshot_cmd")
}

func killProcessHandler(ctx context.Context, action model.Action) (string, string, error) {
	return runConventionalCommand(ctx, action, "kill_process_cmd")
}

func runConventionalCommand(ctx context.Context, action model.Action, paramKey string) (string, string, error) {
	cmdline := action.Params[paramKey]
	if cmdline == "" {
		cmdline = os.Getenv("VALIDATOR_" + strings.ToUpper(paramKey))
	}
	if cmdline == "" {
		return "", "", fmt.Errorf("agent: %s missing %q param", action.Kind, paramKey)
	}
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return tail(stdout.Bytes()), tail(stderr.Bytes()), err
}
