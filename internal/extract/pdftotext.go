package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"tally/internal/services"
)

// Pdftotext runs poppler's pdftotext in layout mode.
type Pdftotext struct {
	Binary  string
	Timeout time.Duration
}

func (p Pdftotext) Method() string { return "pdftotext_layout" }

// Extract writes data to a temporary file and reads the layout text from
// stdout. The subprocess runs in its own process group, which is killed
// when the timeout elapses.
func (p Pdftotext) Extract(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", services.Wrap(services.ErrCriticalExtraction, stageName, "pdftotext", "empty document", nil)
	}
	tmp, err := os.CreateTemp("", "tally-*.pdf")
	if err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "pdftotext", "create temp file", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", services.Wrap(services.ErrTransient, stageName, "pdftotext", "write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return "", services.Wrap(services.ErrTransient, stageName, "pdftotext", "close temp file", err)
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary := p.Binary
	if binary == "" {
		binary = "pdftotext"
	}
	cmd := exec.CommandContext(runCtx, binary, "-layout", "-enc", "UTF-8", tmp.Name(), "-")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return "", services.Wrap(services.ErrTimeout, stageName, "pdftotext", fmt.Sprintf("no output after %s", timeout), nil)
	}
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "pdftotext failed"
		}
		return "", services.Wrap(services.ErrExternalTool, stageName, "pdftotext", detail, err)
	}
	text := stdout.String()
	if strings.TrimSpace(text) == "" {
		return "", services.Wrap(services.ErrCriticalExtraction, stageName, "pdftotext", "no text layer (scanned document?)", nil)
	}
	return text, nil
}
