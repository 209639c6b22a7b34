package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"tally/internal/config"
	"tally/internal/deps"
)

const pingTimeout = 10 * time.Second

// probeKey is looked up, never written, to exercise blob store credentials.
const probeKey = "preflight/probe"

// Prober is the read side of a blob store.
type Prober interface {
	Exists(ctx context.Context, key string) (bool, error)
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckReadableFile verifies that path is a readable regular file.
func CheckReadableFile(name, path, hint string) Result {
	if path == "" {
		return Result{Name: name, Detail: "path not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (missing; %s)", path, hint)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: path}
}

// CheckPing verifies a store connection with a single bounded attempt.
func CheckPing(ctx context.Context, name string, target Pinger) Result {
	if target == nil {
		return Result{Name: name, Detail: "not opened"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := target.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckBlobStore looks up a probe key to verify access to the document store.
func CheckBlobStore(ctx context.Context, name string, target Prober) Result {
	if target == nil {
		return Result{Name: name, Detail: "not opened"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if _, err := target.Exists(checkCtx, probeKey); err != nil {
		return Result{Name: name, Detail: summarizeError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "reachable"}
}

// CheckSystemDeps evaluates the external binaries the configuration needs.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	requirements := []deps.Requirement{
		{
			Name:        "pdftotext",
			Command:     cfg.Extractor.PdftotextBinary,
			Description: "Required for PDF text extraction (poppler-utils)",
			VersionArgs: []string{"-v"},
		},
	}
	return deps.CheckBinaries(ctx, requirements)
}

func summarizeError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (unreachable)"
	}
	return err.Error()
}
