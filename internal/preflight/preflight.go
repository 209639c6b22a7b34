package preflight

import (
	"context"

	"tally/internal/config"
	"tally/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Pinger is a store whose connection can be verified.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Targets are the opened stores to check. Nil targets are reported as not opened.
type Targets struct {
	Store  Pinger
	Ledger Pinger
	Blobs  Prober
}

// RunAll executes every applicable preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config, targets Targets) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))
	if cfg.Storage.Backend == config.StorageLocal {
		results = append(results, CheckDirectoryAccess("Document directory", cfg.Paths.BlobDir))
	}

	if len(cfg.Sources) > 0 {
		results = append(results, CheckReadableFile("Gmail credentials", cfg.Gmail.CredentialsPath, "run tally auth gmail after downloading the OAuth client file"))
		results = append(results, CheckReadableFile("Gmail token", cfg.Gmail.TokenPath, "run tally auth gmail"))
	}

	for _, status := range CheckSystemDeps(ctx, cfg) {
		results = append(results, binaryResult(status))
	}

	results = append(results, CheckPing(ctx, "Document database", targets.Store))
	results = append(results, CheckPing(ctx, "Ledger", targets.Ledger))
	results = append(results, CheckBlobStore(ctx, "Document storage", targets.Blobs))
	return results
}

// Failed reports whether any check in results did not pass.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

func binaryResult(status deps.Status) Result {
	result := Result{Name: status.Name, Passed: status.Available || status.Optional}
	switch {
	case status.Available && status.Version != "":
		result.Detail = status.Path + " (" + status.Version + ")"
	case status.Available:
		result.Detail = status.Path
	case status.Optional:
		result.Detail = status.Detail + " (optional)"
	default:
		result.Detail = status.Detail + "; " + status.Description
	}
	return result
}
