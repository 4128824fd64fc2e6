package preflight

import (
	"vidqueue/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Optional bool   `json:"optional,omitempty"`
	Detail   string `json:"detail"`
}

// MinFreeBytes is the free space below which a working directory fails.
const MinFreeBytes = 5 << 30

// RunAll executes every check applicable to cfg.
func RunAll(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckFreeSpace("Temp free space", cfg.Paths.TempDir, MinFreeBytes),
		CheckFreeSpace("Output free space", cfg.Paths.OutputDir, MinFreeBytes),
	}
	return append(results, CheckBinaries(cfg)...)
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed && !result.Optional {
			failed = append(failed, result)
		}
	}
	return failed
}
