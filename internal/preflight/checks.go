package preflight

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"vidqueue/internal/config"
	"vidqueue/internal/deps"
)

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

// CheckFreeSpace verifies that the filesystem holding path has at least min
// bytes available to unprivileged users.
func CheckFreeSpace(name, path string, min uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free on %s", humanize.IBytes(free), path)
	if free < min {
		return Result{Name: name, Detail: fmt.Sprintf("%s (below %s)", detail, humanize.IBytes(min))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckBinaries reports each external binary the configuration requires.
func CheckBinaries(cfg *config.Config) []Result {
	statuses := deps.CheckBinaries(deps.Requirements(cfg))
	results := make([]Result, 0, len(statuses))
	for _, status := range statuses {
		result := Result{Name: status.Name, Optional: status.Optional, Passed: status.Available}
		if status.Available {
			result.Detail = fmt.Sprintf("Ready (command: %s)", status.Command)
		} else {
			result.Detail = status.Detail
			if result.Detail == "" {
				result.Detail = fmt.Sprintf("%s not found", status.Command)
			}
		}
		results = append(results, result)
	}
	return results
}
