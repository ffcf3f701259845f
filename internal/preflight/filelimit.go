package preflight

import (
	"fmt"
	"syscall"
)

// CheckFileDescriptors verifies the process fd limit can cover the
// index files and HTTP connections held open while serving.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read fd limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, c.minFileDescriptors)
	if rLimit.Cur < c.minFileDescriptors {
		result.Status = StatusFail
		result.Details = "Raise the limit, e.g. 'ulimit -n 10240'"
		return result
	}
	result.Status = StatusPass
	return result
}
