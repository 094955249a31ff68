//go:build !windows && !linux && !darwin && !freebsd

package preflight

import "errors"

func platformFreeSpace(string) (uint64, error) {
	return 0, errors.New("free space query not supported on this platform")
}
