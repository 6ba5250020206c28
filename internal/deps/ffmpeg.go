package deps

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"
)

const versionProbeTimeout = 5 * time.Second

// ProbeVersion runs "<binary> -version" and returns the first output line.
// ffmpeg and most CLI tools print their version banner there. An empty
// string means the binary could not be run.
func ProbeVersion(ctx context.Context, binary string) string {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return ""
	}
	probeCtx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	out, err := exec.CommandContext(probeCtx, binary, "-version").Output()
	if err != nil {
		return ""
	}
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

// WithVersions fills Detail with the version banner of every available
// binary that does not already carry a detail.
func WithVersions(ctx context.Context, statuses []Status) []Status {
	for i := range statuses {
		if !statuses[i].Available || statuses[i].Detail != "" {
			continue
		}
		statuses[i].Detail = ProbeVersion(ctx, statuses[i].Path)
	}
	return statuses
}
