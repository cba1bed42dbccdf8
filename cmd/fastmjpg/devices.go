package main

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/TheChrisland/FastMJPG/v4l2"
)

// listDevices scans /dev/video* character-special files and prints their
// V4L2 capability summary, the way a `v4l2-ctl --list-devices` style tool
// would. A node that cannot be opened or queried gets its own error line
// and the scan continues, so a single bad device does not hide the rest.
// Nodes without capture support are listed too, without the capture flag.
func listDevices(w io.Writer) error {
	paths, err := filepath.Glob("/dev/video*")
	if err != nil {
		return fmt.Errorf("devices: glob /dev/video*: %w", err)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		fmt.Fprintln(w, "no V4L2 devices found")
		return nil
	}

	for _, path := range paths {
		fd, err := v4l2.OpenDevice(path)
		if err != nil {
			fmt.Fprintf(w, "%s: unavailable: %v\n", path, err)
			continue
		}
		cap, err := v4l2.GetCapability(fd)
		_ = v4l2.CloseDevice(fd)
		if err != nil {
			fmt.Fprintf(w, "%s: query failed: %v\n", path, err)
			continue
		}

		flags := ""
		if cap.IsVideoCaptureSupported() {
			flags += " capture"
		}
		if cap.IsStreamingSupported() {
			flags += " streaming"
		}
		fmt.Fprintf(w, "%s: %s%s\n", path, cap.String(), flags)
	}
	return nil
}
