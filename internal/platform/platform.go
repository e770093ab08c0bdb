// Package platform detects the host environment so callers can pick the
// right integrations: which terminal frontend to drive, and whether
// filesystem watching is trustworthy where the session metadata lives.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform represents the detected platform
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformUnknown Platform = "unknown"
)

// cached detection result
var detectedPlatform Platform
var detectionDone bool

// Detect returns the current platform, caching the result
func Detect() Platform {
	if detectionDone {
		return detectedPlatform
	}
	detectedPlatform = detectPlatform()
	detectionDone = true
	return detectedPlatform
}

func detectPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMacOS
	case "linux":
		return detectLinuxOrWSL()
	default:
		return PlatformUnknown
	}
}

// detectLinuxOrWSL distinguishes native Linux from WSL
func detectLinuxOrWSL() Platform {
	if os.Getenv("WSL_DISTRO_NAME") != "" {
		return detectWSLVersion()
	}
	procVersion, err := os.ReadFile("/proc/version")
	if err != nil {
		return PlatformLinux
	}
	if strings.Contains(strings.ToLower(string(procVersion)), "microsoft") {
		return detectWSLVersion()
	}
	return PlatformLinux
}

func detectWSLVersion() Platform {
	procVersion, err := os.ReadFile("/proc/version")
	if err == nil && strings.Contains(string(procVersion), "WSL2") {
		return PlatformWSL2
	}
	// /dev/vsock only exists under the WSL2 VM
	if _, err := os.Stat("/dev/vsock"); err == nil {
		return PlatformWSL2
	}
	// WSL1 has more limitations, so it is the safer assumption
	return PlatformWSL1
}

// IsWSL returns true if running in any WSL environment
func IsWSL() bool {
	p := Detect()
	return p == PlatformWSL1 || p == PlatformWSL2
}

// String returns a human-readable platform name
func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformWSL1:
		return "WSL1"
	case PlatformWSL2:
		return "WSL2"
	default:
		return "Unknown"
	}
}

// CheckFsnotifySupport checks if a path's filesystem supports fsnotify
// events reliably. Returns a warning message for problematic filesystems
// (9p, nfs, cifs, sshfs) or an empty string when watching should work.
// Session metadata on a 9p mount (WSL2 accessing the Windows drive) is
// the common case where watched files never fire events.
func CheckFsnotifySupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}

	// /proc/mounts format: device mountpoint fstype options ...
	// Longest matching mountpoint wins.
	var matchedMount, matchedFsType string
	for _, line := range strings.Split(string(mounts), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mountPoint, fsType := fields[1], fields[2]
		if strings.HasPrefix(absPath, mountPoint) && len(mountPoint) > len(matchedMount) {
			matchedMount = mountPoint
			matchedFsType = fsType
		}
	}

	switch {
	case matchedFsType == "9p":
		return "session metadata on a 9p mount: file watching disabled, recovery info may lag"
	case matchedFsType == "nfs" || matchedFsType == "nfs4":
		return "session metadata on an NFS mount: file watching may be unreliable"
	case matchedFsType == "cifs" || matchedFsType == "smbfs":
		return "session metadata on a CIFS/SMB mount: file watching may be unreliable"
	case strings.HasPrefix(matchedFsType, "fuse.sshfs"):
		return "session metadata on an SSHFS mount: file watching disabled"
	}
	return ""
}
