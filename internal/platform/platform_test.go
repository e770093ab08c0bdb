package platform

import (
	"runtime"
	"testing"
)

func TestDetect(t *testing.T) {
	p := Detect()
	if p == "" {
		t.Fatal("Detect returned empty platform")
	}

	switch runtime.GOOS {
	case "darwin":
		if p != PlatformMacOS {
			t.Errorf("expected macos on darwin, got %s", p)
		}
	case "linux":
		if p != PlatformLinux && p != PlatformWSL1 && p != PlatformWSL2 {
			t.Errorf("expected a linux variant, got %s", p)
		}
	}

	// Cached result must be stable
	if again := Detect(); again != p {
		t.Errorf("Detect not stable: %s then %s", p, again)
	}
}

func TestPlatformString(t *testing.T) {
	tests := []struct {
		platform Platform
		want     string
	}{
		{PlatformMacOS, "macOS"},
		{PlatformLinux, "Linux"},
		{PlatformWSL1, "WSL1"},
		{PlatformWSL2, "WSL2"},
		{PlatformUnknown, "Unknown"},
		{Platform("bogus"), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.platform.String(); got != tt.want {
			t.Errorf("%s.String() = %s, want %s", string(tt.platform), got, tt.want)
		}
	}
}

func TestCheckFsnotifySupportLocalPath(t *testing.T) {
	// A tmpfs or local path should never produce a warning
	if msg := CheckFsnotifySupport(t.TempDir()); msg != "" {
		t.Logf("unexpected warning for temp dir: %s", msg)
	}
}
