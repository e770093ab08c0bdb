package tmux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObserveFirstSnapshotIsActive(t *testing.T) {
	d := NewDetector(3)
	assert.Equal(t, StateActive, d.Observe("s1", "hello"))
	assert.Equal(t, 0, d.StableCount("s1"))
}

func TestObserveChangeResetsCounter(t *testing.T) {
	d := NewDetector(3)
	d.Observe("s1", "a")
	d.Observe("s1", "a")
	assert.Equal(t, 1, d.StableCount("s1"))

	assert.Equal(t, StateActive, d.Observe("s1", "b"))
	assert.Equal(t, 0, d.StableCount("s1"))
}

func TestObserveUnchangedIncrementsByExactlyOne(t *testing.T) {
	d := NewDetector(3)
	d.Observe("s1", "a")
	for i := 1; i <= 2; i++ {
		state := d.Observe("s1", "a")
		assert.Equal(t, StateActive, state, "poll %d should still be active", i)
		assert.Equal(t, i, d.StableCount("s1"))
	}
	assert.Equal(t, StateWaiting, d.Observe("s1", "a"))
}

// Poll sequence ["a","a","a","a","b"] must yield
// [active, active, active, waiting, active] at threshold 3.
func TestScenarioStabilityThenChange(t *testing.T) {
	d := NewDetector(3)

	texts := []string{"a", "a", "a", "a", "b"}
	want := []State{StateActive, StateActive, StateActive, StateWaiting, StateActive}

	for i, text := range texts {
		assert.Equal(t, want[i], d.Observe("s1", text), "tick %d", i)
	}
}

func TestObserveStaysWaitingWhileStable(t *testing.T) {
	d := NewDetector(2)
	d.Observe("s1", "a")
	d.Observe("s1", "a")
	assert.Equal(t, StateWaiting, d.Observe("s1", "a"))
	assert.Equal(t, StateWaiting, d.Observe("s1", "a"))
}

func TestObserveGoneClearsTracking(t *testing.T) {
	d := NewDetector(3)
	d.Observe("s1", "a")
	d.Observe("s1", "a")

	assert.Equal(t, StateIdle, d.ObserveGone("s1"))
	assert.Equal(t, 0, d.StableCount("s1"))

	// Reappearing session starts from scratch
	assert.Equal(t, StateActive, d.Observe("s1", "a"))
	assert.Equal(t, 0, d.StableCount("s1"))
}

func TestSweepDropsDeadKeys(t *testing.T) {
	d := NewDetector(3)
	d.Observe("s1", "a")
	d.Observe("s1", "a")
	d.Observe("s2", "b")

	d.Sweep(map[string]bool{"s1": true})

	assert.Equal(t, 1, d.StableCount("s1"), "live key keeps its counter")
	assert.Equal(t, 0, d.StableCount("s2"))
	assert.Equal(t, StateActive, d.Observe("s2", "b"), "swept key starts over")
}

func TestKeysTrackedIndependently(t *testing.T) {
	d := NewDetector(3)
	d.Observe("s1", "x")
	d.Observe("s2", "x")
	d.Observe("s1", "x")

	assert.Equal(t, 1, d.StableCount("s1"))
	assert.Equal(t, 0, d.StableCount("s2"))
}

func TestFingerprintIgnoresANSIAndTrailingSpace(t *testing.T) {
	plain := Fingerprint("hello\nworld")
	colored := Fingerprint("\x1b[32mhello\x1b[0m  \nworld\t")
	assert.Equal(t, plain, colored)
}

func TestFingerprintCollapsesBlankRuns(t *testing.T) {
	a := Fingerprint("a\n\nb")
	b := Fingerprint("a\n\n\n\nb")
	assert.Equal(t, a, b)
}

func TestFingerprintDetectsRealChange(t *testing.T) {
	assert.NotEqual(t, Fingerprint("thinking..."), Fingerprint("done."))
}

func TestStripANSI(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no escapes", "plain text", "plain text"},
		{"color codes", "\x1b[1;32mgreen\x1b[0m", "green"},
		{"osc title bel", "\x1b]0;title\x07rest", "rest"},
		{"osc title st", "\x1b]0;title\x1b\\rest", "rest"},
		{"csi 8bit", "\x9b31mred", "red"},
		{"bare escape", "a\x1bNb", "ab"},
		{"trailing escape", "text\x1b", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripANSI(tt.in))
		})
	}
}

func TestSessionKeyDerivation(t *testing.T) {
	c := NewClient("agent-", 30)

	key := c.SessionKey("My Project!")
	assert.Regexp(t, `^agent-my-project-\d+$`, key)

	// Empty or fully-stripped labels still produce a valid name
	key = c.SessionKey("***")
	assert.Regexp(t, `^agent-session-\d+$`, key)
}
