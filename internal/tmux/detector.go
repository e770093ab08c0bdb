package tmux

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
)

// State is the detector's classification of one session for one poll tick.
type State string

const (
	// StateActive: output changed since the last poll, the assistant is
	// computing or streaming.
	StateActive State = "active"

	// StateWaiting: output unchanged for the stability threshold, the
	// assistant is most likely waiting on the user.
	StateWaiting State = "waiting"

	// StateIdle: no classifiable signal (capture failed or vanished).
	StateIdle State = "idle"
)

// DefaultStabilityThreshold is how many consecutive unchanged polls flip a
// session from active to waiting. At a ~2s poll interval this approximates
// "quiet for ~6 seconds".
const DefaultStabilityThreshold = 3

// Detector classifies session activity from captured terminal text alone,
// with no cooperation from the launched program. It fingerprints each
// snapshot and counts consecutive unchanged polls per session key.
type Detector struct {
	threshold int

	mu    sync.Mutex
	state map[string]*keyState
}

type keyState struct {
	fingerprint string
	stable      int
}

// NewDetector creates a detector. threshold <= 0 uses the default.
func NewDetector(threshold int) *Detector {
	if threshold <= 0 {
		threshold = DefaultStabilityThreshold
	}
	return &Detector{
		threshold: threshold,
		state:     make(map[string]*keyState),
	}
}

// Observe classifies one captured snapshot for a session key.
//
// A changed (or first-seen) fingerprint means the assistant is producing
// output: active, counter reset. An unchanged fingerprint increments the
// counter; once it reaches the threshold the session is waiting.
func (d *Detector) Observe(key, snapshot string) State {
	fp := Fingerprint(snapshot)

	d.mu.Lock()
	defer d.mu.Unlock()

	ks, ok := d.state[key]
	if !ok || ks.fingerprint != fp {
		d.state[key] = &keyState{fingerprint: fp}
		return StateActive
	}

	ks.stable++
	if ks.stable >= d.threshold {
		return StateWaiting
	}
	return StateActive
}

// ObserveGone records a failed capture: the session vanished or produced
// no signal. Clears any stability tracking so a reappearing session starts
// fresh.
func (d *Detector) ObserveGone(key string) State {
	d.mu.Lock()
	delete(d.state, key)
	d.mu.Unlock()
	return StateIdle
}

// Forget drops all tracking for a session key (killed or pruned).
func (d *Detector) Forget(key string) {
	d.mu.Lock()
	delete(d.state, key)
	d.mu.Unlock()
}

// Sweep drops tracking for every key absent from live, bounding detector
// state to sessions that still exist.
func (d *Detector) Sweep(live map[string]bool) {
	d.mu.Lock()
	for key := range d.state {
		if !live[key] {
			delete(d.state, key)
		}
	}
	d.mu.Unlock()
}

// StableCount returns the current stability counter for a key. Tests only.
func (d *Detector) StableCount(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ks, ok := d.state[key]; ok {
		return ks.stable
	}
	return 0
}

// Fingerprint computes an equality-preserving digest of captured text.
// Collisions are irrelevant here; only change detection matters. The text
// is normalized first so cursor blinks and trailing-space jitter do not
// register as activity.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(normalizeContent(content)))
	return hex.EncodeToString(sum[:])
}

// normalizeContent strips ANSI sequences, trims trailing whitespace per
// line and collapses runs of blank lines.
func normalizeContent(content string) string {
	content = StripANSI(content)

	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// StripANSI removes ANSI escape codes in a single O(n) pass. Regex is
// avoided on purpose: malformed escape sequences can trigger catastrophic
// backtracking on large pane captures.
func StripANSI(content string) string {
	// Fast path: no escape chars at all
	if strings.IndexByte(content, '\x1b') < 0 && strings.IndexByte(content, '\x9b') < 0 {
		return content
	}

	var b strings.Builder
	b.Grow(len(content))

	i := 0
	for i < len(content) {
		if content[i] == '\x1b' {
			// CSI sequence: ESC [ ... letter
			if i+1 < len(content) && content[i+1] == '[' {
				j := i + 2
				for j < len(content) {
					ch := content[j]
					if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
						j++
						break
					}
					j++
				}
				i = j
				continue
			}
			// OSC sequence: ESC ] ... BEL or ST
			if i+1 < len(content) && content[i+1] == ']' {
				if bell := strings.Index(content[i:], "\x07"); bell != -1 {
					i += bell + 1
					continue
				}
				if st := strings.Index(content[i:], "\x1b\\"); st != -1 {
					i += st + 2
					continue
				}
			}
			// Any other escape: ESC plus one char
			if i+1 < len(content) {
				i += 2
				continue
			}
			i++
			continue
		}
		// 8-bit CSI (0x9B)
		if content[i] == '\x9b' {
			j := i + 1
			for j < len(content) {
				ch := content[j]
				if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
					j++
					break
				}
				j++
			}
			i = j
			continue
		}
		b.WriteByte(content[i])
		i++
	}

	return b.String()
}
