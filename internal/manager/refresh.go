package manager

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"agentmanager/internal/agent"
	"agentmanager/internal/logging"
	"agentmanager/internal/tmux"
)

var refreshLog = logging.ForComponent(logging.CompRefresh)

// DefaultPollInterval is how often the loop re-derives agent statuses.
const DefaultPollInterval = 2 * time.Second

// initialDelay gives freshly created sessions a moment to draw before
// the first poll fingerprints them.
const initialDelay = 500 * time.Millisecond

// AgentView is one agent's row in a snapshot.
type AgentView struct {
	ID         string
	Name       string
	AgentType  string
	SessionKey string
	WorkingDir string
	Status     agent.Status
	Archived   bool
	CreatedAt  time.Time
	Live       bool
	Info       *agent.SessionInfo
}

// Snapshot is an immutable view of the world at one poll tick. Consumers
// never mutate it; the next tick publishes a fresh one.
type Snapshot struct {
	Seq           uint64
	Agents        []AgentView
	ActiveCount   int
	ArchivedCount int
	ViewArchived  bool
	At            time.Time
}

// RefreshTick performs one poll pass: prune dead untracked sessions,
// re-derive each visible agent's status, and assemble a snapshot. One
// session failing to capture does not abort the pass.
func (m *Manager) RefreshTick(ctx context.Context, seq uint64, viewArchived bool) *Snapshot {
	live, err := m.mux.ListSessions(ctx)
	if err != nil {
		// Multiplexer unreachable: keep last known statuses, never prune
		refreshLog.Warn("list_sessions_failed", slog.String("error", err.Error()))
		live = nil
	}

	if live != nil {
		for _, id := range m.store.Prune(live, m.infos.Recoverable) {
			refreshLog.Info("agent_pruned", slog.String("id", id))
			m.record(id, "", "pruned", "")
		}
		m.detector.Sweep(live)
	}

	agents := m.store.List(viewArchived)
	views := make([]AgentView, 0, len(agents))

	for _, a := range agents {
		status := a.Status
		isLive := live == nil || live[a.SessionKey]

		switch {
		case live != nil && !live[a.SessionKey]:
			m.detector.ObserveGone(a.SessionKey)
			if m.infos.Recoverable(a.SessionKey) {
				status = agent.StatusRecoverable
			} else {
				status = agent.StatusIdle
			}
		case live != nil:
			text, err := m.mux.CapturePane(ctx, a.SessionKey)
			if err != nil {
				refreshLog.Debug("capture_failed",
					slog.String("session", a.SessionKey),
					slog.String("error", err.Error()))
				// Keep the previous status; a transient capture failure
				// says nothing about the session's content
			} else {
				status = statusFor(m.detector.Observe(a.SessionKey, text))
			}
		}

		if status != a.Status {
			refreshLog.Debug("status_changed",
				slog.String("id", a.ID),
				slog.String("from", string(a.Status)),
				slog.String("to", string(status)))
			if status == agent.StatusWaiting || status == agent.StatusRecoverable {
				m.record(a.ID, a.Name, "status", string(status))
			}
			m.store.UpdateStatus(a.ID, status)
		}

		views = append(views, AgentView{
			ID:         a.ID,
			Name:       a.Name,
			AgentType:  a.AgentType,
			SessionKey: a.SessionKey,
			WorkingDir: a.WorkingDir,
			Status:     status,
			Archived:   a.Archived,
			CreatedAt:  a.CreatedAt,
			Live:       isLive,
			Info:       m.infos.Get(a.SessionKey),
		})
	}

	return &Snapshot{
		Seq:           seq,
		Agents:        views,
		ActiveCount:   m.store.Count(false),
		ArchivedCount: m.store.Count(true),
		ViewArchived:  viewArchived,
		At:            time.Now(),
	}
}

func statusFor(s tmux.State) agent.Status {
	switch s {
	case tmux.StateWaiting:
		return agent.StatusWaiting
	case tmux.StateIdle:
		return agent.StatusIdle
	default:
		return agent.StatusActive
	}
}

// Loop runs RefreshTick on a ticker and publishes snapshots. A single
// goroutine owns the cadence; ticks never interleave, and a tick that
// arrives while the previous one is still running is skipped.
type Loop struct {
	mgr      *Manager
	interval time.Duration

	viewArchived atomic.Bool
	ticking      atomic.Bool
	seq          atomic.Uint64

	mu     sync.Mutex
	latest *Snapshot

	updates chan *Snapshot
	trigger chan struct{}
	done    chan struct{}
}

// NewLoop creates a stopped loop. interval <= 0 uses DefaultPollInterval.
func NewLoop(mgr *Manager, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Loop{
		mgr:      mgr,
		interval: interval,
		updates:  make(chan *Snapshot, 1),
		trigger:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Start runs the loop until ctx is cancelled.
func (l *Loop) Start(ctx context.Context) {
	go l.run(ctx)
}

func (l *Loop) run(ctx context.Context) {
	defer close(l.done)

	select {
	case <-time.After(initialDelay):
	case <-ctx.Done():
		return
	}
	l.tick(ctx)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		case <-l.trigger:
			l.tick(ctx)
		}
	}
}

// Wait blocks until the loop goroutine has exited.
func (l *Loop) Wait() {
	<-l.done
}

func (l *Loop) tick(ctx context.Context) {
	if !l.ticking.CompareAndSwap(false, true) {
		refreshLog.Debug("tick_skipped")
		return
	}
	defer l.ticking.Store(false)

	seq := l.seq.Add(1)
	snap := l.mgr.RefreshTick(ctx, seq, l.viewArchived.Load())
	l.publish(snap)
}

// publish installs snap as the latest view unless a newer one already
// landed. Last write wins; consumers only ever see the freshest snapshot.
func (l *Loop) publish(snap *Snapshot) {
	l.mu.Lock()
	if l.latest != nil && l.latest.Seq > snap.Seq {
		l.mu.Unlock()
		return
	}
	l.latest = snap
	l.mu.Unlock()

	select {
	case l.updates <- snap:
	default:
		select {
		case <-l.updates:
		default:
		}
		select {
		case l.updates <- snap:
		default:
		}
	}
}

// Updates yields published snapshots. The channel holds only the most
// recent snapshot; slow consumers miss intermediates, never see stale.
func (l *Loop) Updates() <-chan *Snapshot {
	return l.updates
}

// Latest returns the most recently published snapshot, or nil before the
// first tick completes.
func (l *Loop) Latest() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.latest
}

// RefreshNow requests an immediate tick without waiting for the ticker.
func (l *Loop) RefreshNow() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// ToggleView flips between the default and archived views and returns
// the new setting. The next snapshot reflects it.
func (l *Loop) ToggleView() bool {
	next := !l.viewArchived.Load()
	l.viewArchived.Store(next)
	l.RefreshNow()
	return next
}

// Dispatch routes a command: view and refresh commands are handled here,
// lifecycle commands delegate to the Manager. Every lifecycle command is
// followed by an immediate refresh so the UI converges without waiting a
// full poll interval.
func (l *Loop) Dispatch(ctx context.Context, cmd Command) error {
	switch cmd.Type {
	case ActionToggleView:
		l.ToggleView()
		return nil
	case ActionRefresh:
		l.RefreshNow()
		return nil
	default:
		err := l.mgr.Do(ctx, cmd)
		l.RefreshNow()
		return err
	}
}
