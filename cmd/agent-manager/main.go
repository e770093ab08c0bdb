package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"agentmanager/internal/agent"
	"agentmanager/internal/config"
	"agentmanager/internal/history"
	"agentmanager/internal/logging"
	"agentmanager/internal/manager"
	"agentmanager/internal/platform"
	"agentmanager/internal/presenter"
	"agentmanager/internal/tmux"
	"agentmanager/internal/ui"
)

const Version = "0.3.0"

// Table column widths for list command output
const (
	tableColName = 24
	tableColType = 8
	tableColStat = 12
)

func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss color profile based on terminal
// capabilities. Prefers TrueColor, falls back to ANSI256.
func initColorProfile() {
	// AGENTMANAGER_COLOR: truecolor, 256, 16, none
	if colorEnv := os.Getenv("AGENTMANAGER_COLOR"); colorEnv != "" {
		switch strings.ToLower(colorEnv) {
		case "truecolor", "true", "24bit":
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		case "256", "ansi256":
			lipgloss.SetColorProfile(termenv.ANSI256)
			return
		case "16", "ansi", "basic":
			lipgloss.SetColorProfile(termenv.ANSI)
			return
		case "none", "off", "ascii":
			lipgloss.SetColorProfile(termenv.Ascii)
			return
		}
	}

	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}
	if strings.Contains(os.Getenv("TERM"), "256color") {
		lipgloss.SetColorProfile(termenv.ANSI256)
		return
	}
	lipgloss.SetColorProfile(termenv.ANSI256)
}

func main() {
	args := os.Args[1:]
	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("agent-manager v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "add":
			handleAdd(args[1:])
			return
		case "list", "ls":
			handleList(args[1:])
			return
		case "kill", "rm":
			handleKill(args[1:])
			return
		case "rename", "mv":
			handleRename(args[1:])
			return
		case "history":
			handleHistory(args[1:])
			return
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
			printHelp()
			os.Exit(1)
		}
	}

	runTUI()
}

func printHelp() {
	fmt.Print(`agent-manager - AI assistant session manager

Usage:
  agent-manager              Launch the interactive UI
  agent-manager add <name>   Start a new session
      -t <type>                agent type (default: claude)
      -d <dir>                 working directory
  agent-manager list         List tracked sessions
      --archived               show archived sessions
      --json                   machine-readable output
  agent-manager kill <id>    Kill a session (accepts ID prefix or name)
  agent-manager rename <id> <name>
                             Rename a session
  agent-manager history      Show recent lifecycle events
      -n <count>               number of events (default: 20)
      <id>                     limit to one agent
  agent-manager version      Print version
`)
}

// noInfos stands in when the metadata watcher cannot start.
type noInfos struct{}

func (noInfos) Get(string) *agent.SessionInfo      { return nil }
func (noInfos) Recoverable(string) bool            { return false }
func (noInfos) All() map[string]*agent.SessionInfo { return nil }

// app bundles the wired components shared by the TUI and CLI commands.
type app struct {
	cfg   *config.UserConfig
	store *agent.Store
	infos *agent.InfoWatcher
	mux   *tmux.Client
	mgr   *manager.Manager
	hist  *history.DB
}

func bootstrap() (*app, func(), error) {
	cfg, cfgErr := config.Load()

	dataDir, err := config.DataDir()
	if err != nil {
		return nil, nil, err
	}

	logging.Init(logging.Config{
		LogDir:     dataDir,
		Level:      cfg.Logs.Level,
		Format:     cfg.Logs.Format,
		MaxSizeMB:  cfg.Logs.MaxSizeMB,
		MaxBackups: cfg.Logs.MaxBackups,
		MaxAgeDays: cfg.Logs.MaxAgeDays,
		Debug:      config.Debug(),
	})

	mainLog := logging.ForComponent(logging.CompLifecycle)
	if cfgErr != nil {
		mainLog.Warn("config_load_failed", slog.String("error", cfgErr.Error()))
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", cfgErr)
	}

	if err := tmux.IsAvailable(); err != nil {
		logging.Shutdown()
		return nil, nil, fmt.Errorf("tmux is required: %w", err)
	}

	agentsPath, err := config.AgentsPath()
	if err != nil {
		logging.Shutdown()
		return nil, nil, err
	}
	store, err := agent.NewStore(agentsPath)
	if err != nil {
		logging.Shutdown()
		return nil, nil, err
	}

	sessionsDir, err := config.SessionsDir()
	if err != nil {
		logging.Shutdown()
		return nil, nil, err
	}
	if warning := platform.CheckFsnotifySupport(sessionsDir); warning != "" {
		mainLog.Warn("fsnotify_unreliable", slog.String("detail", warning))
	}
	var infoSource manager.InfoSource = noInfos{}
	infos, err := agent.NewInfoWatcher(sessionsDir, nil)
	if err != nil {
		// Without the watcher no session is ever considered recoverable;
		// everything else still works
		mainLog.Warn("info_watcher_failed", slog.String("error", err.Error()))
	} else {
		go infos.Start()
		infoSource = infos
	}

	var hist *history.DB
	var recorder manager.Recorder
	if historyPath, err := config.HistoryPath(); err == nil {
		if hist, err = history.Open(historyPath); err != nil {
			mainLog.Warn("history_open_failed", slog.String("error", err.Error()))
		} else {
			recorder = hist
		}
	}

	mux := tmux.NewClient(cfg.SessionPrefix, cfg.CaptureLines)
	det := tmux.NewDetector(cfg.StabilityThreshold)
	mgr := manager.New(store, mux, presenter.New(), infoSource, det, cfg.Tools, recorder)

	a := &app{cfg: cfg, store: store, infos: infos, mux: mux, mgr: mgr, hist: hist}
	cleanup := func() {
		if infos != nil {
			infos.Stop()
		}
		if hist != nil {
			hist.Close()
		}
		logging.Shutdown()
	}
	return a, cleanup, nil
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// isNestedSession reports whether we are already inside one of our own
// managed sessions. Launching the TUI there would nest recursively.
func isNestedSession(prefix string) bool {
	if os.Getenv("TMUX") == "" {
		return false
	}
	out, err := tmux.CurrentSessionName(context.Background())
	if err != nil {
		return false
	}
	return strings.HasPrefix(out, prefix)
}

// discoverOrphans adopts running sessions carrying our prefix that the
// store does not know about, so externally created sessions show up too.
func discoverOrphans(ctx context.Context, a *app) {
	live, err := a.mux.ListSessions(ctx)
	if err != nil {
		return
	}
	for key := range live {
		if a.store.GetBySessionKey(key) == nil {
			if _, err := a.mgr.Adopt(key, "claude"); err != nil {
				logging.ForComponent(logging.CompLifecycle).Warn("adopt_failed",
					slog.String("session", key), slog.String("error", err.Error()))
			}
		}
	}
}

func toolTypes(cfg *config.UserConfig) []string {
	types := make([]string, 0, len(cfg.Tools))
	for name := range cfg.Tools {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

func defaultWorkingDir(cfg *config.UserConfig) string {
	if cfg.DefaultWorkingDir != "" {
		return cfg.DefaultWorkingDir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	return "."
}

func runTUI() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		fatalf("the interactive UI needs a terminal; see 'agent-manager help' for CLI commands")
	}

	a, cleanup, err := bootstrap()
	if err != nil {
		fatalf("%v", err)
	}
	defer cleanup()

	if isNestedSession(a.mux.Prefix()) {
		fmt.Fprintln(os.Stderr, "Error: cannot launch the UI inside a managed session.")
		fmt.Fprintln(os.Stderr, "Detach first, or use the CLI commands (add, list, kill).")
		os.Exit(1)
	}

	ui.InitTheme(a.cfg.Theme)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	discoverOrphans(ctx, a)

	// SIGUSR1 dumps the in-memory log ring for post-mortem debugging
	if config.Debug() {
		usr1 := make(chan os.Signal, 1)
		signal.Notify(usr1, syscall.SIGUSR1)
		go func() {
			for range usr1 {
				dataDir, err := config.DataDir()
				if err != nil {
					continue
				}
				dumpPath := filepath.Join(dataDir, fmt.Sprintf("ring-dump-%d.jsonl", time.Now().Unix()))
				if err := logging.DumpRingBuffer(dumpPath); err != nil {
					logging.ForComponent(logging.CompUI).Error("ring_dump_failed",
						slog.String("error", err.Error()))
				}
			}
		}()
	}

	loop := manager.NewLoop(a.mgr, a.cfg.PollInterval())
	loop.Start(ctx)

	home := ui.NewHome(loop, toolTypes(a.cfg), defaultWorkingDir(a.cfg))
	p := tea.NewProgram(home, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fatalf("%v", err)
	}
}

func handleAdd(args []string) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	agentType := fs.String("t", "claude", "agent type")
	workDir := fs.String("d", "", "working directory")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fatalf("usage: agent-manager add [-t type] [-d dir] <name>")
	}
	name := strings.Join(fs.Args(), " ")

	dir := *workDir
	if dir == "" {
		if wd, err := os.Getwd(); err == nil {
			dir = wd
		}
	}

	a, cleanup, err := bootstrap()
	if err != nil {
		fatalf("%v", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	created, err := a.mgr.Create(ctx, *agentType, name, dir)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("created %s (%s) in session %s\n", created.Name, created.AgentType, created.SessionKey)
}

func handleList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	archived := fs.Bool("archived", false, "show archived sessions")
	asJSON := fs.Bool("json", false, "machine-readable output")
	_ = fs.Parse(args)

	a, cleanup, err := bootstrap()
	if err != nil {
		fatalf("%v", err)
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	discoverOrphans(ctx, a)
	snap := a.mgr.RefreshTick(ctx, 1, *archived)

	if *asJSON {
		type row struct {
			ID         string `json:"id"`
			Name       string `json:"name"`
			AgentType  string `json:"agent_type"`
			SessionKey string `json:"session_key"`
			WorkingDir string `json:"working_dir,omitempty"`
			Status     string `json:"status"`
			Archived   bool   `json:"archived"`
			Live       bool   `json:"live"`
		}
		rows := make([]row, 0, len(snap.Agents))
		for _, v := range snap.Agents {
			rows = append(rows, row{
				ID:         v.ID,
				Name:       v.Name,
				AgentType:  v.AgentType,
				SessionKey: v.SessionKey,
				WorkingDir: v.WorkingDir,
				Status:     string(v.Status),
				Archived:   v.Archived,
				Live:       v.Live,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rows)
		return
	}

	if len(snap.Agents) == 0 {
		fmt.Println("no sessions")
		return
	}
	fmt.Printf("%s %s %s %s\n",
		runewidth.FillRight("NAME", tableColName),
		runewidth.FillRight("TYPE", tableColType),
		runewidth.FillRight("STATUS", tableColStat),
		"SESSION")
	for _, v := range snap.Agents {
		fmt.Printf("%s %s %s %s\n",
			runewidth.FillRight(runewidth.Truncate(v.Name, tableColName, "…"), tableColName),
			runewidth.FillRight(v.AgentType, tableColType),
			runewidth.FillRight(string(v.Status), tableColStat),
			v.SessionKey)
	}
}

func handleKill(args []string) {
	if len(args) < 1 {
		fatalf("usage: agent-manager kill <id-or-name>")
	}
	target := args[0]

	a, cleanup, err := bootstrap()
	if err != nil {
		fatalf("%v", err)
	}
	defer cleanup()

	found := resolveAgent(a.store, target)
	if found == nil {
		fatalf("no session matches %q", target)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.mgr.Kill(ctx, found.ID); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("killed %s\n", found.Name)
}

func handleRename(args []string) {
	if len(args) < 2 {
		fatalf("usage: agent-manager rename <id-or-name> <new name>")
	}
	target := args[0]
	newName := strings.Join(args[1:], " ")

	a, cleanup, err := bootstrap()
	if err != nil {
		fatalf("%v", err)
	}
	defer cleanup()

	found := resolveAgent(a.store, target)
	if found == nil {
		fatalf("no session matches %q", target)
	}
	if err := a.mgr.Rename(found.ID, newName); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("renamed %s to %s\n", found.Name, newName)
}

// resolveAgent finds an agent by exact ID, ID prefix, or exact name.
func resolveAgent(store *agent.Store, target string) *agent.Agent {
	if a := store.Get(target); a != nil {
		return a
	}
	var match *agent.Agent
	for _, archived := range []bool{false, true} {
		for _, a := range store.List(archived) {
			if strings.HasPrefix(a.ID, target) || a.Name == target {
				if match != nil && match.ID != a.ID {
					return nil // ambiguous
				}
				match = a
			}
		}
	}
	return match
}

func handleHistory(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 20, "number of events")
	_ = fs.Parse(args)

	a, cleanup, err := bootstrap()
	if err != nil {
		fatalf("%v", err)
	}
	defer cleanup()

	if a.hist == nil {
		fatalf("history log unavailable")
	}

	var events []history.Event
	if fs.NArg() > 0 {
		target := resolveAgent(a.store, fs.Arg(0))
		id := fs.Arg(0)
		if target != nil {
			id = target.ID
		}
		events, err = a.hist.ForAgent(id, *limit)
	} else {
		events, err = a.hist.Recent(*limit)
	}
	if err != nil {
		fatalf("%v", err)
	}

	for _, e := range events {
		name := e.AgentName
		if name == "" {
			name = e.AgentID
		}
		detail := ""
		if e.Detail != "" {
			detail = " " + e.Detail
		}
		fmt.Printf("%s  %-12s %s%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			e.Event, name, detail)
	}
}
