package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
)

func TestZZProbeRawFsnotify(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "pre.json"), []byte("{}"), 0o644)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Add(dir); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "new.json"), []byte("{}"), 0o644)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-w.Events:
			fmt.Println("PROBE event:", ev)
			if filepath.Base(ev.Name) == "new.json" {
				return
			}
		case <-deadline:
			t.Fatal("no raw event")
		}
	}
}

func TestZZProbeInfoWatcher(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "agent-pre-1.json"), []byte(`{"conversation_id":"a"}`), 0o644)
	called := make(chan struct{}, 8)
	w, err := NewInfoWatcher(dir, func() { fmt.Println("PROBE onChange fired"); called <- struct{}{} })
	if err != nil {
		t.Fatal(err)
	}
	go w.Start()
	defer w.Stop()
	time.Sleep(100 * time.Millisecond)
	os.WriteFile(filepath.Join(dir, "agent-new-1.json"), []byte(`{"conversation_id":"b"}`), 0o644)
	select {
	case <-called:
		fmt.Println("PROBE got onChange")
	case <-time.After(2 * time.Second):
		t.Fatal("PROBE no onChange")
	}
}
