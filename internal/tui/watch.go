package tui

import (
	"errors"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

type fileChangedMsg struct{ text string }

type fileWatchErrMsg struct{ err error }

// fileWatcher reports changes to one file made by other programs. The parent
// directory is watched because many editors save by renaming a temp file
// over the original.
type fileWatcher struct {
	w    *fsnotify.Watcher
	path string
}

func watchFile(path string) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}
	return &fileWatcher{w: w, path: abs}, nil
}

// next waits for the next change to the file and reads it.
func (fw *fileWatcher) next() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case ev, ok := <-fw.w.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(ev.Name) != fw.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				b, err := os.ReadFile(fw.path)
				if errors.Is(err, os.ErrNotExist) {
					// Renamed away; the replacement shows up as a Create.
					continue
				}
				if err != nil {
					return fileWatchErrMsg{err: err}
				}
				return fileChangedMsg{text: string(b)}
			case err, ok := <-fw.w.Errors:
				if !ok {
					return nil
				}
				return fileWatchErrMsg{err: err}
			}
		}
	}
}

func (fw *fileWatcher) Close() error { return fw.w.Close() }
