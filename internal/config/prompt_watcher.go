package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cvedge/internal/errors"

	"github.com/fsnotify/fsnotify"
)

// PromptWatcher watches the system prompt file and hands new content to a callback
type PromptWatcher struct {
	mu sync.Mutex

	file        string
	lastContent string

	fsWatcher     *fsnotify.Watcher
	debounceDelay time.Duration
	debounceTimer *time.Timer

	stopChan   chan struct{}
	reloadChan chan struct{}
	doneChan   chan struct{}

	onChange func(content string)
	logger   *errors.Logger

	running bool
}

// NewPromptWatcher creates a watcher for file. onChange receives the trimmed file content
// after every successful reload; failed reloads keep the previous prompt.
func NewPromptWatcher(file string, debounceDelay time.Duration, onChange func(string), logger *errors.Logger) *PromptWatcher {
	if debounceDelay == 0 {
		debounceDelay = 500 * time.Millisecond
	}

	return &PromptWatcher{
		file:          file,
		debounceDelay: debounceDelay,
		stopChan:      make(chan struct{}),
		reloadChan:    make(chan struct{}, 1),
		doneChan:      make(chan struct{}),
		onChange:      onChange,
		logger:        logger,
	}
}

// Start begins watching the prompt file
func (pw *PromptWatcher) Start() error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.running {
		return fmt.Errorf("prompt watcher is already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory so atomic rename-into-place writes are seen
	dir := filepath.Dir(pw.file)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	if content, err := os.ReadFile(pw.file); err == nil {
		pw.lastContent = strings.TrimSpace(string(content))
	}

	pw.fsWatcher = watcher
	pw.running = true
	go pw.watchLoop()

	if pw.logger != nil {
		pw.logger.Info("Watching system prompt file", "file", pw.file, "directory", dir)
	}
	return nil
}

// Stop stops the watcher and waits for the event loop to exit
func (pw *PromptWatcher) Stop() error {
	pw.mu.Lock()
	if !pw.running {
		pw.mu.Unlock()
		return nil
	}
	pw.running = false
	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}
	close(pw.stopChan)
	pw.mu.Unlock()

	<-pw.doneChan
	return pw.fsWatcher.Close()
}

// IsRunning returns whether the watcher is currently running
func (pw *PromptWatcher) IsRunning() bool {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	return pw.running
}

func (pw *PromptWatcher) watchLoop() {
	defer close(pw.doneChan)

	for {
		select {
		case event, ok := <-pw.fsWatcher.Events:
			if !ok {
				return
			}
			if pw.shouldProcessEvent(event) {
				pw.scheduleReload()
			}

		case err, ok := <-pw.fsWatcher.Errors:
			if !ok {
				return
			}
			if pw.logger != nil {
				pw.logger.LogError(err, "Prompt watcher error")
			}

		case <-pw.reloadChan:
			pw.reload()

		case <-pw.stopChan:
			return
		}
	}
}

// shouldProcessEvent reports whether event concerns the watched file
func (pw *PromptWatcher) shouldProcessEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(pw.file) && filepath.Base(event.Name) != filepath.Base(pw.file) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (pw *PromptWatcher) scheduleReload() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if pw.debounceTimer != nil {
		pw.debounceTimer.Stop()
	}

	pw.debounceTimer = time.AfterFunc(pw.debounceDelay, func() {
		select {
		case pw.reloadChan <- struct{}{}:
		default:
		}
	})
}

func (pw *PromptWatcher) reload() {
	content, err := LoadPromptFile(pw.file)
	if err != nil {
		if pw.logger != nil {
			pw.logger.Warn("Failed to reload system prompt, keeping previous prompt", "file", pw.file, "error", err)
		}
		return
	}
	if content == pw.lastContent {
		return
	}

	pw.lastContent = content
	if pw.logger != nil {
		pw.logger.Info("System prompt reloaded", "file", pw.file, "chars", len(content))
	}
	pw.onChange(content)
}
