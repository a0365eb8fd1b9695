package config

import "runtime"

// CodeIndexConfig controls repository scanning, tree-sitter parsing workers,
// and the filesystem watcher that keeps the code index fresh.
type CodeIndexConfig struct {
	// ParseWorkers is a worker count for repository parsing. The code index
	// does not read it.
	ParseWorkers int `yaml:"parse_workers" json:"parse_workers,omitempty"`

	// IgnorePatterns lists paths/dirs (relative to the project root) to skip.
	// The code index does not read it; its sync walk and watcher use their
	// own built-in ignore set.
	IgnorePatterns []string `yaml:"ignore_patterns" json:"ignore_patterns,omitempty"`

	// MaxFileBytes is a size limit for parsing. The code index does not read
	// it.
	MaxFileBytes int64 `yaml:"max_file_bytes" json:"max_file_bytes,omitempty"`

	// Watcher debounce: the delay after the most recent event on a path
	// before that path is considered settled.
	WatcherDebounce string `yaml:"watcher_debounce" json:"watcher_debounce,omitempty"`

	// Watcher batch window: events are coalesced into a single sync batch
	// at most this often.
	WatcherBatchWindow string `yaml:"watcher_batch_window" json:"watcher_batch_window,omitempty"`

	// GitSuppressionWindow: after Watcher.MarkGitOperation is called for an
	// attachment (a pull, checkout or reset), change events for that
	// attachment that settle within this window are dropped instead of
	// synced, so a branch switch touching hundreds of files does not cause a
	// sync storm. No resync is scheduled for the dropped events.
	GitSuppressionWindow string `yaml:"git_suppression_window" json:"git_suppression_window,omitempty"`
}

// DefaultCodeIndexConfig returns defaults for repository scanning and
// watching.
func DefaultCodeIndexConfig() CodeIndexConfig {
	workers := runtime.NumCPU()
	if workers > 16 {
		workers = 16
	}
	if workers < 2 {
		workers = 2
	}
	return CodeIndexConfig{
		ParseWorkers: workers,
		IgnorePatterns: []string{
			".git",
			"node_modules",
			"vendor",
			"dist",
			"build",
			".next",
			"target",
			"bin",
			"obj",
			".terraform",
			".venv",
			"venv",
			".cache",
			"__pycache__",
		},
		MaxFileBytes:         2 * 1024 * 1024,
		WatcherDebounce:      "500ms",
		WatcherBatchWindow:   "2s",
		GitSuppressionWindow: "3s",
	}
}
