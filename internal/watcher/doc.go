// Package watcher detects changes to markdown files under the content root.
//
// HybridWatcher uses fsnotify and falls back to polling where inotify-style
// notification is unavailable (network mounts, some container volumes).
// Bursts of events for the same path are coalesced by a Debouncer.
//
// Detector sits on top and turns file events into article-level signals.
// It owns the underlying watcher lazily: the first subscriber starts it and
// the last unsubscribe stops it.
//
//	d := watcher.NewDetector(root, ".md", watcher.DefaultOptions())
//	unsubscribe := d.Subscribe(watcher.HandlerFunc(func(s watcher.Signal) {
//	    log.Println(s.Kind, s.Slug)
//	}))
//	defer unsubscribe()
package watcher
