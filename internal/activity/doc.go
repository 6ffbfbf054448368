// Package activity turns raw article change signals into deduplicated
// activity records and fans them out to stream subscribers.
//
// The pipeline is:
//
//	watcher.Detector -> Service worker -> Normalizer -> Backlog -> stream.Broadcaster
//
// A Service is process scoped. The first Connect subscribes it to the
// detector and the last Connection.Close releases the watch again.
package activity
