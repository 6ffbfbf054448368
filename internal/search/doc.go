// Package search builds the client-side search dataset and serves it through
// a TTL-bound, single-flight cache.
//
// Build is a pure transform from content entries to documents plus a
// category/subcategory/tag taxonomy. Cache wraps the expensive load+build
// step and Searcher runs full-text queries against the cached dataset.
package search
