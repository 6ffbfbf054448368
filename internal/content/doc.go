// Package content reads the markdown knowledge base from disk.
//
// Each article is a markdown file with a YAML front matter block. The slug is
// the file path relative to the content root without its extension, using
// forward slashes on every platform.
package content
