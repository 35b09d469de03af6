// Package envfile stores operator configuration as KEY=VALUE lines in a text file.
//
// The file is the single source of truth for the API key and display id. Reads scan
// the file on every call so a rotated key is visible to the next caller without any
// cache invalidation. Writes replace the file atomically.
package envfile
