// Package history persists executed searches and their results.
//
// The gateway's follow-up workflow depends on it: a search returns
// numbered results, and a later fetch refers to those numbers instead
// of repeating URLs. The store keeps each search with its positioned
// results in SQLite so the numbering survives across process restarts.
package history
