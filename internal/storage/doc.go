package storage

// Package storage persists reminder definitions, completion feedback
// and notification dedup state.
//
// Drivers:
//   - "file": dependency-free snapshot + JSONL backend
//   - "sqlite": SQLite database file
