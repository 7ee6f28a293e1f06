// Package recurrence is the scheduling core of the bot.
//
// It computes the next occurrence of a reminder from a frequency
// specification and a time-of-day, validates the candidate against the
// minimum-lead invariant, and resolves lead-time conflicts into either
// an accepted instant or an adjustment that the caller must confirm.
//
// Everything here is pure: "now" is always injected, no clock reads,
// no I/O. Same inputs always yield the same output.
package recurrence
