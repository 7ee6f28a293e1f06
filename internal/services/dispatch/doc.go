// Package dispatch fires reminders when they come due.
//
// Each active reminder gets a one-time timer armed at its next
// occurrence. Fired reminders are pushed onto a bounded queue and
// delivered by a small worker pool. A periodic cron sweep catches
// reminders missed while the process was down, and an optional daily
// digest summarizes the day's reminders per chat.
package dispatch
