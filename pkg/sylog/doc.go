// Package sylog implements circe's leveled logger. It is deliberately small:
// a level threshold, a destination writer, and formatted write calls, with
// no external logging dependency — every package in circe logs through it
// rather than calling fmt.Fprintf/log directly, so CIRCE_MESSAGELEVEL and
// --quiet/--verbose consistently control every component (SPEC_FULL.md's
// ambient stack section).
package sylog
