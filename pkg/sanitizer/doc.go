// Package sanitizer normalizes caller input before validation.
//
// Every function is idempotent and never fails: input that cannot be
// normalized comes back empty so the validator rejects it.
//
// Normalization includes:
//   - Excursion ids and order references: trimmed, control characters removed
//   - Weekday lists: lowercase, deduplicated, empty entries dropped
//   - Free text: whitespace collapsed
package sanitizer
