// Package sanitizer normalizes participant and availability input before it
// is validated and stored.
//
// All functions are idempotent and never return errors: invalid input comes
// back trimmed or empty and is rejected later by validation.
package sanitizer
