// Package logger provides leveled logging for bmlock commands.
//
// Verbosity is controlled by two persistent flags:
//
//   - --verbose: info messages
//   - --debug: info and debug messages
//
// Warnings and errors are always written to stderr.
//
// Nothing logged through this package may contain passphrases or key material.
// Log folder ids, transition names and item counts only.
package logger
