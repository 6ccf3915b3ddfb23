// Package utils provides shared helpers used across Discret: error
// wrapping and environment-variable lookups (pkg/config builds on both).
package utils

import "fmt"

// Wrap adds context to an error message. It returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
