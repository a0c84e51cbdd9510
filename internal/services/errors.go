// Package services holds the use cases behind the HTTP API, the workers and
// the admin CLI. Every operation on user data takes the caller's
// auth.Session explicitly.
package services

import "errors"

var (
	// ErrCategoryInUse is returned when deleting a category that still has transactions.
	ErrCategoryInUse = errors.New("category still has transactions")
	// ErrEmailTaken is returned when registering an address that already has an account.
	ErrEmailTaken = errors.New("email already registered")
)
