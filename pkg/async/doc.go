// Package async runs background tasks with a timeout and panic recovery.
//
// Request handlers use it for work that should not delay the response, such
// as the submission receipt email. Failures are logged, never returned.
package async
