// Package errors provides the classified error primitives used across wayfind.
//
// Every failure the supervisor or the display server reports to an operator is a
// ClassifiedError carrying a category, a severity, and a retry strategy. The
// categories map onto the failure classes of the service:
//
//   - CategoryConfig: missing or unusable API key, invalid settings
//   - CategoryRuntime: the server runtime (executable) cannot be found
//   - CategoryNetwork: asset sync or upstream proxy fetch failures
//   - CategoryLaunch: the server process failed to start or died during the grace period
//   - CategoryFileSystem: config or asset writes that failed
//
// Example usage:
//
//	err := errors.NewError(errors.CategoryNetwork, "fetch failed").
//		WithSeverity(errors.SeverityWarning).
//		WithRetry(errors.RetryBackoff).
//		WithContext("file", name).
//		WithCause(originalErr).
//		Build()
package errors
