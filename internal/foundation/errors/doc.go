// Package errors provides the classified error primitives shared across dashlink.
//
// A ClassifiedError carries a category, a severity, a retry hint and structured
// context. Errors are built with the fluent ErrorBuilder:
//
//	err := errors.ChannelError("channel is not open").
//		WithContext("command", cmd).
//		Build()
//
// The CLI and HTTP adapters turn classified errors into exit codes and JSON
// error responses respectively.
package errors
