// Package logging configures structured logging for Quorum on top of
// log/slog.
//
// Setup builds a JSON or text handler from config, masks credential-bearing
// attributes (api_key, authorization, token), and installs the logger as
// the slog default so package-level slog calls across the codebase share
// one sink.
package logging
