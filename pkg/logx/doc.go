// Package logx wraps zerolog behind a small Field-based API with a
// runtime-reconfigurable fanout: console, file, and a rate-limited
// webhook sink for forwarding warnings to the operator's endpoint.
package logx
