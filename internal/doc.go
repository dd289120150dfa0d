// Package internal holds helpers shared by the tokenguard engine that are
// not part of the public API surface.
package internal
