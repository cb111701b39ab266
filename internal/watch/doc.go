// Package watch implements the notice pipeline: authenticate against
// the portal, fetch the notice list, detect new entries against the
// persisted cursor, pull detail pages, and deliver the results to the
// webhook sink.
package watch
