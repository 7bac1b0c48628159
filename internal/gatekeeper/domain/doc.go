// Package domain defines the core entities and transition rules for visitor
// session gating.
//
// # Session
//
// A Session is the authoritative record for one tracked visitor. It holds
// exactly one lifecycle state at any time (pending, approved onto a single
// page, approved into rotation, or blocked) plus the rotation fields that are
// only meaningful while rotating.
//
// # Rotation
//
// Rotation cycles a session through a fixed, ordered set of 2-6 pages at an
// operator-chosen interval. Advancing is always by exactly one step, wrapping
// modulo the set length, and stopping freezes the visitor on the page they
// were viewing at that moment.
//
// # Revision
//
// Every committed mutation increments the session revision. The storage layer
// owns the increment; domain transitions only produce the next value of the
// remaining fields. Clients use the revision to discard stale views.
//
// All transitions are pure value operations so they can be validated and
// tested independent of storage and transport.
package domain
