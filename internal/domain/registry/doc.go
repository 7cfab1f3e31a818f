// Package registry owns application identities and their published
// versions, including the single-latest invariant: at most one version per
// app is flagged latest, and it is always the most recently published one.
package registry
