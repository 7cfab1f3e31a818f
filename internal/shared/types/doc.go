// Package types defines the shared data model for the update-distribution
// engine: applications, published versions, update packages, and the
// resolver's request/response contract.
//
// The domain managers in internal/domain own the lifetimes of these values;
// everything handed across a package boundary is a copy.
package types
