// Package registry is the only path by which collaborators read or write
// the application database.
//
// A Registry is an immutable catalog built once at startup: each entry
// fixes a statement with positional placeholders, the ordered parameter
// names that fill them, a declared result shape, and a validator predicate
// over the argument bag. The Executor looks entries up by
// (domain, operation), validates the supplied arguments, binds them
// positionally, and shapes the result. Callers never construct query
// text, so statement shape is fixed at catalog-definition time and
// injection via argument values is structurally impossible.
//
// The registry is read-only after construction; concurrent lookups need
// no synchronization.
package registry
