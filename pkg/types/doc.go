// Package types defines fleetsched's core data model: Instance, Release,
// Executor and Container, as described in spec §3. These types are shared by
// the store, placement, control-loop and bootstrap packages.
package types
