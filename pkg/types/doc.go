// Package types defines the mapping table, table proxy and primary-key mapper
// interfaces, the endpoint column model, configuration, and the standard
// error values for the idmap storage layer.
//
// See docs/ARCHITECTURE.md § Mapping Tables.
package types
