// Package internalcheck holds source-level policy tests for the dilithium
// packages: no variable-time comparison of byte slices, no hex formatting of
// buffers that may hold secrets, and no raw byte slices in log records.
//
// It contains no code used at run time and must not be imported.
package internalcheck
