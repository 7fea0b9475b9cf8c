// Package store holds the pieces shared by the result store backends. The
// backends themselves live in the memory, sqlite and postgres subpackages and
// all satisfy vacancy.ResultStore; storetest holds their common contract.
package store
