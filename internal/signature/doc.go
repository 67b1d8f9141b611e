// Package signature correlates radio device identifiers with a database of
// known weakness signatures.
//
// The database is built from two JSON documents. The vulnerability document
// maps address substrings, device-class patterns, manufacturer ids, service
// UUIDs and platform versions to tag lists. The exploit document lists
// exploit requirements and per-device allow-lists. Both are validated
// against an embedded JSON Schema before use.
//
// A Database is immutable after Load. Correlator lookups never mutate it and
// are safe for concurrent use without locking. A missing or corrupt document
// degrades to an empty pool: no match is evidence of absence, not a fault.
package signature
