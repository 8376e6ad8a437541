// Package ir holds the architecture description the executor runs:
//
//   - Interned symbols with z-mangled source names
//   - Concrete and symbolic machine values
//   - A flat, serializable instruction form
//   - The immutable shared state (symbol, function, primop tables)
//   - CBOR architecture snapshot loading and initialization
package ir
