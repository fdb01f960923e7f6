// Package kvec implements the vector half of the Symbolizer (spec §4.1):
// canonical encoding of embedding vectors into deterministic bytes, the
// content-addressed VCTR| symbol name derived from them, and the cosine
// similarity used by the vector store's nearest-neighbor lookups.
package kvec

import (
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"math"

	"kato/internal/kerr"

	"gonum.org/v1/gonum/floats"
)

// Dim is the fixed embedding dimensionality the spec mandates (§3).
const Dim = 768

// SymbolPrefix is prepended to the hex digest of a canonicalized vector to
// form its Symbol name (spec §3, §6).
const SymbolPrefix = "VCTR|"

// Validate rejects any vector that is not exactly Dim-dimensional.
func Validate(v []float64) error {
	if len(v) != Dim {
		return &kerr.VectorDimensionError{Got: len(v), Want: Dim}
	}
	return nil
}

// CanonicalBytes serializes v into a fixed byte layout: big-endian
// float64s in input order, with -0.0 and NaN canonicalized so that
// semantically identical vectors always hash identically regardless of
// how they were produced upstream (spec §3 invariant: "name is a pure
// function of data").
func CanonicalBytes(v []float64) []byte {
	buf := make([]byte, 8*len(v))
	for i, f := range v {
		f = canonicalizeFloat(f)
		binary.BigEndian.PutUint64(buf[i*8:(i+1)*8], math.Float64bits(f))
	}
	return buf
}

func canonicalizeFloat(f float64) float64 {
	if math.IsNaN(f) {
		return math.NaN() // a single canonical NaN bit pattern
	}
	if f == 0 {
		return 0 // collapses -0.0 into +0.0
	}
	return f
}

// Hash returns the lowercase hex SHA-1 digest of v's canonical byte
// encoding.
func Hash(v []float64) string {
	sum := sha1.Sum(CanonicalBytes(v))
	return fmt.Sprintf("%x", sum)
}

// SymbolName returns the VCTR|<sha1-hex> symbol (spec §3, §6) for v. The
// caller is responsible for validating v's dimensionality first.
func SymbolName(v []float64) string {
	return SymbolPrefix + Hash(v)
}

// CosineSimilarity computes cosine similarity between two equal-length
// vectors using gonum's floats package for the dot product and norms.
func CosineSimilarity(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, &kerr.VectorDimensionError{Got: len(b), Want: len(a)}
	}
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0, nil
	}
	dot := floats.Dot(a, b)
	return dot / (na * nb), nil
}
