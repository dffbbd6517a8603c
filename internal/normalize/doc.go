// Package normalize rewrites commands written with mixed Unix/Windows idioms
// into text the selected shell backend accepts.
//
// The normalizer applies a fixed, ordered set of pattern-based rewrites (it
// deliberately does not parse shell grammar) and memoizes results keyed by the
// exact input text. Normalization is idempotent.
package normalize
