// Package textutil provides small text helpers shared across packages:
// Ratcliff/Obershelp match ratios for fuzzy name matching and filename
// sanitization for blob keys and intro sample names.
package textutil
