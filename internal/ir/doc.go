// Package ir provides the value model and rule descriptors for ruleunit.
//
// This package contains data types only. Every other internal package imports
// ir; ir imports nothing internal, so descriptors produced by the CUE compiler
// and descriptors written by hand in Go are the same values.
//
// Key design constraints:
//   - Values form a sealed variant (Null, String, Int, Bool, List); no floats,
//     so equality and ordering are exact and canonical JSON is stable
//   - Patterns, rules and queries are plain descriptors evaluated by the
//     engine's generic matcher; nothing is discovered through reflection
//   - All JSON tags use snake_case
//   - Fact identity is a logical counter (FactID), never a wall-clock value
package ir
