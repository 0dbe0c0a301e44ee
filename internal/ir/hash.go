package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainBinding = "ruleunit/binding/v1"
	DomainRuleSet = "ruleunit/ruleset/v1"
)

// hashWithDomain computes SHA-256 over domain + 0x00 + data.
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// BindingHash computes a stable hash of a binding.
// The journal stores it so identical firings can be grouped across sessions.
func BindingHash(b Binding) (string, error) {
	obj := map[string]any{
		"vars":  b.Vars,
		"facts": b.Facts,
	}
	if b.Vars == nil {
		obj["vars"] = Fields{}
	}
	if b.Facts == nil {
		obj["facts"] = map[string]FactID{}
	}
	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("BindingHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBinding, canonical), nil
}

// MustBindingHash is like BindingHash but panics on error.
// Bindings built from Values always marshal, so this is safe for engine use.
func MustBindingHash(b Binding) string {
	h, err := BindingHash(b)
	if err != nil {
		panic(err)
	}
	return h
}

// RuleSetHash identifies a set of rule and query names with their salience.
// It changes whenever a rule is added, removed or reprioritized.
func RuleSetHash(rules []RuleSpec, queries []QuerySpec) string {
	var b strings.Builder
	for _, r := range rules {
		b.WriteString("rule:")
		b.WriteString(r.Name)
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(r.Salience))
		b.WriteByte('\n')
	}
	for _, q := range queries {
		b.WriteString("query:")
		b.WriteString(q.Name)
		b.WriteByte('\n')
	}
	return hashWithDomain(DomainRuleSet, []byte(b.String()))
}

// TupleKey renders a rule name and fact tuple as an activation identity.
// Example: TupleKey("collect", []FactID{3, 7}) == "collect/3,7"
func TupleKey(rule string, facts []FactID) string {
	var b strings.Builder
	b.WriteString(rule)
	b.WriteByte('/')
	for i, id := range facts {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(int64(id), 10))
	}
	return b.String()
}
