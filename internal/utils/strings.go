package utils

import (
	"strings"
)

// TrimOrEmpty normalizes user input without turning nil into "nil".
func TrimOrEmpty(s string) string {
	return strings.TrimSpace(s)
}

// NormalizeSpace collapses repeated whitespace into a single space.
func NormalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizePlace lowercases and collapses whitespace so "  Kigali " == "kigali".
func NormalizePlace(s string) string {
	return strings.ToLower(NormalizeSpace(s))
}

// CleanList trims entries and drops empty ones.
func CleanList(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = NormalizeSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
