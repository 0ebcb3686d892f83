package citation

import (
	"regexp"
	"strings"
)

// ClaimKind says how a claim relates to its cited code.
type ClaimKind string

const (
	Extractive  ClaimKind = "extractive"  // restates code content directly
	Abstractive ClaimKind = "abstractive" // describes behavior or intent
	Unknown     ClaimKind = "unknown"
)

// Extractive cues are checked before abstractive ones: a claim that
// names a concrete code element can be checked mechanically even when
// it also uses behavioral language.
var extractivePatterns = []*regexp.Regexp{
	regexp.MustCompile("`[^`]+`"),
	regexp.MustCompile(`"[^"]+"`),
	regexp.MustCompile(`(?i)\bthe\s+\x60?[A-Za-z_][A-Za-z0-9_]*\x60?\s+(function|method|class|type|struct|variable|constant|field)\b`),
	regexp.MustCompile(`(?i)\b(function|method|class|type|struct)\s+\x60?[A-Za-z_][A-Za-z0-9_]*\x60?\b`),
	regexp.MustCompile(`(?i)\b(is defined as|is declared|returns|takes|accepts|raises|imports)\b`),
}

var abstractiveVerbs = []string{
	"handles", "implements", "ensures", "manages", "coordinates",
	"orchestrates", "provides", "enables", "guarantees", "is responsible for",
	"deals with", "controls", "supports",
}

// Classify decides how a claim should be verified.
func Classify(claim string) ClaimKind {
	for _, p := range extractivePatterns {
		if p.MatchString(claim) {
			return Extractive
		}
	}
	lower := strings.ToLower(claim)
	for _, v := range abstractiveVerbs {
		if strings.Contains(lower, v) {
			return Abstractive
		}
	}
	return Unknown
}
