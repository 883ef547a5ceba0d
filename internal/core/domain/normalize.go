package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize strips diacritics, folds case, trims and collapses inner whitespace.
// It is applied once at the boundary; internal logic compares enum values only.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return strings.Join(strings.Fields(strings.ToLower(stripped)), " ")
}

// ReasonCode is the closed set of insemination reasons the linker cares about
type ReasonCode string

const (
	ReasonIATF   ReasonCode = "IATF"
	ReasonResync ReasonCode = "RESYNC"
	ReasonOther  ReasonCode = "OTHER"
)

var reasonAliases = map[string]ReasonCode{
	"iatf":    ReasonIATF,
	"ressinc": ReasonResync,
	"resinc":  ReasonResync,
	"resync":  ReasonResync,
	"resynch": ReasonResync,
}

// ParseReasonCode maps free text to a ReasonCode; unknown text is ReasonOther
func ParseReasonCode(raw string) ReasonCode {
	if code, ok := reasonAliases[Normalize(raw)]; ok {
		return code
	}
	return ReasonOther
}

// RequiresLink reports whether an insemination with this reason must be linked
// to an active protocol application
func (r ReasonCode) RequiresLink() bool {
	return r == ReasonIATF || r == ReasonResync
}

// ActionKind classifies an action step label
type ActionKind string

const (
	ActionInsemination ActionKind = "INSEMINATION"
	ActionOther        ActionKind = "OTHER"
)

// ParseActionKind recognises insemination actions ("Inseminação", "Insemination")
func ParseActionKind(label string) ActionKind {
	switch Normalize(label) {
	case "inseminacao", "insemination":
		return ActionInsemination
	default:
		return ActionOther
	}
}
