package ledger

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// PartyKey folds a counterparty name into the key used for matching. Names
// are compared after NFC normalisation, case folding and whitespace collapse,
// so "ACME  Ltd" and "acme ltd" refer to the same counterparty.
func PartyKey(name string) string {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return ""
	}
	// Casers are stateful, so each call gets its own.
	return cases.Fold().String(norm.NFC.String(name))
}

// SameParty reports whether two names refer to the same counterparty.
func SameParty(a, b string) bool {
	ka := PartyKey(a)
	return ka != "" && ka == PartyKey(b)
}
