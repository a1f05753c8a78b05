/*
identity.go - Canonical person-identity normalization

PURPOSE:
  The main report and the training report are uploaded independently and
  spell names inconsistently ("Jane  DOE", "jane doe"). Both files, and every
  historical upload, must agree on who a person is. NormalizePersonKey is the
  single source of that agreement.

INVARIANT:
  Same person => same key, regardless of source file, casing, or whitespace.
  The key is "first last", lowercased, with internal whitespace collapsed.

SEE ALSO:
  - scoring: joins main rows to training credits by this key
  - store/sqlite: members table is unique on this key
*/
package report

import "strings"

// NormalizePersonKey derives the canonical identity key for a person.
// Mononym handling lives in SplitName, which feeds the same token in as
// both parts.
func NormalizePersonKey(firstName, lastName string) string {
	return normalizeName(firstName + " " + lastName)
}

// NormalizeDisplayName canonicalizes a full display name the same way the
// identity key is built, for case/whitespace-insensitive comparisons.
func NormalizeDisplayName(name string) string {
	return normalizeName(name)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// SplitName splits a full name into first and last components: first token
// and last token. A one-token name yields the same token for both, which
// keeps NormalizePersonKey stable for mononyms.
func SplitName(fullName string) (first, last string) {
	parts := strings.Fields(fullName)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], parts[0]
	default:
		return parts[0], parts[len(parts)-1]
	}
}
