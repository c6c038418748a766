package reconciler

import (
	"fmt"
	"strings"

	"golang-bank-reconciliation/internal/models"

	"github.com/cespare/xxhash/v2"
)

// snapshotVersion prefixes the canonical form so the format can evolve.
const snapshotVersion = "v1"

// CanonicalSummary renders the summary in the fixed, order-sensitive form
// that SnapshotHash digests.
func CanonicalSummary(s models.Summary) string {
	fields := []string{
		snapshotVersion,
		"bankTotal=" + s.BankTotal.StringFixed(2),
		"bankMatched=" + s.BankMatched.StringFixed(2),
		"bankPending=" + s.BankPending.StringFixed(2),
		"bankIgnored=" + s.BankIgnored.StringFixed(2),
		"internalTotal=" + s.InternalTotal.StringFixed(2),
		"internalMatched=" + s.InternalMatched.StringFixed(2),
		"unmatchedDifference=" + s.UnmatchedDifference.StringFixed(2),
		fmt.Sprintf("bank=%d", s.BankCount),
		fmt.Sprintf("internal=%d", s.InternalCount),
		fmt.Sprintf("matched=%d", s.MatchedCount),
	}
	return strings.Join(fields, "|")
}

// SnapshotHash is a non-cryptographic fingerprint of the summary and its
// counts. It signals change between saves; it does not protect integrity.
func SnapshotHash(s models.Summary) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(CanonicalSummary(s)))
}
