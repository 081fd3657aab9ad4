// Package export renders flagged accounts as a downloadable CSV file.
package export

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/opensource-finance/fakeguard/internal/domain"
	"github.com/opensource-finance/fakeguard/internal/signals"
)

// Header is the first row of every export.
var Header = []string{
	"Username",
	"Email",
	"Followers",
	"Following",
	"Posts",
	"Account Age (days)",
	"Suspicion Score",
	"Risk Level",
	"Flags",
}

// FlagSeparator joins an account's flags inside the Flags column.
const FlagSeparator = ";"

// Filename is the suggested attachment name.
const Filename = "flagged_accounts.csv"

// Row builds the export fields for one flagged account.
// Contact and count columns come from the attached record; age comes from
// the account-age finding.
func Row(a domain.AccountAnalysis) []string {
	rec := a.AccountData
	return []string{
		a.Username,
		rec.String(domain.FieldEmail),
		strconv.Itoa(signals.Int(rec, domain.FieldFollowers)),
		strconv.Itoa(signals.Int(rec, domain.FieldFollowing)),
		strconv.Itoa(signals.Int(rec, domain.FieldPosts)),
		strconv.Itoa(a.Details.AccountAge.AgeDays),
		strconv.Itoa(a.SuspicionScore),
		string(a.RiskLevel),
		strings.Join(a.Flags, FlagSeparator),
	}
}

// WriteCSV writes the header and one row per account. Every data field is
// double-quoted, with embedded quotes doubled.
func WriteCSV(w io.Writer, accounts []domain.AccountAnalysis) error {
	bw := bufio.NewWriter(w)

	if _, err := bw.WriteString(strings.Join(Header, ",") + "\n"); err != nil {
		return err
	}
	for _, a := range accounts {
		if err := writeRow(bw, Row(a)); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func writeRow(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte(','); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(quote(f)); err != nil {
			return err
		}
	}
	_, err := w.WriteString("\n")
	return err
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
