// Package report renders a trip's families, expenses and settlement as a
// shareable text message or as spreadsheet rows.
package report

import (
	"fmt"
	"net/url"
	"strings"

	"tripsplit/internal/core"
	"tripsplit/internal/settlement"
)

const shareBaseURL = "https://wa.me/?text="

// NoSettlementsMessage is shown when every participant is already even.
const NoSettlementsMessage = "No settlements needed"

type Report struct {
	Summary      core.TripSummary
	Families     []core.Family
	Expenses     []core.Expense
	Transactions []settlement.Transaction
}

// Payable returns the transactions worth at least one cent once rounded
// for display. Smaller transfers cannot be paid and are left out.
func Payable(txs []settlement.Transaction) []settlement.Transaction {
	out := make([]settlement.Transaction, 0, len(txs))
	for _, tx := range txs {
		if !tx.Amount.Round(2).IsZero() {
			out = append(out, tx)
		}
	}
	return out
}

// Settled reports whether nobody owes a payable amount.
func (r Report) Settled() bool {
	return len(Payable(r.Transactions)) == 0
}

// Text renders the plain-text report.
func (r Report) Text() string {
	var b strings.Builder
	trip := r.Summary.Trip

	b.WriteString("◆ TRIP EXPENSE REPORT ◆\n")
	fmt.Fprintf(&b, "Trip Name: %s\n", trip.Name)
	fmt.Fprintf(&b, "Start Date: %s\n\n", trip.StartDate)

	b.WriteString("◆ FAMILY DETAILS ◆\n")
	for _, f := range r.Families {
		fmt.Fprintf(&b, "%s: %d %s\n", f.Name, f.Members, plural(f.Members, "member", "members"))
	}
	fmt.Fprintf(&b, "Families: %d, Members: %d, Per Head Cost: %s\n\n",
		r.Summary.FamilyCount, r.Summary.TotalMembers, r.Summary.PerHeadCost.StringFixed(2))

	fmt.Fprintf(&b, "◆ EXPENSE DETAILS (Total: %s) ◆\n", r.Summary.TotalExpenses)
	for _, e := range r.Expenses {
		fmt.Fprintf(&b, "%s: %s (Paid by %s): %s\n", e.Date, e.Description, e.PayerName, e.Amount)
	}

	b.WriteString("\n◆ SETTLEMENT DETAILS ◆\n")
	if r.Settled() {
		b.WriteString(NoSettlementsMessage + "\n")
	}
	for _, tx := range Payable(r.Transactions) {
		fmt.Fprintf(&b, "%s → %s: %s\n", tx.Payer, tx.Receiver, tx.Amount.StringFixed(2))
	}

	b.WriteString("\n◆ Generated using Trip Expense Tracker ◆")
	return b.String()
}

// ShareURL returns a link that opens a chat message prefilled with Text.
func (r Report) ShareURL() string {
	return shareBaseURL + url.QueryEscape(r.Text())
}

// Rows renders the report as a table for spreadsheet export.
func (r Report) Rows() [][]any {
	trip := r.Summary.Trip
	rows := [][]any{
		{"Trip", trip.Name},
		{"Start Date", trip.StartDate.String()},
		{"Total Expenses", r.Summary.TotalExpenses.String()},
		{"Per Head Cost", r.Summary.PerHeadCost.StringFixed(2)},
		{},
		{"Family", "Members"},
	}
	for _, f := range r.Families {
		rows = append(rows, []any{f.Name, f.Members})
	}

	rows = append(rows, []any{}, []any{"Date", "Description", "Paid By", "Amount"})
	for _, e := range r.Expenses {
		rows = append(rows, []any{e.Date.String(), e.Description, e.PayerName, e.Amount.String()})
	}

	rows = append(rows, []any{}, []any{"Payer", "Receiver", "Amount"})
	if r.Settled() {
		rows = append(rows, []any{NoSettlementsMessage})
	}
	for _, tx := range Payable(r.Transactions) {
		rows = append(rows, []any{tx.Payer, tx.Receiver, tx.Amount.StringFixed(2)})
	}
	return rows
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
