// Package settlement computes who pays whom so that every participant of a
// trip ends up carrying the same cost per head.
//
// The engine is a pure function of its input: callers aggregate the
// participants of one trip (name, head count, total paid) and pass them in
// store enumeration order. That order is the tie-break rule for the greedy
// netting loop, so identical input always yields identical output.
package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidInput is returned when a participant cannot take part in a
// settlement. No partial result accompanies it.
var ErrInvalidInput = errors.New("invalid settlement input")

// Epsilon is the magnitude below which a balance counts as settled.
var Epsilon = decimal.New(1, -9)

type (
	// Participant is a family or individual unit within a trip.
	Participant struct {
		Name       string
		HeadCount  int
		AmountPaid decimal.Decimal
	}

	// Balance is a participant's net position: positive when the
	// participant is owed money, negative when it owes.
	Balance struct {
		Name   string
		Amount decimal.Decimal
	}

	// Transaction instructs Payer to pay Amount to Receiver.
	Transaction struct {
		Payer    string
		Receiver string
		Amount   decimal.Decimal
	}
)

// Validate reports whether every participant is usable: non-empty unique
// names, at least one head, and a non-negative amount paid.
func Validate(participants []Participant) error {
	seen := make(map[string]struct{}, len(participants))
	for i, p := range participants {
		if p.Name == "" {
			return fmt.Errorf("%w: participant %d has an empty name", ErrInvalidInput, i)
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("%w: duplicate participant %q", ErrInvalidInput, p.Name)
		}
		seen[p.Name] = struct{}{}
		if p.HeadCount <= 0 {
			return fmt.Errorf("%w: participant %q has head count %d", ErrInvalidInput, p.Name, p.HeadCount)
		}
		if p.AmountPaid.IsNegative() {
			return fmt.Errorf("%w: participant %q has negative amount paid %s", ErrInvalidInput, p.Name, p.AmountPaid)
		}
	}
	return nil
}

// TotalPaid sums the amounts paid by all participants.
func TotalPaid(participants []Participant) decimal.Decimal {
	total := decimal.Zero
	for _, p := range participants {
		total = total.Add(p.AmountPaid)
	}
	return total
}

// TotalHeadCount sums the head counts of all participants.
func TotalHeadCount(participants []Participant) int {
	n := 0
	for _, p := range participants {
		n += p.HeadCount
	}
	return n
}

// PerHeadCost is the total paid divided by the total head count, or zero
// when either is zero.
func PerHeadCost(participants []Participant) decimal.Decimal {
	total := TotalPaid(participants)
	heads := TotalHeadCount(participants)
	if heads <= 0 || !total.IsPositive() {
		return decimal.Zero
	}
	return total.Div(decimal.NewFromInt(int64(heads)))
}

// Balances returns each participant's balance in input order.
func Balances(participants []Participant) []Balance {
	perHead := PerHeadCost(participants)
	out := make([]Balance, len(participants))
	for i, p := range participants {
		share := perHead.Mul(decimal.NewFromInt(int64(p.HeadCount)))
		out[i] = Balance{Name: p.Name, Amount: p.AmountPaid.Sub(share)}
	}
	return out
}

// Settle computes the ordered transactions that bring every balance to
// zero. Payers and receivers are matched first-in first-out in input order;
// a side that is only partially settled stays at the head of its queue.
func Settle(participants []Participant) ([]Transaction, error) {
	if err := Validate(participants); err != nil {
		return nil, err
	}
	if len(participants) < 2 {
		return []Transaction{}, nil
	}

	var payers, receivers []Balance
	for _, b := range Balances(participants) {
		switch {
		case b.Amount.LessThan(Epsilon.Neg()):
			payers = append(payers, b)
		case b.Amount.GreaterThan(Epsilon):
			receivers = append(receivers, b)
		}
	}

	txs := make([]Transaction, 0, max(len(payers)+len(receivers)-1, 0))
	pi, ri := 0, 0
	for pi < len(payers) && ri < len(receivers) {
		payer, receiver := &payers[pi], &receivers[ri]

		amount := decimal.Min(payer.Amount.Abs(), receiver.Amount)
		txs = append(txs, Transaction{Payer: payer.Name, Receiver: receiver.Name, Amount: amount})

		payer.Amount = payer.Amount.Add(amount)
		receiver.Amount = receiver.Amount.Sub(amount)

		if !payer.Amount.LessThan(Epsilon.Neg()) {
			pi++
		}
		if !receiver.Amount.GreaterThan(Epsilon) {
			ri++
		}
	}
	return txs, nil
}

// Apply adds each transaction to the given balances and returns the result
// keyed by participant name. Payers move up by the amount, receivers down.
func Apply(balances []Balance, txs []Transaction) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(balances))
	for _, b := range balances {
		out[b.Name] = b.Amount
	}
	for _, tx := range txs {
		out[tx.Payer] = out[tx.Payer].Add(tx.Amount)
		out[tx.Receiver] = out[tx.Receiver].Sub(tx.Amount)
	}
	return out
}

// Settled reports whether a balance is within Epsilon of zero.
func Settled(amount decimal.Decimal) bool {
	return amount.Abs().LessThanOrEqual(Epsilon)
}
