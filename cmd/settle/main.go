// Command settle computes the settlement of a trip described in a CSV file
// with rows name,head_count,amount_paid. The header row is optional.
//
//	settle [-json] [file.csv]
//
// Without a file argument, or with "-", the CSV is read from stdin.
package main

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"tripsplit/internal/report"
	"tripsplit/internal/settlement"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("settle", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asJSON := fs.Bool("json", false, "print the result as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	in := stdin
	if path := fs.Arg(0); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			fmt.Fprintf(stderr, "settle: %v\n", err)
			return 1
		}
		defer f.Close()
		in = f
	}

	participants, err := readParticipants(in)
	if err != nil {
		fmt.Fprintf(stderr, "settle: %v\n", err)
		return 1
	}
	txs, err := settlement.Settle(participants)
	if err != nil {
		fmt.Fprintf(stderr, "settle: %v\n", err)
		return 1
	}

	txs = report.Payable(txs)
	perHead := settlement.PerHeadCost(participants)
	if *asJSON {
		err = writeJSON(stdout, perHead, participants, txs)
	} else {
		err = writeText(stdout, perHead, txs)
	}
	if err != nil {
		fmt.Fprintf(stderr, "settle: %v\n", err)
		return 1
	}
	return 0
}

// readParticipants parses name,head_count,amount_paid rows in order.
// Amounts accept a dot or a comma as decimal separator.
func readParticipants(r io.Reader) ([]settlement.Participant, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = 3
	cr.Comment = '#'

	var out []settlement.Participant
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}

		heads, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil {
			return nil, fmt.Errorf("row %d: head count %q: %w", line, rec[1], err)
		}
		paid, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(rec[2]), ",", "."))
		if err != nil {
			return nil, fmt.Errorf("row %d: amount %q: %w", line, rec[2], err)
		}
		out = append(out, settlement.Participant{
			Name:       strings.TrimSpace(rec[0]),
			HeadCount:  heads,
			AmountPaid: paid,
		})
	}
	return out, nil
}

func isHeader(rec []string) bool {
	return strings.EqualFold(strings.TrimSpace(rec[0]), "name") &&
		strings.EqualFold(strings.TrimSpace(rec[1]), "head_count")
}

func writeText(w io.Writer, perHead decimal.Decimal, txs []settlement.Transaction) error {
	if _, err := fmt.Fprintf(w, "Per head cost: %s\n", perHead.StringFixed(2)); err != nil {
		return err
	}
	if len(txs) == 0 {
		_, err := fmt.Fprintln(w, report.NoSettlementsMessage)
		return err
	}
	for _, tx := range txs {
		if _, err := fmt.Fprintf(w, "%s → %s: %s\n", tx.Payer, tx.Receiver, tx.Amount.StringFixed(2)); err != nil {
			return err
		}
	}
	return nil
}

type jsonTransaction struct {
	Payer    string `json:"payer"`
	Receiver string `json:"receiver"`
	Amount   string `json:"amount"`
}

type jsonBalance struct {
	Name    string `json:"name"`
	Balance string `json:"balance"`
}

type jsonResult struct {
	PerHeadCost  string            `json:"per_head_cost"`
	Settled      bool              `json:"settled"`
	Balances     []jsonBalance     `json:"balances"`
	Transactions []jsonTransaction `json:"transactions"`
}

func writeJSON(w io.Writer, perHead decimal.Decimal, participants []settlement.Participant, txs []settlement.Transaction) error {
	res := jsonResult{
		PerHeadCost:  perHead.StringFixed(2),
		Settled:      len(txs) == 0,
		Balances:     []jsonBalance{},
		Transactions: make([]jsonTransaction, 0, len(txs)),
	}
	for _, b := range settlement.Balances(participants) {
		res.Balances = append(res.Balances, jsonBalance{Name: b.Name, Balance: b.Amount.StringFixed(2)})
	}
	for _, tx := range txs {
		res.Transactions = append(res.Transactions, jsonTransaction{Payer: tx.Payer, Receiver: tx.Receiver, Amount: tx.Amount.StringFixed(2)})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
