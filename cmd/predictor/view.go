package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/Alias1177/StockPredictor/models"
	"github.com/Rhymond/go-money"
	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

type viewCmd struct {
	symbol  string
	pending bool
}

func (*viewCmd) Name() string     { return "view" }
func (*viewCmd) Synopsis() string { return "print the prediction ledger" }
func (*viewCmd) Usage() string {
	return `predictor view [-symbol AAPL] [-pending]

  Prints every recorded prediction in insertion order. Nothing is written.
`
}

func (c *viewCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "Only show this symbol.")
	f.BoolVar(&c.pending, "pending", false, "Only show predictions awaiting reconciliation.")
}

func (c *viewCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := openApp(ctx, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	records, err := a.ledger.All(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	var shown []models.PredictionRecord
	for _, rec := range records {
		if c.symbol != "" && !strings.EqualFold(rec.Symbol, c.symbol) {
			continue
		}
		if c.pending && !rec.IsPending() {
			continue
		}
		shown = append(shown, rec)
	}
	if len(shown) == 0 {
		fmt.Println("No predictions recorded.")
		return subcommands.ExitSuccess
	}
	if err := printLedger(os.Stdout, shown, a.cfg.SourceCurrency, a.cfg.DisplayCurrency); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printLedger(w io.Writer, records []models.PredictionRecord, source, display string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tCREATED\tTARGET\tMODEL\tPREDICTED\tCONVERTED\tACTUAL\tOUTCOME")
	for _, rec := range records {
		actual := "-"
		if rec.ActualPrice.Valid {
			actual = formatMoney(rec.ActualPrice.Decimal, source)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.Symbol,
			rec.CreatedAt.Format("2006-01-02 15:04"),
			rec.TargetDate.Format(models.DateLayout),
			rec.Model,
			formatMoney(rec.PredictedPrice, source),
			formatMoney(rec.PredictedPriceConverted, display),
			actual,
			rec.Outcome)
	}
	return tw.Flush()
}

// formatMoney renders an amount with the currency's symbol and minor units.
func formatMoney(amount decimal.Decimal, code string) string {
	cur := money.GetCurrency(code)
	if cur == nil {
		return amount.StringFixed(2) + " " + code
	}
	return money.New(amount.Shift(int32(cur.Fraction)).Round(0).IntPart(), cur.Code).Display()
}
