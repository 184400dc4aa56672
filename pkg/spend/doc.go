// Package spend provides a durable billing ledger for provider calls.
//
// Every call that consumed tokens is appended to a SQLite ledger,
// separate from the run store so billing history survives run pruning.
// The ledger also answers the rollup queries behind the spend CLI:
// overall totals, per-provider totals, and per-day totals.
//
// # Basic Usage
//
//	ledger, err := spend.NewLedger("data/spend.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ledger.Close()
//
//	// Append records (usually done by the market coordinator)
//	err = ledger.Record(ctx, records)
//
//	// Roll up the last 30 days
//	summary, err := ledger.Summary(ctx, time.Now().AddDate(0, 0, -30))
package spend
