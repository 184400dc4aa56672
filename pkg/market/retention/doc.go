// Package retention provides retention policy enforcement for stored runs.
//
// # Retention Policy
//
// Terminal runs (completed, failed, cancelled) older than the retention
// period are deleted together with their provider answers and arbiter
// output. In-progress runs are never touched regardless of age.
//
// # Basic Usage
//
//	pruner := retention.NewPruner(store, &retention.Config{
//	    Days:     90,
//	    Schedule: "0 3 * * *", // Daily at 3 AM
//	})
//
//	// Start background pruning
//	if err := pruner.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pruner.Stop()
//
// # Manual Pruning
//
// Pruning can also be triggered explicitly:
//
//	deleted, err := pruner.Prune(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Printf("Deleted %d old runs", deleted)
//
// # Scheduling
//
// The pruner runs on a standard cron schedule:
//
//   - "0 3 * * *": Daily at 3 AM (default)
//   - "0 0 * * 0": Weekly on Sunday at midnight
//   - "0 */6 * * *": Every 6 hours
//
// With an empty Schedule, or a retention period of 0 days, Start returns
// immediately without error and pruning only happens on explicit Prune
// calls.
package retention
