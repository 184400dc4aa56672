// Package convergence decides when the debate can stop.
//
// A round has converged when two measurements agree: the spread between
// provider confidences is small (ConfidenceDelta) and the providers'
// key claims mostly coincide (ClaimOverlap, mean pairwise Jaccard over
// normalized claim sets). Both thresholds are configurable.
//
// The package also extracts Disagreements: pairs of claims from
// different providers that differ yet share enough vocabulary to be
// about the same topic. These feed the next round's revision prompts so
// providers argue about the actual points of contention.
package convergence
