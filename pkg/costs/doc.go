// Package costs maps token usage to USD amounts.
//
// # Overview
//
// The calculator holds a pricing table keyed by model identifier. Lookup
// tries an exact match first and falls back to the longest matching
// prefix, so a dated release like "gpt-4o-2024-08-06" inherits the
// "gpt-4o" rates while "gpt-4o-mini-2024-07-18" picks the more specific
// "gpt-4o-mini" entry. Models with no matching entry cost nothing and
// report no cost rather than a zero cost.
//
// # Hot Reload
//
// Pricing can be supplied from a YAML file and swapped at runtime; the
// Watcher reloads the file on change and keeps the last good table when
// an update fails to parse.
package costs
