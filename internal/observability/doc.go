// Package observability provides event logging, metrics calculation, and
// alerting for forgeloop. Diagnostic events persist as structured JSON
// Lines (JSONL); metrics and alerts are derived on-demand from the
// archived lifecycle events.
package observability
