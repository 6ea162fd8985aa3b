// Package engine holds the order lifecycle and insights rules of the
// support portal: status resolution over the stage pipeline, dashboard
// classification, staleness reminders and monthly analytics.
//
// Every function here is a pure computation over a snapshot of orders.
// Fetching and persisting orders is the job of the repository layer.
package engine
