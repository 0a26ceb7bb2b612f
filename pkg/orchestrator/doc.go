// Package orchestrator drives one form session: category selection against
// the schema fetcher, per-field validation into the form state store, option
// resolution from emission factors and submission through the calculation
// client, discarding async results that arrive after the form moved on.
package orchestrator
