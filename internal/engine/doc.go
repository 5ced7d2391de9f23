// Package engine runs triage audit cycles.
//
// A cycle selects at most one work item, runs the external audit against
// it, extracts the structured report from the transcript, publishes the
// report and cooldown, and closes the item when the audit shows its change
// has merged.
//
// Cycle Flow:
// 1. Selector lists the job's stages and filters by cooldown
// 2. Analyzer runs the audit with a bounded timeout
// 3. report.Extractor isolates the report between markers
// 4. Publisher posts the comment, advances the cooldown, notifies
// 5. Evaluator decides completion; the item status is updated if so
//
// Failure Handling:
// Every step reports failure as a *StepError collected on CycleResult.
// Nothing a collaborator does aborts a cycle; only context cancellation
// is returned as an error.
//
// INVARIANTS:
//   - At most one item is audited per cycle.
//   - An item's effective last-audit time never moves backwards.
//   - Once an audit is attempted, the cooldown advances even if the
//     comment could not be posted.
package engine
