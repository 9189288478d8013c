// Package scheduler matches ready tasks to connected workers under one
// of five fit policies (spec §4.6): FILES, TIME, WORST_FIT, FCFS, and
// RANDOM. A worker "fits" a task only when all seven conditions in
// §4.6 hold; among fitting workers, the policy picks which one.
//
// Grounded on warren's pkg/scheduler (its filter-then-pick two-step)
// generalized from "pick a node for a container" to "pick a worker for
// a task"; unlike warren's, this package has no scheduler type: Fits,
// ComputeBox and Pick are plain functions over a manager-owned
// worker/task view. The cached-bytes estimate for FILES is grounded
// on pkg/cache; proportional resource scaling is spec §4.6's own
// formula, not present in warren (containers don't subdivide a node).
package scheduler
