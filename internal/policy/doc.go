// Package policy implements allow-lists of qualified names and the algebra
// over them.
//
// A Policy maps a class id (a library, a model family, or any other unit the
// caller chooses) to an Entry holding two sets: the globals a stream may
// resolve and the callables it may invoke. Policies are values: every
// operation returns a new Policy and none mutates its inputs, so a policy
// can be shared by any number of concurrent gate loads.
//
// Policies come from three places:
//   - Extract builds a single-class fragment from a trace
//   - Union merges fragments from many traces
//   - Read decodes the on-disk JSON form (schema-checked with CUE)
//
// Compare scores a candidate policy against a baseline with precision,
// recall and F1 per class and category.
package policy
