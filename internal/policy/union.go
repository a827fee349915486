package policy

// Union merges policies class by class. It is commutative, associative and
// idempotent; the union of nothing is the empty policy.
func Union(policies ...Policy) Policy {
	out := make(map[string]Entry)
	for _, p := range policies {
		for class, e := range p.entries {
			out[class] = out[class].Union(e)
		}
	}
	return Policy{entries: out}
}
