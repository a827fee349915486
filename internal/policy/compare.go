package policy

// Category is a policy set compared on its own.
type Category string

const (
	CategoryGlobals Category = "globals"
	CategoryReduces Category = "reduces"
)

// Score compares one category of a candidate against a baseline.
type Score struct {
	// InBaselineOnly are names the candidate missed (false negatives).
	InBaselineOnly NameSet
	// InCandidateOnly are names the baseline never needed (false positives).
	InCandidateOnly NameSet
	// InBoth are the true positives.
	InBoth NameSet

	Precision float64
	Recall    float64
	F1        float64
}

// TP, FP and FN counts.
func (s Score) TP() int { return s.InBoth.Len() }
func (s Score) FP() int { return s.InCandidateOnly.Len() }
func (s Score) FN() int { return s.InBaselineOnly.Len() }

// ScoreSets computes precision, recall and F1 of candidate against
// baseline. A ratio whose denominator is zero is 1.0: two empty sets agree.
func ScoreSets(baseline, candidate NameSet) Score {
	s := Score{
		InBaselineOnly:  baseline.Difference(candidate),
		InCandidateOnly: candidate.Difference(baseline),
		InBoth:          baseline.Intersect(candidate),
	}
	tp, fp, fn := s.TP(), s.FP(), s.FN()
	s.Precision = ratio(tp, tp+fp)
	s.Recall = ratio(tp, tp+fn)
	s.F1 = ratio(2*tp, 2*tp+fp+fn)
	return s
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 1.0
	}
	return float64(num) / float64(den)
}

// EntryComparison scores both categories of one class.
type EntryComparison struct {
	Globals Score
	Reduces Score
}

// CompareEntries scores a single candidate entry against a baseline entry.
func CompareEntries(baseline, candidate Entry) EntryComparison {
	return EntryComparison{
		Globals: ScoreSets(baseline.Globals, candidate.Globals),
		Reduces: ScoreSets(baseline.Reduces, candidate.Reduces),
	}
}

// Comparison holds per-class results. Classes present in only one of the
// policies are compared against the empty entry.
type Comparison struct {
	Classes map[string]EntryComparison
}

// Compare scores every class in either policy.
func Compare(baseline, candidate Policy) Comparison {
	out := Comparison{Classes: make(map[string]EntryComparison)}
	for _, class := range Union(baseline, candidate).Classes() {
		b, _ := baseline.Entry(class)
		c, _ := candidate.Entry(class)
		out.Classes[class] = CompareEntries(b, c)
	}
	return out
}
