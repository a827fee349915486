package policy

import "slices"

// Lines is the JSON shape of one category in a comparison report.
type Lines struct {
	InBaselineNotInferred int     `json:"in_baseline_not_inferred"`
	InInferredNotBaseline int     `json:"in_inferred_not_baseline"`
	InBoth                int     `json:"in_both"`
	Precision             float64 `json:"precision"`
	Recall                float64 `json:"recall"`
	F1                    float64 `json:"f1"`
}

// ClassReport is the JSON shape of one compared class.
type ClassReport struct {
	GlobalLines Lines `json:"global_lines"`
	ReduceLines Lines `json:"reduce_lines"`
}

// Lines summarizes a score.
func (s Score) Lines() Lines {
	return Lines{
		InBaselineNotInferred: s.FN(),
		InInferredNotBaseline: s.FP(),
		InBoth:                s.TP(),
		Precision:             s.Precision,
		Recall:                s.Recall,
		F1:                    s.F1,
	}
}

// Report summarizes an entry comparison.
func (c EntryComparison) Report() ClassReport {
	return ClassReport{GlobalLines: c.Globals.Lines(), ReduceLines: c.Reduces.Lines()}
}

// Report summarizes every class.
func (c Comparison) Report() map[string]ClassReport {
	out := make(map[string]ClassReport, len(c.Classes))
	for class, ec := range c.Classes {
		out[class] = ec.Report()
	}
	return out
}

// ClassIDs returns the compared class ids in sorted order.
func (c Comparison) ClassIDs() []string {
	ids := make([]string, 0, len(c.Classes))
	for id := range c.Classes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// MarshalReport renders a report value (ClassReport or a map of them) with
// the same layout as policy files.
func MarshalReport(v any) ([]byte, error) {
	return marshalIndent(v)
}
