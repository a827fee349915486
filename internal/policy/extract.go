package policy

import (
	"fmt"

	"github.com/roach88/pickleball/internal/ir"
)

// WarningKind names an informational condition found while extracting.
type WarningKind string

// AmbiguousReduceResolution is reported when a reduce target had no
// qualified name and its attribution is a guess.
const AmbiguousReduceResolution WarningKind = "AmbiguousReduceResolution"

// Warning accompanies a best-effort result. It never blocks extraction.
type Warning struct {
	Kind       WarningKind
	Bare       string
	Resolved   ir.QualifiedName
	Candidates []ir.QualifiedName
}

func (w Warning) String() string {
	if len(w.Candidates) > 1 {
		return fmt.Sprintf("%s: %q matches %v, chose %s", w.Kind, w.Bare, w.Candidates, w.Resolved)
	}
	return fmt.Sprintf("%s: %q matches no global, fell back to %s", w.Kind, w.Bare, w.Resolved)
}

// ResolveReduceName attributes a reduce event to a qualified name.
//
// An event that carries its callable's qualified name resolves to it.
// Otherwise the first global in trace order whose last segment equals the
// bare name wins; with no match the result is "builtins.<bare>". Both
// fallbacks return a warning. Two imports sharing a last segment cannot be
// told apart here.
func ResolveReduceName(ev ir.ReduceInvoked, globals []ir.QualifiedName) (ir.QualifiedName, *Warning) {
	if ev.Callable != "" {
		return ev.Callable, nil
	}

	var matches []ir.QualifiedName
	seen := make(map[ir.QualifiedName]bool)
	for _, g := range globals {
		if g.Tail() == ev.Bare && !seen[g] {
			seen[g] = true
			matches = append(matches, g)
		}
	}

	switch len(matches) {
	case 0:
		name := ir.Qualify("builtins", ev.Bare)
		return name, &Warning{Kind: AmbiguousReduceResolution, Bare: ev.Bare, Resolved: name}
	case 1:
		return matches[0], nil
	default:
		return matches[0], &Warning{Kind: AmbiguousReduceResolution, Bare: ev.Bare, Resolved: matches[0], Candidates: matches}
	}
}

// Extract builds the single-class fragment a trace implies.
func Extract(classID string, t ir.Trace) (Policy, []Warning, error) {
	globals := t.Globals()
	var (
		reduces  []ir.QualifiedName
		warnings []Warning
	)
	for _, ev := range t.Reduces() {
		name, w := ResolveReduceName(ev, globals)
		reduces = append(reduces, name)
		if w != nil {
			warnings = append(warnings, *w)
		}
	}
	p, err := Fragment(classID, Entry{
		Globals: NewNameSet(globals...),
		Reduces: NewNameSet(reduces...),
	})
	if err != nil {
		return Policy{}, nil, err
	}
	return p, warnings, nil
}
