package ir

import "strings"

// QualifiedName is a module path joined to a dotted attribute path, e.g.
// "collections.OrderedDict" or "os.environ.items".
//
// Policy decisions treat it as an opaque token: "os.environ.items" is a
// distinct name, never a prefix walk from "os.environ".
type QualifiedName string

// Qualify joins a module and a (possibly dotted) attribute name.
func Qualify(module, name string) QualifiedName {
	return QualifiedName(module + "." + name)
}

// Valid reports whether the name is usable in a policy.
func (q QualifiedName) Valid() bool {
	return q != ""
}

// Tail returns the last dotted segment. It exists only for reduce-name
// recovery and must not be used for allow/deny decisions.
func (q QualifiedName) Tail() string {
	s := string(q)
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func (q QualifiedName) String() string {
	return string(q)
}

// Names converts strings to qualified names without validation.
func Names(ss ...string) []QualifiedName {
	out := make([]QualifiedName, len(ss))
	for i, s := range ss {
		out[i] = QualifiedName(s)
	}
	return out
}
