package policy

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cuejson "cuelang.org/go/encoding/json"
)

// schemaSource constrains both on-disk shapes. Duplicate names and
// ordering are tolerated; decoding normalizes them.
const schemaSource = `
#Names: [...string & != ""]

#Entry: close({
	globals?: #Names
	reduces?: #Names
})

// {"<class>": {"globals": [...], "reduces": [...]}}
#Policy: [string]: #Entry

// {"globals": [...], "reduces": [...]}
#Flat: #Entry
`

// SchemaError reports a document that does not match the policy schema.
type SchemaError struct {
	Source string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, cueerrors.Details(e.Err, nil))
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// validate checks data against the named definition. Each call builds its
// own cue.Context, so validation is safe from concurrent goroutines.
func validate(source string, data []byte, definition string) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("policy.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile policy schema: %w", err)
	}

	expr, err := cuejson.Extract(source, data)
	if err != nil {
		return &SchemaError{Source: source, Err: err}
	}
	doc := ctx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return &SchemaError{Source: source, Err: err}
	}

	v := schema.LookupPath(cue.ParsePath(definition)).Unify(doc)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{Source: source, Err: err}
	}
	return nil
}
