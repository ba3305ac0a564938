// Package rules decodes the JSON surface syntax for a rule program into
// internal/builder's origin-form Cmd tree. A fixed
// JSON Schema document is checked first, via
// github.com/santhosh-tekuri/jsonschema/v5, so a malformed document is
// rejected with a BuildRejected error naming the offending JSON pointer
// path before the lighter-weight struct decode even runs.
package rules

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/aledsdavies/configmaton/internal/builder"
	"github.com/aledsdavies/configmaton/internal/cerrors"
)

// schemaJSON describes one rule node's surface shape. A node is exactly
// one of: a Match ("when" required; "run"/"then" optional), a Label
// ("label"+"body" required), or a Goto ("goto" required) — additional
// properties and any mixing of the three shapes (e.g. "when" with "goto")
// are rejected, giving the "mixing when+goto" and "unknown field"
// BuildRejected cases a concrete schema-level check.
const schemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "schema://configmaton/rule.json",
  "$ref": "#/$defs/cmd",
  "$defs": {
    "cmd": {
      "type": "object",
      "oneOf": [
        { "$ref": "#/$defs/match" },
        { "$ref": "#/$defs/label" },
        { "$ref": "#/$defs/goto" }
      ]
    },
    "match": {
      "type": "object",
      "properties": {
        "when": {
          "type": "object",
          "minProperties": 1,
          "additionalProperties": { "type": "string" }
        },
        "run": {
          "type": "array",
          "items": { "type": "string" }
        },
        "then": {
          "type": "array",
          "items": { "$ref": "#/$defs/cmd" }
        }
      },
      "required": ["when"],
      "additionalProperties": false
    },
    "label": {
      "type": "object",
      "properties": {
        "label": { "type": "string", "minLength": 1 },
        "body": { "$ref": "#/$defs/cmd" }
      },
      "required": ["label", "body"],
      "additionalProperties": false
    },
    "goto": {
      "type": "object",
      "properties": {
        "goto": { "type": "string", "minLength": 1 }
      },
      "required": ["goto"],
      "additionalProperties": false
    }
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		url := "schema://configmaton/rule.json"
		if err := compiler.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile(url)
	})
	return schema, schemaErr
}

// rawCmd is the JSON-decodable mirror of builder.Cmd's three surface
// shapes, validated by schema before any of its fields are trusted.
type rawCmd struct {
	When map[string]string `json:"when,omitempty"`
	Run  []string          `json:"run,omitempty"`
	Then []rawCmd          `json:"then,omitempty"`

	Label string  `json:"label,omitempty"`
	Body  *rawCmd `json:"body,omitempty"`

	Goto string `json:"goto,omitempty"`
}

// Parse validates data against the rule schema, then decodes it into a
// slice of builder.Cmd ready for builder.Parse. data must be a JSON array
// of rule nodes at the top level.
func Parse(data []byte) ([]builder.Cmd, error) {
	s, err := compiledSchema()
	if err != nil {
		return nil, cerrors.Wrap(cerrors.BuildRejected, "compiling rule schema", err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, cerrors.Wrap(cerrors.BuildRejected, "parsing rule JSON", err)
	}
	items, ok := doc.([]any)
	if !ok {
		return nil, cerrors.New(cerrors.BuildRejected, "rule document must be a JSON array of rule nodes")
	}
	for i, item := range items {
		if err := s.Validate(item); err != nil {
			return nil, cerrors.Wrap(cerrors.BuildRejected, fmt.Sprintf("rule %d violates surface schema", i), err)
		}
	}

	var raws []rawCmd
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, cerrors.Wrap(cerrors.BuildRejected, "decoding rule JSON", err)
	}

	cmds := make([]builder.Cmd, 0, len(raws))
	for i := range raws {
		cmd, err := raws[i].toCmd()
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}

func (r *rawCmd) toCmd() (builder.Cmd, error) {
	switch {
	case r.Goto != "":
		return builder.Goto{Name: r.Goto}, nil
	case r.Label != "":
		if r.Body == nil {
			return nil, cerrors.Newf(cerrors.BuildRejected, "label %q has no body", r.Label)
		}
		body, err := r.Body.toCmd()
		if err != nil {
			return nil, err
		}
		return builder.Label{Name: r.Label, Body: body}, nil
	case r.When != nil:
		when := make([]builder.WhenClause, 0, len(r.When))
		for _, k := range sortedKeys(r.When) {
			when = append(when, builder.WhenClause{Key: k, Regex: r.When[k]})
		}
		run := make([][]byte, len(r.Run))
		for i, s := range r.Run {
			run[i] = []byte(s)
		}
		then := make([]builder.Cmd, 0, len(r.Then))
		for i := range r.Then {
			c, err := r.Then[i].toCmd()
			if err != nil {
				return nil, err
			}
			then = append(then, c)
		}
		return builder.Match{When: when, Run: run, Then: then}, nil
	default:
		return nil, cerrors.New(cerrors.BuildRejected, "rule node matches none of when/label/goto")
	}
}

// sortedKeys returns m's keys in a deterministic order so two builds of
// the same JSON document always lower "when" into the same WhenClause
// order (map iteration order is not stable in Go), which in turn keeps
// the builder's key-state chain deterministic across rebuilds of the same
// input.
func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
