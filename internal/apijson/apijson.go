// Package apijson implements the JSON wire format for the namespace's
// boundary types: filter expressions and metadata attribute arrays. This
// is the only package under internal/ that imports encoding/json — the
// core packages operate on filter.Expr and kvpair.KVPair directly and
// never know about JSON. The cmd/vectra driver also uses encoding/json to
// read its stdin request envelopes.
package apijson

import (
	"encoding/json"
	"fmt"

	"vectra/internal/filter"
	"vectra/internal/kvpair"
	"vectra/internal/vtxerr"
)

// envelope is the tagged-union wire shape every filter node marshals
// to/from: exactly one field is set, naming the node's kind. Eq and In
// are 2-element JSON array tuples (["key","value"] and
// ["key",["v1","v2",...]]), not objects.
type envelope struct {
	Eq  json.RawMessage   `json:"Eq,omitempty"`
	In  json.RawMessage   `json:"In,omitempty"`
	And []json.RawMessage `json:"And,omitempty"`
	Or  []json.RawMessage `json:"Or,omitempty"`
	Not json.RawMessage   `json:"Not,omitempty"`
}

// MarshalFilter encodes a filter expression to its JSON wire form:
// {"Eq":["key","value"]}, {"In":["key",["v1","v2",...]]},
// {"And":[...]}, {"Or":[...]}, or {"Not":...}.
func MarshalFilter(e filter.Expr) ([]byte, error) {
	env, err := toEnvelope(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func toEnvelope(e filter.Expr) (envelope, error) {
	switch v := e.(type) {
	case filter.Eq:
		raw, err := json.Marshal([]string{v.Key, v.Value})
		if err != nil {
			return envelope{}, err
		}
		return envelope{Eq: raw}, nil
	case filter.In:
		keyRaw, err := json.Marshal(v.Key)
		if err != nil {
			return envelope{}, err
		}
		valuesRaw, err := json.Marshal(v.Values)
		if err != nil {
			return envelope{}, err
		}
		raw, err := json.Marshal([]json.RawMessage{keyRaw, valuesRaw})
		if err != nil {
			return envelope{}, err
		}
		return envelope{In: raw}, nil
	case filter.And:
		terms, err := marshalTerms(v.Terms)
		if err != nil {
			return envelope{}, err
		}
		return envelope{And: terms}, nil
	case filter.Or:
		terms, err := marshalTerms(v.Terms)
		if err != nil {
			return envelope{}, err
		}
		return envelope{Or: terms}, nil
	case filter.Not:
		inner, err := MarshalFilter(v.Term)
		if err != nil {
			return envelope{}, err
		}
		return envelope{Not: inner}, nil
	default:
		return envelope{}, vtxerr.New(vtxerr.BadFilter, fmt.Sprintf("apijson: unknown filter node type %T", e))
	}
}

func marshalTerms(terms []filter.Expr) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, len(terms))
	for i, t := range terms {
		b, err := MarshalFilter(t)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}

// UnmarshalFilter decodes a filter expression from its JSON wire form.
// Malformed JSON, an envelope naming zero or more than one node kind, or
// an And/Or with fewer than two terms surfaces as vtxerr.BadFilter.
func UnmarshalFilter(data []byte) (filter.Expr, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, vtxerr.Wrap(vtxerr.BadFilter, err)
	}
	return fromEnvelope(env)
}

func fromEnvelope(env envelope) (filter.Expr, error) {
	set := 0
	if env.Eq != nil {
		set++
	}
	if env.In != nil {
		set++
	}
	if env.And != nil {
		set++
	}
	if env.Or != nil {
		set++
	}
	if env.Not != nil {
		set++
	}
	if set != 1 {
		return nil, vtxerr.New(vtxerr.BadFilter, fmt.Sprintf("apijson: filter envelope must name exactly one node kind, got %d", set))
	}

	switch {
	case env.Eq != nil:
		var pair []string
		if err := json.Unmarshal(env.Eq, &pair); err != nil || len(pair) != 2 {
			return nil, vtxerr.New(vtxerr.BadFilter, "apijson: Eq requires a [\"key\",\"value\"] tuple")
		}
		return filter.NewEq(pair[0], pair[1]), nil
	case env.In != nil:
		var tuple []json.RawMessage
		if err := json.Unmarshal(env.In, &tuple); err != nil || len(tuple) != 2 {
			return nil, vtxerr.New(vtxerr.BadFilter, "apijson: In requires a [\"key\",[\"v1\",...]] tuple")
		}
		var key string
		if err := json.Unmarshal(tuple[0], &key); err != nil {
			return nil, vtxerr.New(vtxerr.BadFilter, "apijson: In tuple's first element must be a string key")
		}
		var values []string
		if err := json.Unmarshal(tuple[1], &values); err != nil {
			return nil, vtxerr.New(vtxerr.BadFilter, "apijson: In tuple's second element must be a string array")
		}
		return filter.NewIn(key, values), nil
	case env.And != nil:
		terms, err := unmarshalTerms(env.And)
		if err != nil {
			return nil, err
		}
		if len(terms) < 2 {
			return nil, vtxerr.New(vtxerr.BadFilter, "apijson: And requires at least two terms")
		}
		return filter.NewAnd(terms...), nil
	case env.Or != nil:
		terms, err := unmarshalTerms(env.Or)
		if err != nil {
			return nil, err
		}
		if len(terms) < 2 {
			return nil, vtxerr.New(vtxerr.BadFilter, "apijson: Or requires at least two terms")
		}
		return filter.NewOr(terms...), nil
	default: // env.Not != nil
		term, err := UnmarshalFilter(env.Not)
		if err != nil {
			return nil, err
		}
		return filter.NewNot(term), nil
	}
}

func unmarshalTerms(raw []json.RawMessage) ([]filter.Expr, error) {
	out := make([]filter.Expr, len(raw))
	for i, r := range raw {
		e, err := UnmarshalFilter(r)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// kvPayload is the wire shape of a single metadata attribute.
type kvPayload struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// MarshalMetadata encodes an ordered attribute sequence as a JSON array of
// {"key":...,"value":...} objects, preserving order.
func MarshalMetadata(attrs []kvpair.KVPair) ([]byte, error) {
	out := make([]kvPayload, len(attrs))
	for i, a := range attrs {
		out[i] = kvPayload{Key: a.Key, Value: a.Value}
	}
	return json.Marshal(out)
}

// UnmarshalMetadata decodes a JSON array of {"key":...,"value":...}
// objects into an ordered attribute sequence. Malformed JSON or a missing
// key surfaces as vtxerr.BadMetadata.
func UnmarshalMetadata(data []byte) ([]kvpair.KVPair, error) {
	var raw []kvPayload
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, vtxerr.Wrap(vtxerr.BadMetadata, err)
	}
	out := make([]kvpair.KVPair, len(raw))
	for i, r := range raw {
		if r.Key == "" {
			return nil, vtxerr.New(vtxerr.BadMetadata, "apijson: attribute missing key")
		}
		out[i] = kvpair.New(r.Key, r.Value)
	}
	return out, nil
}
