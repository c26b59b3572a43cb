// Package paginate follows continuation tokens across list/describe calls
// whose responses are treated as JSON documents.
package paginate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Document is a decoded JSON request or response.
type Document = map[string]any

// Func issues one list/describe call.
type Func func(ctx context.Context, params Document) (Document, error)

const (
	wrappedParam = "PaginationConfig"
	wrappedToken = "StartingToken"
)

// ErrStalled is returned when an API keeps answering with the token it was
// given under both parameter shapes.
var ErrStalled = errors.New("paginate: continuation token did not advance")

// Options locate the continuation token and the data items.
type Options struct {
	// MarkerPath is the path of the continuation token in a response.
	MarkerPath []string
	// DataPath is the path of the item list in a response.
	DataPath []string
	// MarkerParam is the top-level request parameter carrying the token
	// (flat shape). When empty the token is sent wrapped as
	// PaginationConfig.StartingToken.
	MarkerParam string
}

// Dict calls fn until no continuation token is returned and merges every
// page's items, in page order, into the first response. A response without
// a token is returned unchanged.
//
// If the API answers with the same token it was sent, the other parameter
// shape is tried once before giving up with ErrStalled.
func Dict(ctx context.Context, fn Func, params Document, opts Options) (Document, error) {
	if len(opts.MarkerPath) == 0 || len(opts.DataPath) == 0 {
		return nil, fmt.Errorf("paginate: marker and data paths are required")
	}

	result, err := fn(ctx, clone(params))
	if err != nil {
		return nil, err
	}
	marker, more := stringAt(result, opts.MarkerPath)
	if !more {
		return result, nil
	}

	items := listAt(result, opts.DataPath)
	flat := opts.MarkerParam != ""
	switched := false

	for more {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := fn(ctx, withMarker(params, marker, flat, opts))
		if err != nil {
			return nil, err
		}

		next, hasNext := stringAt(page, opts.MarkerPath)
		if hasNext && next == marker {
			if switched {
				return nil, ErrStalled
			}
			switched = true
			flat = !flat
			continue
		}

		items = append(items, listAt(page, opts.DataPath)...)
		marker, more = next, hasNext
	}

	setAt(result, opts.DataPath, items)
	deleteAt(result, opts.MarkerPath)
	return result, nil
}

// Items returns the list found at path in doc.
func Items(doc Document, path ...string) []any {
	return listAt(doc, path)
}

// SDK adapts an aws-sdk-go-v2 client method into a Func. Parameters are
// decoded into the method's input struct and the output is re-encoded as a
// Document, so paths use the SDK field names (e.g. "NextToken").
func SDK[In, Out, Opt any](call func(context.Context, *In, ...func(*Opt)) (*Out, error)) Func {
	return func(ctx context.Context, params Document) (Document, error) {
		in := new(In)
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode params: %w", err)
		}
		if err := json.Unmarshal(raw, in); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}

		out, err := call(ctx, in)
		if err != nil {
			return nil, err
		}

		raw, err = json.Marshal(out)
		if err != nil {
			return nil, fmt.Errorf("encode response: %w", err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return doc, nil
	}
}

func withMarker(params Document, marker string, flat bool, opts Options) Document {
	p := clone(params)
	if flat {
		name := opts.MarkerParam
		if name == "" {
			name = opts.MarkerPath[len(opts.MarkerPath)-1]
		}
		p[name] = marker
		return p
	}

	cfg := Document{}
	if existing, ok := p[wrappedParam].(Document); ok {
		for k, v := range existing {
			cfg[k] = v
		}
	}
	cfg[wrappedToken] = marker
	p[wrappedParam] = cfg
	return p
}

func valueAt(doc Document, path []string) (any, bool) {
	var cur any = doc
	for _, key := range path {
		m, ok := cur.(Document)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func stringAt(doc Document, path []string) (string, bool) {
	v, ok := valueAt(doc, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func listAt(doc Document, path []string) []any {
	v, ok := valueAt(doc, path)
	if !ok {
		return nil
	}
	list, _ := v.([]any)
	return list
}

func setAt(doc Document, path []string, value any) {
	cur := doc
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key].(Document)
		if !ok {
			next = Document{}
			cur[key] = next
		}
		cur = next
	}
	cur[path[len(path)-1]] = value
}

func deleteAt(doc Document, path []string) {
	cur := doc
	for _, key := range path[:len(path)-1] {
		next, ok := cur[key].(Document)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, path[len(path)-1])
}

func clone(params Document) Document {
	out := make(Document, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
