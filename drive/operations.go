package drive

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/goliatone/go-drive-gateway/core"
)

type location int

const (
	inQuery location = iota
	inPath
	inBody
)

const (
	fieldsParam            = "fields"
	supportsAllDrivesParam = "supportsAllDrives"
	requestBodyParam       = "requestBody"
)

type param struct {
	spec core.FieldSpec
	in   location
}

// operation describes one Drive REST call. Path segments in braces are
// filled from path params and escaped.
type operation struct {
	name        string
	description string
	method      string
	path        string
	params      []param
	collection  string
	fields      string
	idempotent  bool
	scopes      []string
	allDrives   bool
	requestBody bool
	// deleted lists the ids echoed back when the provider returns no content.
	deleted []string
}

func (op operation) paginated() bool {
	return op.collection != ""
}

func (op operation) contract() core.ArgumentContract {
	fields := make([]core.FieldSpec, 0, len(op.params)+3)
	for _, p := range op.params {
		fields = append(fields, p.spec)
	}
	fields = append(fields, core.FieldSpec{
		Name:        fieldsParam,
		Type:        core.FieldString,
		Description: "Partial response selector; defaults to a curated field set.",
	})
	if op.allDrives {
		fields = append(fields, core.FieldSpec{
			Name:        supportsAllDrivesParam,
			Type:        core.FieldBoolean,
			Description: "Whether the request supports shared drives. Defaults to true.",
		})
	}
	if op.requestBody {
		fields = append(fields, core.FieldSpec{
			Name:        requestBodyParam,
			Type:        core.FieldObject,
			Description: "Raw resource fields merged into the request body.",
		})
	}
	return core.ArgumentContract{Fields: fields}
}

func (op operation) descriptor(client *Client) core.OperationDescriptor {
	return core.OperationDescriptor{
		Name:               op.name,
		Description:        op.description,
		Contract:           op.contract(),
		RequiredScopes:     append([]string(nil), op.scopes...),
		Idempotent:         op.idempotent,
		SupportsPagination: op.paginated(),
		Handler:            op.handler(client),
	}
}

func (op operation) handler(client *Client) core.Handler {
	return func(ctx context.Context, call core.Call) (any, error) {
		req, err := op.build(call.Args)
		if err != nil {
			return nil, err
		}
		body, err := client.do(ctx, call.Credential, req)
		if err != nil {
			return nil, err
		}
		if body == nil {
			return op.emptyResult(call.Args), nil
		}
		// An error object inside a 200 body stays a map so it normalizes
		// as a failure rather than a page.
		if _, failed := body["error"].(map[string]any); failed {
			return body, nil
		}
		if op.paginated() {
			return core.PageFromCollection(body, op.collection), nil
		}
		return body, nil
	}
}

func (op operation) build(args core.Args) (request, error) {
	req := request{method: op.method, query: map[string]string{}}

	path := op.path
	var body map[string]any
	for _, p := range op.params {
		value, ok := args[p.spec.Name]
		if !ok || value == nil {
			continue
		}
		switch p.in {
		case inPath:
			text, err := pathValue(value)
			if err != nil {
				return request{}, core.WrapKindError(err, core.KindInvalidArgument, "drive: "+p.spec.Name)
			}
			path = strings.ReplaceAll(path, "{"+p.spec.Name+"}", url.PathEscape(text))
		case inBody:
			if body == nil {
				body = map[string]any{}
			}
			body[p.spec.Name] = value
		default:
			req.query[p.spec.Name] = queryValue(value)
		}
	}
	if op.requestBody {
		if raw, ok := args.Map(requestBodyParam); ok {
			if body == nil {
				body = map[string]any{}
			}
			for key, value := range raw {
				if _, set := body[key]; !set {
					body[key] = value
				}
			}
		}
	}
	if strings.Contains(path, "{") {
		return request{}, core.NewKindError(core.KindInvalidArgument, fmt.Sprintf("drive: unresolved path parameter in %s", op.path))
	}
	req.path = path

	if fields, ok := args.String(fieldsParam); ok && strings.TrimSpace(fields) != "" {
		req.query[fieldsParam] = fields
	} else if op.fields != "" {
		req.query[fieldsParam] = op.fields
	}
	if op.paginated() {
		if token := args.PageToken(); token != "" {
			req.query[core.PageTokenField] = token
		}
		if size, ok := args.Int(core.PageSizeField); ok {
			req.query[core.PageSizeField] = strconv.Itoa(size)
		}
	}
	if op.allDrives {
		supports := true
		if value, ok := args.Bool(supportsAllDrivesParam); ok {
			supports = value
		}
		req.query[supportsAllDrivesParam] = strconv.FormatBool(supports)
	}
	if op.method != "GET" && op.method != "DELETE" && body == nil {
		body = map[string]any{}
	}
	req.body = body
	return req, nil
}

func (op operation) emptyResult(args core.Args) any {
	if len(op.deleted) == 0 {
		return map[string]any{}
	}
	result := map[string]any{"status": "deleted"}
	for _, name := range op.deleted {
		if value, ok := args[name]; ok {
			result[name] = value
		}
	}
	return result
}

func pathValue(value any) (string, error) {
	text, ok := value.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("must be a non-empty string")
	}
	return text, nil
}

func queryValue(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			parts = append(parts, queryValue(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(typed)
	}
}
