package httpapi

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"

	"pocketd/pkg/types"
)

// routeDoc serves a Swagger 2.0 document generated from the route table.
type routeDoc struct {
	once sync.Once
	doc  string
}

func (d *routeDoc) ReadDoc() string {
	d.once.Do(func() {
		b, err := json.Marshal(buildSwagger(routes))
		if err != nil {
			d.doc = "{}"
			return
		}
		d.doc = string(b)
	})
	return d.doc
}

var registerDoc sync.Once

// MountSwagger serves the UI under /swagger/ and the document at
// /swagger/doc.json.
func MountSwagger(r chi.Router) {
	registerDoc.Do(func() { swag.Register(swag.Name, &routeDoc{}) })
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func buildSwagger(table []route) map[string]any {
	paths := map[string]map[string]any{}
	defs := map[string]any{}
	for _, rt := range table {
		op := map[string]any{
			"summary":  rt.summary,
			"tags":     []string{rt.tag},
			"produces": []string{"application/json"},
		}
		if rt.pattern == "/api/chat/stream" {
			op["produces"] = []string{"text/event-stream"}
		}
		if rt.body != nil {
			op["consumes"] = []string{"application/json"}
			op["parameters"] = []map[string]any{{
				"in": "body", "name": "body", "required": true,
				"schema": schemaRef(rt.body, defs),
			}}
		}
		ok := map[string]any{"description": "OK"}
		if rt.resp != nil {
			ok["schema"] = schemaRef(rt.resp, defs)
		}
		op["responses"] = map[string]any{
			"200": ok,
			"500": map[string]any{"description": "Internal error", "schema": schemaRef(types.ErrorResponse{}, defs)},
		}
		if rt.limited {
			op["responses"].(map[string]any)["429"] = map[string]any{"description": "Rate limited"}
		}
		if paths[rt.pattern] == nil {
			paths[rt.pattern] = map[string]any{}
		}
		paths[rt.pattern][strings.ToLower(rt.method)] = op
	}
	return map[string]any{
		"swagger": "2.0",
		"info": map[string]any{
			"title":       "pocketd API",
			"version":     "1.0",
			"description": "Model management and chat inference over a local engine script.",
		},
		"basePath":    "/",
		"schemes":     []string{"http"},
		"paths":       paths,
		"definitions": defs,
	}
}

// schemaRef describes v's type, registering named structs in defs.
func schemaRef(v any, defs map[string]any) map[string]any {
	return schemaOf(reflect.TypeOf(v), defs)
}

func schemaOf(t reflect.Type, defs map[string]any) map[string]any {
	switch t.Kind() {
	case reflect.Pointer:
		return schemaOf(t.Elem(), defs)
	case reflect.String:
		return map[string]any{"type": "string"}
	case reflect.Bool:
		return map[string]any{"type": "boolean"}
	case reflect.Int, reflect.Int32, reflect.Int64, reflect.Uint64:
		return map[string]any{"type": "integer"}
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}
	case reflect.Slice:
		return map[string]any{"type": "array", "items": schemaOf(t.Elem(), defs)}
	case reflect.Map:
		return map[string]any{"type": "object", "additionalProperties": schemaOf(t.Elem(), defs)}
	case reflect.Struct:
		props := map[string]any{}
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" || !f.IsExported() {
				continue
			}
			if name == "" {
				name = f.Name
			}
			p := schemaOf(f.Type, defs)
			if ex := f.Tag.Get("example"); ex != "" {
				p["example"] = ex
			}
			props[name] = p
		}
		obj := map[string]any{"type": "object", "properties": props}
		if t.Name() == "" {
			return obj
		}
		defs[t.Name()] = obj
		return map[string]any{"$ref": "#/definitions/" + t.Name()}
	default:
		return map[string]any{}
	}
}
