package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AniketChoudhary834/LMS/internal/apperr"
)

const errorSchemaRef = "#/components/schemas/ErrorResponse"

var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"patch": true, "head": true, "options": true,
}

type openAPIDoc struct {
	Paths      map[string]map[string]yaml.Node `yaml:"paths"`
	Components struct {
		Schemas   map[string]schema   `yaml:"schemas"`
		Responses map[string]response `yaml:"responses"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Enum       []string          `yaml:"enum"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

type mediaType struct {
	Schema schema `yaml:"schema"`
}

type response struct {
	Ref     string               `yaml:"$ref"`
	Content map[string]mediaType `yaml:"content"`
}

type operation struct {
	Responses map[string]response `yaml:"responses"`
}

type schemaShape struct {
	Type       string
	Required   []string
	Properties map[string]propertyShape
}

type propertyShape struct {
	Type     string
	ItemsRef string
	Enum     string
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	return parseDoc(raw)
}

func parseDoc(raw []byte) (openAPIDoc, error) {
	var doc openAPIDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse openapi: %w", err)
	}
	return doc, nil
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

// validateErrorResponse checks the {error, code} body and that code lists
// exactly the error kinds the services can emit.
func validateErrorResponse(scope string, s schema) error {
	if s.Type != "object" {
		return fmt.Errorf("%s ErrorResponse must be object", scope)
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("%s ErrorResponse.required must include %q", scope, field)
		}
	}
	errorProp, ok := s.Properties["error"]
	if !ok || errorProp.Type != "string" {
		return fmt.Errorf("%s ErrorResponse.error must be string", scope)
	}
	codeProp, ok := s.Properties["code"]
	if !ok || codeProp.Type != "string" {
		return fmt.Errorf("%s ErrorResponse.code must be string", scope)
	}

	documented := makeSet(codeProp.Enum)
	for _, kind := range apperr.Kinds() {
		if !documented[string(kind)] {
			return fmt.Errorf("%s ErrorResponse.code enum misses %q", scope, kind)
		}
		delete(documented, string(kind))
	}
	if len(documented) > 0 {
		return fmt.Errorf("%s ErrorResponse.code enum has unknown values %v", scope, sortedKeys(documented))
	}
	return nil
}

// validateErrorStatuses requires every 4xx and 5xx response to carry an
// ErrorResponse body, either inline or through a components response.
func validateErrorStatuses(scope string, doc openAPIDoc) error {
	for _, path := range sortedKeys(doc.Paths) {
		item := doc.Paths[path]
		for _, method := range sortedKeys(item) {
			if !httpMethods[method] {
				continue
			}
			node := item[method]
			var op operation
			if err := node.Decode(&op); err != nil {
				return fmt.Errorf("%s %s %s: %w", scope, strings.ToUpper(method), path, err)
			}
			for status, resp := range op.Responses {
				code, err := strconv.Atoi(status)
				if err != nil || code < 400 {
					continue
				}
				if !returnsErrorSchema(doc, resp) {
					return fmt.Errorf("%s %s %s: %s response must use ErrorResponse", scope, strings.ToUpper(method), path, status)
				}
			}
		}
	}
	return nil
}

func returnsErrorSchema(doc openAPIDoc, resp response) bool {
	if ref := strings.TrimSpace(resp.Ref); ref != "" {
		name, ok := strings.CutPrefix(ref, "#/components/responses/")
		if !ok {
			return false
		}
		target, ok := doc.Components.Responses[name]
		if !ok || target.Ref != "" {
			return false
		}
		resp = target
	}
	body, ok := resp.Content["application/json"]
	return ok && strings.TrimSpace(body.Schema.Ref) == errorSchemaRef
}

func shapeFromSchema(s schema) schemaShape {
	out := schemaShape{
		Type:       s.Type,
		Required:   append([]string(nil), s.Required...),
		Properties: make(map[string]propertyShape, len(s.Properties)),
	}
	sort.Strings(out.Required)
	for name, prop := range s.Properties {
		shape := propertyShape{Type: prop.Type}
		if prop.Items != nil {
			shape.ItemsRef = strings.TrimSpace(prop.Items.Ref)
		}
		enum := append([]string(nil), prop.Enum...)
		sort.Strings(enum)
		shape.Enum = strings.Join(enum, ",")
		out.Properties[name] = shape
	}
	return out
}

func ensureSameShape(name string, left, right schemaShape) error {
	if left.Type != right.Type {
		return fmt.Errorf("%s type mismatch: %q vs %q", name, left.Type, right.Type)
	}
	if strings.Join(left.Required, ",") != strings.Join(right.Required, ",") {
		return fmt.Errorf("%s required mismatch: %v vs %v", name, left.Required, right.Required)
	}
	if len(left.Properties) != len(right.Properties) {
		return fmt.Errorf("%s property count mismatch: %d vs %d", name, len(left.Properties), len(right.Properties))
	}
	for key, leftProp := range left.Properties {
		rightProp, ok := right.Properties[key]
		if !ok {
			return fmt.Errorf("%s missing property %q", name, key)
		}
		if leftProp != rightProp {
			return fmt.Errorf("%s property %q mismatch: %+v vs %+v", name, key, leftProp, rightProp)
		}
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
