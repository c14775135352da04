// Package tools maps remote function-call requests onto host-side actions.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Handler runs a tool with decoded call arguments and returns a short
// result for the remote engine.
type Handler func(ctx context.Context, arguments map[string]any) (string, error)

// Tool is a named capability declared to the remote engine.
type Tool struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema

	handler Handler
}

// Declaration is the part of a Tool that is sent to the remote engine.
type Declaration struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

var reflector = jsonschema.Reflector{
	Anonymous:      true,
	DoNotReference: true,
	ExpandedStruct: true,
}

// NewTool declares a tool whose parameters are described by T. Call
// arguments are decoded into a T before fn runs.
func NewTool[T any](name, description string, fn func(ctx context.Context, parameters T) (string, error)) Tool {
	var zero T
	schema := reflector.Reflect(&zero)
	schema.Version = ""

	return Tool{
		Name:        name,
		Description: description,
		Parameters:  schema,
		handler: func(ctx context.Context, arguments map[string]any) (string, error) {
			var parameters T
			raw, err := json.Marshal(arguments)
			if err != nil {
				return "", fmt.Errorf("failed to encode arguments: %w", err)
			}
			if err := json.Unmarshal(raw, &parameters); err != nil {
				return "", fmt.Errorf("failed to decode arguments: %w", err)
			}
			return fn(ctx, parameters)
		},
	}
}

// NewRawTool declares a tool that receives the raw argument map.
func NewRawTool(name, description string, parameters *jsonschema.Schema, handler Handler) Tool {
	return Tool{Name: name, Description: description, Parameters: parameters, handler: handler}
}

func (t Tool) Execute(ctx context.Context, arguments map[string]any) (string, error) {
	if t.handler == nil {
		return "", fmt.Errorf("tool %q has no handler", t.Name)
	}
	return t.handler(ctx, arguments)
}
