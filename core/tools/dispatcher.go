package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Call is a function-call request from the remote engine.
type Call struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Response answers a Call. ID is echoed unchanged so the remote side can
// correlate it.
type Response struct {
	ID     string
	Name   string
	Result map[string]any
}

type Dispatcher struct {
	mu    sync.RWMutex
	tools []Tool
}

func NewDispatcher(tools ...Tool) *Dispatcher {
	d := &Dispatcher{}
	for _, tool := range tools {
		if err := d.Register(tool); err != nil {
			logger.Warn("Skipping tool", "tool", tool.Name, "error", err)
		}
	}
	return d
}

func (d *Dispatcher) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name must not be empty")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, registered := range d.tools {
		if registered.Name == tool.Name {
			return fmt.Errorf("tool %q already registered", tool.Name)
		}
	}
	d.tools = append(d.tools, tool)
	return nil
}

// Declarations lists the registered tools in registration order.
func (d *Dispatcher) Declarations() []Declaration {
	if d == nil {
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	var declarations []Declaration
	if err := copier.Copy(&declarations, d.tools); err != nil {
		logger.Error("Failed to copy tool declarations", "error", err)
		return nil
	}
	return declarations
}

func (d *Dispatcher) lookup(name string) (Tool, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, tool := range d.tools {
		if tool.Name == name {
			return tool, true
		}
	}
	return Tool{}, false
}

// Dispatch runs the tool named by call. It reports false when no tool
// matches, in which case no response must be sent. A matched call always
// yields exactly one response; handler failures are reported in it under
// "error".
func (d *Dispatcher) Dispatch(ctx context.Context, call Call) (Response, bool) {
	ctx, span := tracer.Start(ctx, "dispatch tool")
	defer span.End()
	span.SetAttributes(attribute.String("tool.name", call.Name), attribute.String("tool.call_id", call.ID))

	if d == nil {
		return Response{}, false
	}
	tool, ok := d.lookup(call.Name)
	if !ok {
		err := fmt.Errorf("tool not found: %s", call.Name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{}, false
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		err = fmt.Errorf("failed to execute tool %q: %w", call.Name, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Response{ID: call.ID, Name: call.Name, Result: map[string]any{"error": err.Error()}}, true
	}

	return Response{ID: call.ID, Name: call.Name, Result: map[string]any{"result": result}}, true
}
