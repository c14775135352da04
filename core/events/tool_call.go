package events

// KindToolCallRequested identifies a remote function-call request.
const KindToolCallRequested Kind = "tool_call.requested"

// ToolCallRequested asks the host to run a declared tool.
type ToolCallRequested struct {
	Base
	ID        string
	Name      string
	Arguments map[string]any
}

// NewToolCallRequested creates a tool call request event.
func NewToolCallRequested(id, name string, arguments map[string]any) ToolCallRequested {
	return ToolCallRequested{Base: newBase(KindToolCallRequested), ID: id, Name: name, Arguments: arguments}
}
