package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/stackdev/pkg/chardev"
	"github.com/Sumatoshi-tech/stackdev/pkg/device"
)

// Tool name constants.
const (
	ToolNamePush   = "stack_push"
	ToolNamePop    = "stack_pop"
	ToolNameResize = "stack_resize"
	ToolNameStat   = "stack_stat"
)

// Tool description constants.
const (
	pushToolDescription = "Push a signed 32-bit integer onto the device stack. " +
		"Fails with kind 'exhausted' when the stack is full."

	popToolDescription = "Pop the most recently pushed value from the device stack. " +
		"Fails with kind 'empty' when nothing is stored."

	resizeToolDescription = "Change the stack capacity. Stored values are kept up to the new " +
		"capacity, the most recently pushed ones are dropped first."

	statToolDescription = "Report the device state, depth, capacity and lifecycle counters."
)

// Input types (auto-generate JSON schemas via struct tags).

// PushInput is the input schema for the stack_push tool.
type PushInput struct {
	Value int32 `json:"value" jsonschema:"signed 32-bit integer to push"`
}

// PopInput is the input schema for the stack_pop tool.
type PopInput struct{}

// ResizeInput is the input schema for the stack_resize tool.
type ResizeInput struct {
	Capacity uint64 `json:"capacity" jsonschema:"new capacity in values, between 1 and the configured maximum"`
}

// StatInput is the input schema for the stack_stat tool.
type StatInput struct{}

// Output types.

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// ValueOutput carries a popped value.
type ValueOutput struct {
	Value int32 `json:"value"`
}

// ShapeOutput reports the stack size after a mutation.
type ShapeOutput struct {
	Len int `json:"len"`
	Cap int `json:"cap"`
}

func (s *Server) handlePush(ctx context.Context, _ *mcpsdk.CallToolRequest, input PushInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	file, err := s.session()
	if err != nil {
		return errorResult(err)
	}

	_, err = file.WriteContext(ctx, chardev.AppendValue(nil, input.Value))
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(shapeOf(file.Device()))
}

func (s *Server) handlePop(ctx context.Context, _ *mcpsdk.CallToolRequest, _ PopInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	file, err := s.session()
	if err != nil {
		return errorResult(err)
	}

	buf := make([]byte, chardev.ValueSize)

	_, err = file.ReadContext(ctx, buf)
	if err != nil {
		return errorResult(err)
	}

	v, err := chardev.DecodeValue(buf)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(ValueOutput{Value: v})
}

func (s *Server) handleResize(ctx context.Context, _ *mcpsdk.CallToolRequest, input ResizeInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	file, err := s.session()
	if err != nil {
		return errorResult(err)
	}

	err = file.Ioctl(ctx, device.CmdResize, input.Capacity)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(shapeOf(file.Device()))
}

func (s *Server) handleStat(_ context.Context, _ *mcpsdk.CallToolRequest, _ StatInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	file, err := s.session()
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(file.Device().Stat())
}

func shapeOf(dev *device.Device) ShapeOutput {
	stats := dev.Stat()

	return ShapeOutput{Len: stats.Len, Cap: stats.Cap}
}

// Result helpers.

// errorResult builds a CallToolResult with isError set. The text leads with
// the error kind so clients can branch on it.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	kind := device.Kind(err)

	switch {
	case errors.Is(err, ErrNoSession):
		kind = "no_session"
	case errors.Is(err, chardev.ErrFileClosed):
		kind = "file_closed"
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: fmt.Sprintf("%s: %v", kind, err)},
		},
		IsError: true,
	}, ToolOutput{Data: map[string]string{"kind": kind, "error": err.Error()}}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}
