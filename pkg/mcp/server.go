// Package mcp implements a Model Context Protocol server exposing the stack
// device as MCP tools over stdio transport.
//
// One server run is one device session: it begins when the transport
// connects and ends when the run returns.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/stackdev/pkg/chardev"
	"github.com/Sumatoshi-tech/stackdev/pkg/device"
	"github.com/Sumatoshi-tech/stackdev/pkg/observability"
)

const (
	// serverName is the MCP server implementation name.
	serverName = "stackdev"

	// toolCount is the expected number of registered tools.
	toolCount = 4
)

// ErrNoSession reports a tool call made while no run is active.
var ErrNoSession = errors.New("no active device session")

// ErrAlreadyRunning reports a second concurrent run of the same server.
var ErrAlreadyRunning = errors.New("mcp server already running")

// ServerDeps holds injectable dependencies for the MCP server.
// Zero-value fields use production defaults.
type ServerDeps struct {
	// Scope hands out the device for the run's session. Required.
	Scope *device.Scope

	// Version is reported as the MCP implementation version.
	Version string

	// Logger is an optional structured logger. Nil uses slog default.
	Logger *slog.Logger

	// Metrics is an optional RED metrics recorder. Nil disables per-tool metrics.
	Metrics *observability.REDMetrics

	// Tracer is an optional OTel tracer for per-tool-call spans. Nil disables tracing.
	Tracer trace.Tracer
}

// Server wraps the MCP SDK server with the stack tool registrations.
type Server struct {
	inner   *mcpsdk.Server
	scope   *device.Scope
	logger  *slog.Logger
	metrics *observability.REDMetrics
	tracer  trace.Tracer

	mu    sync.RWMutex
	tools []string
	file  *chardev.File
}

// NewServer creates a new MCP server with all stack tools registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	version := deps.Version
	if version == "" {
		version = "dev"
	}

	inner := mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    serverName,
			Version: version,
		},
		&mcpsdk.ServerOptions{Logger: logger},
	)

	srv := &Server{
		inner:   inner,
		scope:   deps.Scope,
		logger:  logger,
		tools:   make([]string, 0, toolCount),
		metrics: deps.Metrics,
		tracer:  deps.Tracer,
	}

	srv.registerTools()

	return srv
}

// ListToolNames returns the sorted names of all registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.tools))
	copy(names, s.tools)
	sort.Strings(names)

	return names
}

// Run starts the MCP server on stdio transport. It blocks until the context
// is canceled or the connection closes.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport begins a device session, serves the given transport and
// ends the session when the connection closes or ctx is canceled.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	err := s.beginSession(ctx)
	if err != nil {
		return err
	}

	defer s.endSession(ctx)

	err = s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

func (s *Server) beginSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		return ErrAlreadyRunning
	}

	file, err := chardev.OpenScoped(ctx, s.scope)
	if err != nil {
		return fmt.Errorf("begin device session: %w", err)
	}

	s.file = file
	s.logger.InfoContext(ctx, "mcp session begin", "device", file.Device().Name())

	return nil
}

func (s *Server) endSession(ctx context.Context) {
	s.mu.Lock()
	file := s.file
	s.file = nil
	s.mu.Unlock()

	if file == nil {
		return
	}

	// The run context is usually canceled by now; release still has to log.
	err := file.CloseContext(context.WithoutCancel(ctx))
	if err != nil && !errors.Is(err, chardev.ErrFileClosed) {
		s.logger.WarnContext(ctx, "mcp session end failed", "error", err)

		return
	}

	s.logger.InfoContext(ctx, "mcp session end")
}

func (s *Server) session() (*chardev.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.file == nil {
		return nil, ErrNoSession
	}

	return s.file, nil
}

// registerTools adds all stack MCP tools to the server.
func (s *Server) registerTools() {
	addTool(s, ToolNamePush, pushToolDescription, s.handlePush)
	addTool(s, ToolNamePop, popToolDescription, s.handlePop)
	addTool(s, ToolNameResize, resizeToolDescription, s.handleResize)
	addTool(s, ToolNameStat, statToolDescription, s.handleStat)
}

func addTool[Input any](
	s *Server,
	name, description string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{
		Name:        name,
		Description: description,
	}, withMetrics(s.metrics, name, withTracing(s.tracer, name, handler)))

	s.trackTool(name)
}

// mcpSpanPrefix is the prefix for MCP tool span names.
const mcpSpanPrefix = "mcp."

// traceIDMetaKey is the metadata key for trace_id in MCP tool responses.
const traceIDMetaKey = "trace_id"

// withTracing wraps an MCP tool handler to create an OTel span per invocation
// and include trace_id in the response content when sampled.
func withTracing[Input any](
	tracer trace.Tracer,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if tracer == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		ctx, span := tracer.Start(ctx, mcpSpanPrefix+toolName,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("mcp.tool", toolName)),
		)
		defer span.End()

		result, output, err := handler(ctx, req, input)

		sc := span.SpanContext()
		if sc.IsSampled() && result != nil {
			traceContent := &mcpsdk.TextContent{Text: fmt.Sprintf("%s=%s", traceIDMetaKey, sc.TraceID().String())}
			result.Content = append(result.Content, traceContent)
		}

		return result, output, err
	}
}

// withMetrics wraps an MCP tool handler to record RED metrics per invocation.
func withMetrics[Input any](
	metrics *observability.REDMetrics,
	toolName string,
	handler func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error),
) func(context.Context, *mcpsdk.CallToolRequest, Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if metrics == nil {
		return handler
	}

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		decInflight := metrics.TrackInflight(ctx, mcpSpanPrefix+toolName)
		defer decInflight()

		result, output, err := handler(ctx, req, input)

		status := observability.StatusOK
		if err != nil || (result != nil && result.IsError) {
			status = observability.StatusError
		}

		metrics.RecordRequest(ctx, mcpSpanPrefix+toolName, status, time.Since(start))

		return result, output, err
	}
}

func (s *Server) trackTool(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tools = append(s.tools, name)
}
