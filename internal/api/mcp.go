package api

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/calcdeck/internal/calculator"
	"github.com/kalambet/calcdeck/internal/history"
)

const (
	historyResourceURI    = "calc://history"
	historyTemplatePrefix = historyResourceURI + "/"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Service *calculator.Service
	History HistoryStore
	Version string
}

// NewMCPServer creates an MCP server exposing the calculators and their
// history. It runs in the caller's process, so calculations stay local.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"calcdeck",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("calcdeck: closed-form calculators (finance, health, math, unit conversion) with a short per-calculator history of recent results."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("list_calculators",
			mcp.WithDescription("List the available calculators with their input fields."),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpListCalculators(deps),
	)

	s.AddTool(
		mcp.NewTool("calculate",
			mcp.WithDescription("Run a calculator and record the result in its history."),
			mcp.WithString("calculator_id", mcp.Description("Calculator id, e.g. loan-calculator"), mcp.Required()),
			mcp.WithObject("inputs", mcp.Description("Field name to value (number or string). Omitted fields use their defaults."), mcp.Required()),
		),
		mcpCalculate(deps),
	)

	s.AddTool(
		mcp.NewTool("recent_calculations",
			mcp.WithDescription("Return a calculator's most recent results, newest first."),
			mcp.WithString("calculator_id", mcp.Description("Calculator id"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default: all kept)")),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		mcpRecent(deps),
	)

	s.AddTool(
		mcp.NewTool("clear_history",
			mcp.WithDescription("Delete every recorded result for one calculator."),
			mcp.WithString("calculator_id", mcp.Description("Calculator id"), mcp.Required()),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithIdempotentHintAnnotation(true),
		),
		mcpClearHistory(deps),
	)

	s.AddResource(
		mcp.NewResource(
			historyResourceURI,
			"Calculation History",
			mcp.WithResourceDescription("Calculators with recorded history, most recently used first"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceHistory(deps),
	)

	s.AddResourceTemplate(
		mcp.NewResourceTemplate(
			historyTemplatePrefix+"{calculatorId}",
			"Calculator History",
			mcp.WithTemplateDescription("Recorded results for one calculator, newest first"),
			mcp.WithTemplateMIMEType("application/json"),
		),
		mcpResourceCalculatorHistory(deps),
	)

	return s
}

func mcpListCalculators(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := json.Marshal(deps.Service.Catalog().All())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal calculators: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpCalculate(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("calculator_id")
		if err != nil {
			return mcpError("calculator_id is required"), nil
		}

		raw, _ := req.GetArguments()["inputs"].(map[string]any)
		inputs, err := inputsFromArgs(raw)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		out, err := deps.Service.Calculate(id, inputs)
		if err != nil {
			return mcpError(err.Error()), nil
		}

		b, err := json.Marshal(out)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpRecent(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("calculator_id")
		if err != nil {
			return mcpError("calculator_id is required"), nil
		}

		entries, err := deps.Service.Recent(id)
		if err != nil {
			return mcpError(err.Error()), nil
		}
		if limit := req.GetInt("limit", 0); limit > 0 && limit < len(entries) {
			entries = entries[:limit]
		}

		b, err := json.Marshal(entries)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal entries: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpClearHistory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("calculator_id")
		if err != nil {
			return mcpError("calculator_id is required"), nil
		}
		if err := deps.Service.Clear(id); err != nil {
			return mcpError(err.Error()), nil
		}
		return mcpText(fmt.Sprintf("Cleared history for %s", id)), nil
	}
}

func mcpResourceHistory(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(deps.History.Partitions())
		if err != nil {
			return nil, fmt.Errorf("failed to marshal history summary: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpResourceCalculatorHistory(deps MCPDeps) server.ResourceTemplateHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		id := strings.TrimPrefix(req.Params.URI, historyTemplatePrefix)
		entries, err := deps.Service.Recent(id)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(entries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal entries: %w", err)
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// inputsFromArgs converts decoded JSON arguments to Inputs. Keys are taken
// in sorted order; the calculator reorders them to its form order.
func inputsFromArgs(raw map[string]any) (*history.Inputs, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	inputs := history.NewInputs()
	for _, k := range keys {
		switch v := raw[k].(type) {
		case string:
			inputs.Set(k, history.String(v))
		case float64:
			inputs.Set(k, history.Number(v))
		case int:
			inputs.Set(k, history.Number(float64(v)))
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("input %s: %w", k, err)
			}
			inputs.Set(k, history.Number(f))
		case nil:
			// treated as omitted
		default:
			return nil, fmt.Errorf("input %s must be a number or string", k)
		}
	}
	return inputs, nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
