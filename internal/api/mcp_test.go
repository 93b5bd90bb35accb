package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/calcdeck/internal/calculator"
	"github.com/kalambet/calcdeck/internal/history"
	"github.com/kalambet/calcdeck/internal/storage"
)

// --- helpers ---

func newTestMCPDeps(t *testing.T) MCPDeps {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv, err := storage.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { kv.Close() })

	store := history.New(kv, history.Options{Logger: logger})
	return MCPDeps{
		Service: calculator.NewService(calculator.Default(), store, logger),
		History: store,
		Version: "test",
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

func calculate(t *testing.T, deps MCPDeps, id string, inputs map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	result, err := mcpCalculate(deps)(context.Background(), makeCallToolRequest("calculate", map[string]interface{}{
		"calculator_id": id,
		"inputs":        inputs,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

// --- tests ---

func TestNewMCPServer_Registers(t *testing.T) {
	s := NewMCPServer(newTestMCPDeps(t))
	if s == nil {
		t.Fatal("nil server")
	}
}

func TestMCPTool_Calculate_RecordsHistory(t *testing.T) {
	deps := newTestMCPDeps(t)

	result := calculate(t, deps, "loan-calculator", map[string]interface{}{
		"principal": 250000.0,
		"rate":      6.5,
		"years":     "30",
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var out struct {
		Result string        `json:"result"`
		Entry  history.Entry `json:"entry"`
	}
	if err := json.Unmarshal([]byte(toolText(t, result)), &out); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if out.Result != "Monthly payment: $1,580.17, Total interest: $318,861.20" {
		t.Errorf("result = %q", out.Result)
	}

	entries := deps.History.Load("loan-calculator")
	if len(entries) != 1 || entries[0].ID != out.Entry.ID {
		t.Fatalf("history = %+v, want the recorded entry", entries)
	}
	if got := strings.Join(entries[0].InputPairs(), " "); got != "principal=250000 rate=6.5 years=30" {
		t.Errorf("inputs = %q", got)
	}
}

func TestMCPTool_Calculate_Errors(t *testing.T) {
	deps := newTestMCPDeps(t)
	tests := []struct {
		name   string
		id     string
		inputs map[string]interface{}
		want   string
	}{
		{"unknown calculator", "warp-drive", map[string]interface{}{}, "unknown calculator"},
		{"invalid input", "bmi-calculator", map[string]interface{}{"weight": 70.0}, "height is required"},
		{"bad value type", "bmi-calculator", map[string]interface{}{"weight": true}, "must be a number or string"},
	}
	for _, tt := range tests {
		result := calculate(t, deps, tt.id, tt.inputs)
		if !result.IsError {
			t.Errorf("%s: expected error result", tt.name)
			continue
		}
		if got := toolText(t, result); !strings.Contains(got, tt.want) {
			t.Errorf("%s: %q does not contain %q", tt.name, got, tt.want)
		}
	}
	if parts := deps.History.Partitions(); len(parts) != 0 {
		t.Errorf("failed calculations were recorded: %+v", parts)
	}
}

func TestMCPTool_Calculate_MissingID(t *testing.T) {
	deps := newTestMCPDeps(t)
	result, err := mcpCalculate(deps)(context.Background(), makeCallToolRequest("calculate", map[string]interface{}{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected error result")
	}
}

func TestMCPTool_RecentAndClear(t *testing.T) {
	deps := newTestMCPDeps(t)
	for _, bill := range []float64{10, 20, 30} {
		if r := calculate(t, deps, "tip-calculator", map[string]interface{}{"bill": bill}); r.IsError {
			t.Fatalf("calculate: %s", toolText(t, r))
		}
	}

	result, err := mcpRecent(deps)(context.Background(), makeCallToolRequest("recent_calculations", map[string]interface{}{
		"calculator_id": "tip-calculator",
		"limit":         2,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var entries []history.Entry
	if err := json.Unmarshal([]byte(toolText(t, result)), &entries); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if !strings.HasPrefix(entries[0].Result, "Tip: $4.50") {
		t.Errorf("newest entry = %q, want the $30 bill", entries[0].Result)
	}

	result, err = mcpClearHistory(deps)(context.Background(), makeCallToolRequest("clear_history", map[string]interface{}{
		"calculator_id": "tip-calculator",
	}))
	if err != nil || result.IsError {
		t.Fatalf("clear failed: %v %v", err, result)
	}
	if got := deps.History.Load("tip-calculator"); len(got) != 0 {
		t.Errorf("history not cleared: %d entries", len(got))
	}

	// Clearing again is a no-op, not an error.
	result, _ = mcpClearHistory(deps)(context.Background(), makeCallToolRequest("clear_history", map[string]interface{}{
		"calculator_id": "tip-calculator",
	}))
	if result.IsError {
		t.Errorf("second clear returned error: %s", toolText(t, result))
	}
}

func TestMCPTool_Recent_UnknownCalculator(t *testing.T) {
	deps := newTestMCPDeps(t)
	result, _ := mcpRecent(deps)(context.Background(), makeCallToolRequest("recent_calculations", map[string]interface{}{
		"calculator_id": "nope",
	}))
	if !result.IsError {
		t.Error("expected error result")
	}
}

func TestMCPTool_ListCalculators(t *testing.T) {
	deps := newTestMCPDeps(t)
	result, err := mcpListCalculators(deps)(context.Background(), makeCallToolRequest("list_calculators", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var calcs []calculator.Calculator
	if err := json.Unmarshal([]byte(toolText(t, result)), &calcs); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(calcs) != 10 {
		t.Errorf("got %d calculators, want 10", len(calcs))
	}
}

func TestMCPResource_History(t *testing.T) {
	deps := newTestMCPDeps(t)
	calculate(t, deps, "bmi-calculator", map[string]interface{}{"weight": 70.0, "height": 175.0})

	contents, err := mcpResourceHistory(deps)(context.Background(), makeReadResourceRequest(historyResourceURI))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	var parts []history.PartitionSummary
	if err := json.Unmarshal([]byte(tc.Text), &parts); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(parts) != 1 || parts[0].CalculatorID != "bmi-calculator" || parts[0].Count != 1 {
		t.Errorf("parts = %+v", parts)
	}
}

func TestMCPResource_CalculatorHistory(t *testing.T) {
	deps := newTestMCPDeps(t)
	calculate(t, deps, "length-converter", map[string]interface{}{"value": 1.0, "from": "mi", "to": "km"})

	contents, err := mcpResourceCalculatorHistory(deps)(context.Background(), makeReadResourceRequest("calc://history/length-converter"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tc := contents[0].(mcp.TextResourceContents)
	if !strings.Contains(tc.Text, `"result":"1 mi = 1.609344 km"`) {
		t.Errorf("resource text = %s", tc.Text)
	}

	if _, err := mcpResourceCalculatorHistory(deps)(context.Background(), makeReadResourceRequest("calc://history/nope")); err == nil {
		t.Error("expected error for unknown calculator")
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	deps := newTestMCPDeps(t)
	handler := mcpCalculate(deps)

	var wg sync.WaitGroup
	errs := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := handler(context.Background(), makeCallToolRequest("calculate", map[string]interface{}{
				"calculator_id": "percentage-calculator",
				"inputs":        map[string]interface{}{"percent": float64(i), "value": 100.0},
			}))
			if err != nil {
				errs <- err.Error()
				return
			}
			if result.IsError {
				errs <- "tool returned error result"
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Errorf("concurrent call failed: %s", e)
	}

	if got := len(deps.History.Load("percentage-calculator")); got != 10 {
		t.Errorf("history has %d entries, want cap 10", got)
	}
}

func TestInputsFromArgs(t *testing.T) {
	in, err := inputsFromArgs(map[string]interface{}{
		"b":    2.5,
		"a":    "x",
		"n":    json.Number("7"),
		"skip": nil,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var keys []string
	for p := in.Oldest(); p != nil; p = p.Next() {
		keys = append(keys, p.Key+"="+p.Value.String())
	}
	if got := strings.Join(keys, ","); got != "a=x,b=2.5,n=7" {
		t.Errorf("inputs = %s", got)
	}
}
