package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mbd888/fraudscore/internal/features"
)

const defaultListLimit = 20

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleScoreTransaction builds a transaction record from the tool
// arguments and scores it.
func (h *Handlers) HandleScoreTransaction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	timestamp := req.GetString("timestamp", "")
	if timestamp == "" {
		return mcp.NewToolResultError("timestamp is required"), nil
	}
	amount, ok := args["amount"]
	if !ok || amount == nil {
		return mcp.NewToolResultError("amount is required"), nil
	}

	record, err := buildRecord(args, timestamp)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	raw, err := h.client.ScoreTransaction(ctx, record)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to score transaction: %v", err)), nil
	}

	text, err := formatScore(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse score: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetModelInfo describes the loaded model.
func (h *Handlers) HandleGetModelInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetModelInfo(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get model info: %v", err)), nil
	}

	text, err := formatModelInfo(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse model info: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListCustomerPredictions lists a customer's recent predictions.
func (h *Handlers) HandleListCustomerPredictions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	customerID := req.GetString("customer_id", "")
	if customerID == "" {
		return mcp.NewToolResultError("customer_id is required"), nil
	}
	limit := req.GetInt("limit", defaultListLimit)

	raw, err := h.client.ListCustomerPredictions(ctx, customerID, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list predictions: %v", err)), nil
	}

	text, err := formatPredictionList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse predictions: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Request building ---

// buildRecord maps tool arguments onto the API's column names.
func buildRecord(args map[string]any, timestamp string) (map[string]any, error) {
	record := map[string]any{
		features.ColTimestamp: timestamp,
		features.ColAmount:    args["amount"],
	}
	if v := getString(args, "transaction_id"); v != "" {
		record[features.ColTransactionID] = v
	}
	if v := getString(args, "customer_id"); v != "" {
		record[features.ColCustomerID] = v
	}
	if v, ok := args["customer_freq"]; ok && v != nil {
		record[features.ColCustomerFreq] = v
	}
	if v, ok := args["customer_avg_amount"]; ok && v != nil {
		record[features.ColCustomerAvgAmount] = v
	}

	if raw, ok := args["categorical"]; ok && raw != nil {
		cats, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("categorical must be an object of column names to values")
		}
		for col, v := range cats {
			if _, exists := record[col]; exists {
				return nil, fmt.Errorf("categorical column %q collides with a named argument", col)
			}
			record[col] = v
		}
	}
	return record, nil
}

// --- Formatting helpers ---

func formatScore(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	p, ok := getFloat(m, "fraud_probability")
	if !ok {
		return "", fmt.Errorf("no fraud_probability in response: %s", string(raw))
	}

	fraud := "no"
	if v, _ := getFloat(m, "is_fraud"); v == 1 {
		fraud = "yes"
	}

	var sb strings.Builder
	sb.WriteString("Fraud Assessment:\n")
	fmt.Fprintf(&sb, "  Fraud: %s\n", fraud)
	fmt.Fprintf(&sb, "  Probability: %.4f (%.1f%%)\n", p, p*100)
	fmt.Fprintf(&sb, "  Risk Level: %s\n", getString(m, "risk_level"))
	if v := getString(m, "timestamp"); v != "" {
		fmt.Fprintf(&sb, "  Scored At: %s\n", v)
	}
	return sb.String(), nil
}

func formatModelInfo(raw json.RawMessage) (string, error) {
	var info struct {
		Kind         string             `json:"kind"`
		Version      string             `json:"version"`
		NumFeatures  int                `json:"numFeatures"`
		FeatureNames []string           `json:"featureNames"`
		Encoders     map[string]int     `json:"encoders"`
		Thresholds   map[string]float64 `json:"thresholds"`
		FallbackCode float64            `json:"fallbackCode"`
		Locale       string             `json:"locale"`
		RiskLabels   []string           `json:"riskLabels"`
	}
	if err := json.Unmarshal(raw, &info); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Model: %s (%s)\n", info.Kind, info.Version)
	fmt.Fprintf(&sb, "Features: %d\n", info.NumFeatures)
	for i, name := range info.FeatureNames {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, name)
	}

	if len(info.Encoders) > 0 {
		cols := make([]string, 0, len(info.Encoders))
		for c := range info.Encoders {
			cols = append(cols, c)
		}
		sort.Strings(cols)
		sb.WriteString("Categorical Columns:\n")
		for _, c := range cols {
			fmt.Fprintf(&sb, "  %s: %d known values\n", c, info.Encoders[c])
		}
		fmt.Fprintf(&sb, "  Unknown values encode as %g\n", info.FallbackCode)
	}

	if high, ok := info.Thresholds["high"]; ok {
		fmt.Fprintf(&sb, "Thresholds: high > %g, medium > %g\n", high, info.Thresholds["medium"])
	}
	switch {
	case len(info.RiskLabels) == 3:
		fmt.Fprintf(&sb, "Risk Labels: %s (low), %s (medium), %s (high)\n",
			info.RiskLabels[0], info.RiskLabels[1], info.RiskLabels[2])
	case info.Locale != "":
		fmt.Fprintf(&sb, "Risk Labels: %s\n", info.Locale)
	}
	return sb.String(), nil
}

func formatPredictionList(raw json.RawMessage) (string, error) {
	var resp struct {
		CustomerID  string           `json:"customerId"`
		Predictions []map[string]any `json:"predictions"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected predictions response format")
	}

	if len(resp.Predictions) == 0 {
		return fmt.Sprintf("No predictions found for customer %s.", resp.CustomerID), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d prediction(s) for customer %s:\n\n", len(resp.Predictions), resp.CustomerID)
	for i, p := range resp.Predictions {
		prob, _ := getFloat(p, "fraudProbability")
		amount, _ := getFloat(p, "amount")
		fmt.Fprintf(&sb, "%d. %s | %.2f TRY | p=%.4f | %s\n",
			i+1, getString(p, "scoredAt"), amount, prob, getString(p, "riskLevel"))
		if id := getString(p, "transactionId"); id != "" {
			fmt.Fprintf(&sb, "   Transaction: %s\n", id)
		}
	}
	return sb.String(), nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
