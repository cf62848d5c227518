package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the fraud scoring MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolScoreTransaction = mcp.NewTool("score_transaction",
	mcp.WithDescription(
		"Score a single payment transaction for fraud. "+
			"Returns whether it is classified as fraud, the fraud probability, "+
			"and a risk level (DÜŞÜK = low, ORTA = medium, YÜKSEK = high). "+
			"Unknown categorical values are accepted and never cause an error."),
	mcp.WithString("timestamp",
		mcp.Required(),
		mcp.Description("Transaction time, e.g. '2024-03-15T14:30:00' or '2024-03-15 14:30:00'")),
	mcp.WithNumber("amount",
		mcp.Required(),
		mcp.Description("Transaction amount in Turkish lira (TRY)")),
	mcp.WithString("transaction_id",
		mcp.Description("Optional transaction identifier, echoed into the audit trail")),
	mcp.WithString("customer_id",
		mcp.Description("Optional customer identifier. Enables history lookup when the server has a history backend.")),
	mcp.WithNumber("customer_freq",
		mcp.Description("How many transactions the customer has made. Overrides server-side history.")),
	mcp.WithNumber("customer_avg_amount",
		mcp.Description("The customer's average transaction amount in TRY. Overrides server-side history.")),
	mcp.WithObject("categorical",
		mcp.Description("Categorical columns by name, e.g. {\"Merchant Category\": \"Electronics\", \"Payment Method\": \"Credit Card\", \"City\": \"Istanbul\"}. "+
			"Use get_model_info to see which columns the model expects.")),
)

var ToolGetModelInfo = mcp.NewTool("get_model_info",
	mcp.WithDescription(
		"Describe the loaded fraud model: kind, version, the feature columns it expects in order, "+
			"the categorical columns with their number of known values, and the risk thresholds."),
)

var ToolListCustomerPredictions = mcp.NewTool("list_customer_predictions",
	mcp.WithDescription(
		"List a customer's most recent scored transactions, newest first, "+
			"with probability and risk level for each."),
	mcp.WithString("customer_id",
		mcp.Required(),
		mcp.Description("The customer identifier")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of predictions to return (1-100, default 20)")),
)
