package pipeline

// Log field constants
const (
	LogFieldRunID         = "run_id"
	LogFieldCorrelationID = "correlation_id"
	LogFieldGroupID       = "group_id"
	LogFieldProductID     = "product_id"
	LogFieldSource        = "source"
	LogFieldOffset        = "offset"
	LogFieldCount         = "count"
	LogFieldBacklog       = "backlog"
	LogFieldGrouped       = "grouped"
	LogFieldSkipped       = "skipped"
	LogFieldDeferred      = "deferred"
)
