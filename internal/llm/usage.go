package llm

// DefaultTokenSplitRatio is the input share assumed when a provider reports
// only a combined token count. Extraction prompts carry the paper text, so
// input dominates. This is a heuristic, not a contract; override it via
// FactoryConfig.TokenSplitRatio.
const DefaultTokenSplitRatio = 0.7

// splitCombinedTokens estimates input/output tokens from a combined count
// using the configured input ratio.
func splitCombinedTokens(total int, inputRatio float64) (inputTokens, outputTokens int) {
	if inputRatio <= 0 || inputRatio > 1 {
		inputRatio = DefaultTokenSplitRatio
	}
	inputTokens = int(float64(total) * inputRatio)
	outputTokens = total - inputTokens
	return inputTokens, outputTokens
}

// annotateCost fills in the result's CostUSD from per-1000-token prices.
// Zero prices leave the cost at zero.
func annotateCost(result *ExtractionResult, inputCostPer1K, outputCostPer1K float64) {
	if result == nil {
		return
	}
	result.CostUSD = float64(result.InputTokens)/1000*inputCostPer1K +
		float64(result.OutputTokens)/1000*outputCostPer1K
}
