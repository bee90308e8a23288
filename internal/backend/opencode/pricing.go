// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package opencode

// rate mirrors claudecode's per-model pricing shape; OpenCode sessions can
// run non-Anthropic models too, so unknown models fall back to a generic
// mid-tier rate rather than guessing.
type rate struct {
	Input, Output, CacheRead, CacheWrite float64
}

var rateTable = map[string]rate{
	"claude-opus-4-5":   {15, 75, 1.5, 18.75},
	"claude-sonnet-4-5": {3, 15, 0.3, 3.75},
	"claude-haiku-4-5":  {1, 5, 0.1, 1.25},
	"gpt-5":             {5, 15, 0.5, 0},
	"gpt-5-mini":        {0.5, 1.5, 0.05, 0},
}

var genericRate = rate{Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75}

func costUSD(model string, inputTok, outputTok, cacheRead, cacheWrite int64) float64 {
	r, ok := rateTable[model]
	if !ok {
		r = genericRate
	}
	const perMillion = 1_000_000.0
	return float64(inputTok)/perMillion*r.Input +
		float64(outputTok)/perMillion*r.Output +
		float64(cacheRead)/perMillion*r.CacheRead +
		float64(cacheWrite)/perMillion*r.CacheWrite
}
