// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package claudecode

// rate holds per-million-token USD pricing for one model.
type rate struct {
	Input      float64
	Output     float64
	CacheRead  float64
	CacheWrite float64
}

// rateTable holds static per-model USD rates used for cost accounting.
var rateTable = map[string]rate{
	"claude-opus-4-5":      {Input: 15, Output: 75, CacheRead: 1.5, CacheWrite: 18.75},
	"claude-sonnet-4-5":    {Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75},
	"claude-haiku-4-5":     {Input: 1, Output: 5, CacheRead: 0.1, CacheWrite: 1.25},
	"opus":                 {Input: 15, Output: 75, CacheRead: 1.5, CacheWrite: 18.75},
	"sonnet":               {Input: 3, Output: 15, CacheRead: 0.3, CacheWrite: 3.75},
	"haiku":                {Input: 1, Output: 5, CacheRead: 0.1, CacheWrite: 1.25},
}

func costUSD(model string, inputTok, outputTok, cacheRead, cacheWrite int64) float64 {
	r, ok := rateTable[model]
	if !ok {
		r = rateTable["sonnet"]
	}
	const perMillion = 1_000_000.0
	return float64(inputTok)/perMillion*r.Input +
		float64(outputTok)/perMillion*r.Output +
		float64(cacheRead)/perMillion*r.CacheRead +
		float64(cacheWrite)/perMillion*r.CacheWrite
}
