package report

import (
	"encoding/json"
	"fmt"

	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// StateDiff renders an ASCII diff between the register state the host holds
// and the state the trace expects. Both maps are keyed by register name. The
// result is empty when the states agree.
func StateDiff(host, trace map[string]string, coloring bool) (string, error) {
	hostJSON, err := json.Marshal(host)
	if err != nil {
		return "", err
	}
	traceJSON, err := json.Marshal(trace)
	if err != nil {
		return "", err
	}

	delta, err := gojsondiff.New().Compare(traceJSON, hostJSON)
	if err != nil {
		return "", fmt.Errorf("error diffing register state: %w", err)
	}
	if !delta.Modified() {
		return "", nil
	}

	var left interface{}
	if err := json.Unmarshal(traceJSON, &left); err != nil {
		return "", err
	}
	cfg := formatter.AsciiFormatterConfig{
		ShowArrayIndex: true,
		Coloring:       coloring,
	}
	return formatter.NewAsciiFormatter(left, cfg).Format(delta)
}
