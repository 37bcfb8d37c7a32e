package events

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
)

// TokenCount splits tokens by direction
type TokenCount struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// Total returns input plus output
func (t TokenCount) Total() int {
	return t.Input + t.Output
}

// CostEntry is the spend of one agent, model or step
type CostEntry struct {
	Cost   float64    `json:"cost"`
	Tokens TokenCount `json:"tokens"`
	Calls  int        `json:"calls"`
}

// CostBreakdown aggregates model spend of a run
type CostBreakdown struct {
	TotalCost   float64              `json:"total_cost"`
	TotalTokens TokenCount           `json:"total_tokens"`
	ByAgent     map[string]CostEntry `json:"by_agent"`
	ByModel     map[string]CostEntry `json:"by_model"`
	ByStep      map[string]CostEntry `json:"by_step"`
}

// BreakdownOf sums agent_response events. Step-end events repeat the same
// totals and are ignored so nothing is counted twice.
func BreakdownOf(events []Event) CostBreakdown {
	b := CostBreakdown{
		ByAgent: map[string]CostEntry{},
		ByModel: map[string]CostEntry{},
		ByStep:  map[string]CostEntry{},
	}

	add := func(m map[string]CostEntry, key string, e Event) {
		entry := m[key]
		entry.Cost += e.Cost
		entry.Tokens.Input += e.InputTokens
		entry.Tokens.Output += e.OutputTokens
		entry.Calls++
		m[key] = entry
	}

	for _, e := range events {
		if e.Kind != KindAgentResponse {
			continue
		}
		if e.Cost <= 0 && e.InputTokens == 0 && e.OutputTokens == 0 {
			continue
		}

		b.TotalCost += e.Cost
		b.TotalTokens.Input += e.InputTokens
		b.TotalTokens.Output += e.OutputTokens

		if e.AgentName != "" {
			add(b.ByAgent, e.AgentName, e)
		}
		if model, ok := e.Data["model"].(string); ok && model != "" {
			add(b.ByModel, model, e)
		}
		if e.StepID != "" {
			add(b.ByStep, e.StepID, e)
		}
	}

	return b
}

// WriteTable renders the breakdown by agent as an aligned text table.
func (b CostBreakdown) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)

	fmt.Fprintln(tw, "Agent\tCalls\tTokens\tCost\t")
	for _, name := range sortedKeys(b.ByAgent) {
		e := b.ByAgent[name]
		fmt.Fprintf(tw, "%s\t%d\t%d\t$%.4f\t\n", name, e.Calls, e.Tokens.Total(), e.Cost)
	}
	fmt.Fprintf(tw, "Total\t\t%d\t$%.4f\t\n", b.TotalTokens.Total(), b.TotalCost)

	if len(b.ByModel) > 0 {
		fmt.Fprintln(tw, "\t\t\t\t")
		fmt.Fprintln(tw, "Model\tCalls\tTokens\tCost\t")
		for _, name := range sortedKeys(b.ByModel) {
			e := b.ByModel[name]
			fmt.Fprintf(tw, "%s\t%d\t%d\t$%.4f\t\n", name, e.Calls, e.Tokens.Total(), e.Cost)
		}
	}

	return tw.Flush()
}

func sortedKeys(m map[string]CostEntry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
