package audit

import (
	"sort"
	"time"
)

// Summary aggregates audit entries for "rosterbot audit stats".
type Summary struct {
	Commands      int            `json:"commands"`
	ActiveSenders int            `json:"active_senders"`
	Errors        int            `json:"errors"`
	ErrorRate     float64        `json:"error_rate"`
	AvgDurationMs int64          `json:"avg_duration_ms"`
	TopCommands   []CommandCount `json:"top_commands"`
	TopSenders    []SenderCount  `json:"top_senders"`
}

// CommandCount is how often one command was handled.
type CommandCount struct {
	Command string  `json:"command"`
	Count   int     `json:"count"`
	Pct     float64 `json:"pct"`
}

// SenderCount is how many commands one sender issued.
type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

// Summarize computes usage statistics over the entries matching since and
// sender. Ties are broken by name so output is stable.
func Summarize(entries []Entry, since time.Time, sender string) *Summary {
	filtered := FilterEntries(entries, since, sender, "")

	s := &Summary{Commands: len(filtered)}
	if len(filtered) == 0 {
		return s
	}

	cmdCounts := make(map[string]int)
	senderCounts := make(map[string]int)
	var total int64
	for _, e := range filtered {
		cmdCounts[e.Command]++
		if e.Sender != "" {
			senderCounts[e.Sender]++
		}
		if e.Status == StatusError {
			s.Errors++
		}
		total += e.DurationMs
	}

	s.ActiveSenders = len(senderCounts)
	s.ErrorRate = float64(s.Errors) / float64(s.Commands) * 100
	s.AvgDurationMs = total / int64(s.Commands)

	for cmd, n := range cmdCounts {
		s.TopCommands = append(s.TopCommands, CommandCount{
			Command: cmd, Count: n, Pct: float64(n) / float64(s.Commands) * 100,
		})
	}
	sort.Slice(s.TopCommands, func(i, j int) bool {
		a, b := s.TopCommands[i], s.TopCommands[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Command < b.Command
	})

	for who, n := range senderCounts {
		s.TopSenders = append(s.TopSenders, SenderCount{Sender: who, Count: n})
	}
	sort.Slice(s.TopSenders, func(i, j int) bool {
		a, b := s.TopSenders[i], s.TopSenders[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Sender < b.Sender
	})

	return s
}
