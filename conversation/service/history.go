package service

import (
	"strings"

	"llm-arena/backend/conversation/models"
	"llm-arena/backend/provider"
)

// buildHistory turns stored messages into the prompt for one participant.
// Only messages at or before cutoff are used. Assistant turns of the other
// participant are dropped, and when a turn was regenerated only the latest
// alternative is kept. tail, if set, is appended last.
func buildHistory(stored []models.Message, participant models.Participant, cutoff int64, tail *models.Message) []provider.Message {
	latest := make(map[string]int64)
	for _, m := range stored {
		if m.Role == models.RoleAssistant && m.Position <= cutoff {
			latest[alternativeKey(m)] = max(latest[alternativeKey(m)], m.Position)
		}
	}

	out := make([]provider.Message, 0, len(stored)+1)
	for _, m := range stored {
		if m.Position > cutoff || m.Status != models.StatusSuccess {
			continue
		}
		if m.Role == models.RoleAssistant {
			if m.Participant != participant || latest[alternativeKey(m)] != m.Position {
				continue
			}
		}
		out = append(out, provider.Message{Role: string(m.Role), Content: m.Content})
	}
	if tail != nil {
		out = append(out, provider.Message{Role: string(tail.Role), Content: tail.Content})
	}
	return out
}

func alternativeKey(m models.Message) string {
	return string(m.Participant) + "|" + strings.Join(m.ParentIDs, ",")
}

// estimateTokens is a rough count used when a backend reports no usage
func estimateTokens(history []provider.Message) int {
	chars := 0
	for _, m := range history {
		chars += len(m.Content)
	}
	return chars / 4
}
