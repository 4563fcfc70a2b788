package usecase

import "jarvis/internal/domain"

// SanitizeHistory scans the message log and removes broken tool chains:
//  1. A tool message whose ToolCallID is not open in the current round is
//     an orphan and is dropped.
//  2. A round (an ai message with ToolCalls plus its tool responses) that is
//     interrupted by any other message, or left open at the end of the log,
//     is dropped entirely, including the responses it already received.
//
// Complete rounds are kept in full. The function is idempotent and returns
// a new slice (does not modify the input).
func SanitizeHistory(messages []domain.Message) []domain.Message {
	if len(messages) == 0 {
		return nil
	}

	result := make([]domain.Message, 0, len(messages))
	var round []domain.Message
	open := make(map[string]struct{})

	for _, msg := range messages {
		if msg.Role == domain.RoleTool {
			if _, ok := open[msg.ToolCallID]; !ok || round == nil {
				continue
			}
			delete(open, msg.ToolCallID)
			round = append(round, msg)
			if len(open) == 0 {
				result = append(result, round...)
				round = nil
			}
			continue
		}

		// Any other message closes the current round. An unanswered round
		// is discarded as a whole.
		round = nil
		clear(open)

		if msg.HasToolCalls() {
			round = []domain.Message{msg}
			for _, tc := range msg.ToolCalls {
				open[tc.ID] = struct{}{}
			}
			continue
		}
		result = append(result, msg)
	}

	return result
}
