package usecase

import "jarvis/internal/domain"

// TrimHistory keeps the last window exchanges of messages plus the trailing
// in-flight message, then sanitizes the result so no tool round is split at
// the cut.
//
// System messages are filtered out first. A window of 0 keeps only the most
// recent message. Exchanges are counted at human-message boundaries: the
// result starts at the (window+1)-th human message from the end, or at the
// beginning when there are fewer.
func TrimHistory(messages []domain.Message, window int) []domain.Message {
	filtered := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role != domain.RoleSystem {
			filtered = append(filtered, m)
		}
	}
	if len(filtered) == 0 {
		return nil
	}

	if window <= 0 {
		return filtered[len(filtered)-1:]
	}

	start := 0
	boundaries := 0
	for i := len(filtered) - 1; i >= 0; i-- {
		if filtered[i].Role != domain.RoleHuman {
			continue
		}
		boundaries++
		if boundaries == window+1 {
			start = i
			break
		}
	}

	return SanitizeHistory(filtered[start:])
}

// PrepareMessages prepends the system prompt to the trimmed history.
// The returned slice is fresh; history is not modified.
func PrepareMessages(history []domain.Message, systemPrompt string) []domain.Message {
	out := make([]domain.Message, 0, len(history)+1)
	out = append(out, domain.SystemMessage(systemPrompt))
	return append(out, history...)
}
