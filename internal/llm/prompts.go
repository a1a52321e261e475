package llm

import "fmt"

const summarizePrompt = `You are summarizing a user's health conversation history so an assistant can personalize its next reply.

Keep concrete facts: symptoms, measurements, diagnoses mentioned, medications, goals and stated preferences.
Drop greetings and filler. Do not add advice or facts that are not in the history.
The summary must be at most %d characters.

History:
%s

Respond with ONLY the summary text. No explanation, no formatting.`

func buildSummarizePrompt(text string, maxLength int) string {
	return fmt.Sprintf(summarizePrompt, maxLength, text)
}

// maxTokensFor gives the completion budget for a character limit. Roughly
// four characters per token, with headroom.
func maxTokensFor(maxLength int) int {
	n := maxLength/3 + 16
	if n < 64 {
		n = 64
	}
	return n
}
