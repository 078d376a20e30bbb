package timeline

import (
	"math"
	"unicode/utf8"

	"chatreel/internal/models"
)

const (
	estimateLead          = 2.0
	estimateTail          = 1.0
	estimateTypingPerChar = 0.06
	estimateSendCost      = 0.7
	estimateReadPerChar   = 0.05
	estimateReadCap       = 2.0
	estimateReplyCost     = 0.9
)

// EstimateDuration is the cheap submission-time approximation of the video
// length in whole seconds. It is advisory and never drives the render.
func EstimateDuration(messages []models.Message) int {
	total := estimateLead
	for _, m := range messages {
		n := float64(utf8.RuneCountInString(m.Text))
		if m.SentByUser {
			total += n*estimateTypingPerChar + estimateSendCost
		} else {
			total += math.Min(n*estimateReadPerChar, estimateReadCap) + estimateReplyCost
		}
	}
	return int(math.Ceil(total + estimateTail))
}
