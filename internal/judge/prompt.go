package judge

import (
	"fmt"
	"strings"
)

// SystemPrompt is the rubric shared by every judge. It is sent as a cached
// system block where the provider supports it.
const SystemPrompt = `You rate professional theatre reviews.

Read the review and decide how the critic felt about the production, not how
you feel about it. Place the review in exactly one bucket, then pick a score
inside that bucket's range:

  rave      85-100  unreserved enthusiasm, a must-see
  positive  70-84   recommends the show with minor reservations
  mixed     55-69   real strengths and real problems in balance
  negative  35-54   does not recommend, some redeeming qualities
  pan       0-34    dismissive or hostile

Judge the whole review. Do not let one quoted phrase or the plot summary
decide the bucket. If the text is only a short excerpt, lower your confidence.

Respond with a single JSON object and nothing else:
{"bucket": "<rave|positive|mixed|negative|pan>", "score": <integer>, "confidence": "<low|medium|high>", "reasoning": "<one sentence>"}`

// userPrompt renders the per-review message.
func userPrompt(req Request) string {
	var sb strings.Builder
	if req.Outlet != "" {
		fmt.Fprintf(&sb, "Outlet: %s\n", req.Outlet)
	}
	if req.Critic != "" {
		fmt.Fprintf(&sb, "Critic: %s\n", req.Critic)
	}
	sb.WriteString("\nReview:\n")
	sb.WriteString(strings.TrimSpace(req.Text))
	return sb.String()
}
