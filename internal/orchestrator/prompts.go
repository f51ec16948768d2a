package orchestrator

import (
	"fmt"
	"strings"
	"time"
)

var durationGuide = map[string]string{
	"short":  "30-60 seconds (Shorts/Reels)",
	"medium": "3-5 minutes (standard YouTube video)",
	"long":   "10-15 minutes (in-depth content)",
}

func analyzePrompt(in AnalyzeReferenceInput) string {
	var b strings.Builder
	b.WriteString("Analyze this content creator's video and identify:\n\n")
	b.WriteString("1. Tone and communication style\n")
	b.WriteString("2. Narrative structure (hook, development, call to action)\n")
	b.WriteString("3. Engagement patterns\n")
	b.WriteString("4. Personality and unique voice\n")
	b.WriteString("5. Target audience\n\n")
	if in.Niche != "" {
		fmt.Fprintf(&b, "Niche: %s\n", in.Niche)
	}
	if in.CreatorName != "" {
		fmt.Fprintf(&b, "Creator: %s\n", in.CreatorName)
	}
	b.WriteString("\nProvide a detailed, structured analysis that can be used to reproduce this creator's style.")
	return b.String()
}

func scriptPrompt(in GenerateScriptInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a complete video script about: %q\n\n", in.Theme)
	if in.ReferenceAnalysis != "" {
		fmt.Fprintf(&b, "Reference style:\n%s\n\n", in.ReferenceAnalysis)
	}
	if g, ok := durationGuide[in.Duration]; ok {
		fmt.Fprintf(&b, "Duration: %s\n\n", g)
	}
	b.WriteString("The script must include a hook, an introduction, the main sections, a conclusion with a call to action, and editing suggestions.\n")
	if in.ReferenceAnalysis != "" {
		b.WriteString("Keep the tone, style and structure identified in the reference analysis.")
	} else {
		b.WriteString("Use an engaging, accessible tone.")
	}
	return b.String()
}

func trendsPrompt(in DailyTrendsInput, today time.Time) string {
	scope := "in general"
	if in.Niche != "" {
		scope = "in the " + in.Niche + " niche"
	}
	return fmt.Sprintf(`List %d content trends that are hot TODAY (%s) %s.

For each trend give a title, a 2-3 sentence description, a viral score (0-100),
the justification for that score, a category (For You / News / Evergreen) and a content angle.

Format the answer as a JSON array:
`+"```json"+`
[
  {"title": "...", "description": "...", "viralScore": 85, "justification": "...", "category": "News", "angle": "..."}
]
`+"```", in.Count, today.Format("2006-01-02"), scope)
}
