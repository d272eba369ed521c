package wizard

import (
	"fmt"
	"sort"
	"strings"
)

// RenderAnswers dumps answers as "key: value" lines in step and field order.
// Values whose field is currently hidden are listed after the visible ones,
// under a heading that marks them as not authoritative.
func RenderAnswers(steps []StepDefinition, answers AnswerSet) string {
	var visible, hidden strings.Builder
	known := make(map[string]bool, len(answers))

	for _, step := range steps {
		rendered := step.Render == nil || step.Render(answers)
		for _, f := range step.Fields {
			v, ok := answers[f.Key]
			if !ok {
				continue
			}
			known[f.Key] = true
			line := fmt.Sprintf("%s: %s\n", f.Key, v)
			if rendered && f.IsVisible(answers) {
				visible.WriteString(line)
			} else {
				hidden.WriteString(line)
			}
		}
	}

	var extra []string
	for k := range answers {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		fmt.Fprintf(&hidden, "%s: %s\n", k, answers[k])
	}

	out := visible.String()
	if hidden.Len() > 0 {
		out += "\nRetained answers for hidden fields (not authoritative):\n" + hidden.String()
	}
	return out
}
