package orchestrator

import (
	"fmt"
	"strings"

	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/application/selector"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/run"
	"github.com/khoi1009/Vibecode-with-Multi-Agent-LongCoT-sub001/internal/domain/model/stage"
)

// ruleset is the fixed orchestration preamble included in every bundle.
// It is versioned configuration, not free text parsed at runtime.
const ruleset = `You are one role in a fixed multi-stage pipeline.
Act only within the role instructions below. Produce output for this
stage only; do not anticipate later stages. To propose a file change,
emit a block starting with a line "=== file: <relative path>" followed
by the complete file content, ending at the next marker or end of
output. Never propose changes outside the workspace.`

// Bundle is the bounded context handed to the generation service
type Bundle struct {
	Ruleset     string
	Role        string
	Modules     []selector.RankedModule
	PriorOutput []string // Outputs of already completed stages, oldest first
	RunSummary  string
}

// assembleBundle builds a bundle for one stage attempt and enforces the
// byte cap: reference modules are dropped lowest-score-first until the
// rendered bundle fits. The fixed ruleset and role text are never dropped.
func assembleBundle(r *run.Run, profile stage.Profile, modules []selector.RankedModule, prior []string, byteCap int) Bundle {
	b := Bundle{
		Ruleset:     ruleset,
		Role:        profile.Role,
		Modules:     modules,
		PriorOutput: prior,
		RunSummary: fmt.Sprintf("run=%s category=%s stage=%s cursor=%d/%d request=%q",
			r.ID, r.Category, profile.ID, r.Cursor+1, len(r.Pipeline), r.Request),
	}

	for len(b.Modules) > 0 && len(b.Render()) > byteCap {
		// Selection is ordered best first; drop from the tail
		b.Modules = b.Modules[:len(b.Modules)-1]
	}
	return b
}

// Render flattens the bundle into the single string the generation
// service receives.
func (b Bundle) Render() string {
	var sb strings.Builder
	sb.WriteString("## Orchestration rules\n")
	sb.WriteString(b.Ruleset)
	sb.WriteString("\n\n## Role\n")
	sb.WriteString(b.Role)
	if len(b.Modules) > 0 {
		sb.WriteString("\n\n## Reference material\n")
		for _, m := range b.Modules {
			fmt.Fprintf(&sb, "- %s (%.2f): %s; keywords: %s\n",
				m.Module.Name, m.Score, m.Module.Description, strings.Join(m.Module.Keywords, ", "))
		}
	}
	if len(b.PriorOutput) > 0 {
		sb.WriteString("\n## Prior stage output\n")
		for _, p := range b.PriorOutput {
			sb.WriteString(p)
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n## Run state\n")
	sb.WriteString(b.RunSummary)
	sb.WriteString("\n")
	return sb.String()
}

// parseChangeSet extracts proposed file changes from generation output.
// Output with no file markers proposes no workspace changes; the raw
// text still lands in artifact storage either way.
func parseChangeSet(output string) changeBlocks {
	var blocks changeBlocks
	lines := strings.Split(output, "\n")
	var path string
	var content []string

	flush := func() {
		if path != "" {
			blocks = append(blocks, changeBlock{Path: path, Content: strings.Join(content, "\n")})
		}
		path, content = "", nil
	}

	for _, line := range lines {
		if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "=== file:"); ok {
			flush()
			path = strings.TrimSpace(rest)
			continue
		}
		if path != "" {
			content = append(content, line)
		}
	}
	flush()
	return blocks
}

type changeBlock struct {
	Path    string
	Content string
}

type changeBlocks []changeBlock
