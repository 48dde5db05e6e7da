package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/history"
	"github.com/charmbracelet/lipgloss"
)

// HistoryMarkdown renders the undo and redo stacks as a markdown audit log.
// Entries up to lastSynced are marked as saved.
func HistoryMarkdown(past, future []history.Entry, lastSynced int) string {
	var sb strings.Builder
	sb.WriteString("# History\n\n")
	if len(past) == 0 && len(future) == 0 {
		sb.WriteString("_No edits yet._\n")
		return sb.String()
	}

	for i, entry := range past {
		state := "pending"
		if i < lastSynced {
			state = "saved"
		}
		writeEntry(&sb, i+1, entry, state)
	}
	if len(future) > 0 {
		sb.WriteString("## Undone\n\n")
		for i := len(future) - 1; i >= 0; i-- {
			writeEntry(&sb, len(past)+len(future)-i, future[i], "undone")
		}
	}
	return sb.String()
}

func writeEntry(sb *strings.Builder, n int, entry history.Entry, state string) {
	title := entry.Description
	if entry.Batch {
		title += " (batch)"
	}
	fmt.Fprintf(sb, "### %d. %s `%s`\n\n", n, title, state)
	for _, v := range domain.ToVisuals(entry.Changes) {
		c := v.Change
		fmt.Fprintf(sb, "- **%s** %s `%s`\n", c.Action, c.EntityType, c.EntityID)
		if c.Action != domain.ActionUpdate {
			continue
		}
		for _, d := range v.Diffs {
			fmt.Fprintf(sb, "  - `%s`: %v → %v\n", d.Field, d.OldValue, d.NewValue)
		}
	}
	sb.WriteString("\n")
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#38bdf8"))
	actionStyle = map[domain.ChangeAction]lipgloss.Style{
		domain.ActionCreate: lipgloss.NewStyle().Foreground(lipgloss.Color("#34d399")),
		domain.ActionUpdate: lipgloss.NewStyle().Foreground(lipgloss.Color("#fbbf24")),
		domain.ActionDelete: lipgloss.NewStyle().Foreground(lipgloss.Color("#f87171")),
	}
	boxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// OperationsSummary renders the pending operations as a compact boxed table,
// one line per entity type with create/update/delete counts.
func OperationsSummary(ops []domain.Operation) string {
	if len(ops) == 0 {
		return boxStyle.Render(headerStyle.Render("Nothing to save"))
	}

	counts := make(map[domain.EntityType]map[domain.ChangeAction]int)
	for _, op := range ops {
		if counts[op.EntityType] == nil {
			counts[op.EntityType] = make(map[domain.ChangeAction]int)
		}
		counts[op.EntityType][op.Action]++
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)

	lines := []string{headerStyle.Render(fmt.Sprintf("%d pending operations", len(ops)))}
	for _, k := range kinds {
		c := counts[domain.EntityType(k)]
		lines = append(lines, fmt.Sprintf("%-9s %s %s %s", k,
			actionStyle[domain.ActionCreate].Render(fmt.Sprintf("+%d", c[domain.ActionCreate])),
			actionStyle[domain.ActionUpdate].Render(fmt.Sprintf("~%d", c[domain.ActionUpdate])),
			actionStyle[domain.ActionDelete].Render(fmt.Sprintf("-%d", c[domain.ActionDelete])),
		))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}
