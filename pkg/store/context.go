package store

// BuildContext folds a root-to-leaf branch into provider-ready form.
//
// The active model is the last ModelChange entry on the branch; an
// assistant message tagged with a model also advances it. When the branch
// contains compactions, only the most recent one counts: its summary is
// emitted as an assistant message and the message entries before its
// first-kept entry are dropped. Model changes in the dropped prefix still
// fold into the active model.
func BuildContext(branch []Entry) Context {
	branch = resolveCompaction(branch)

	var ctx Context
	for _, e := range branch {
		switch e.Type {
		case TypeModelChange:
			ctx.Model = ModelRef{Provider: e.ModelChange.Provider, ModelID: e.ModelChange.ModelID}
		case TypeMessage:
			ctx.Messages = append(ctx.Messages, *e.Message)
			if e.Message.Model != "" {
				ctx.Model.ModelID = e.Message.Model
			}
		case TypeBranchSummary:
			ctx.Messages = append(ctx.Messages, summaryMessage(e.BranchSummary.Summary))
		}
	}
	return ctx
}

// resolveCompaction rewrites the branch so the most recent compaction's
// summary stands in for everything it discarded. Order in the result:
// model changes from the dropped prefix, the summary, then the entries
// from the first-kept entry onward.
func resolveCompaction(branch []Entry) []Entry {
	idx := -1
	for i := len(branch) - 1; i >= 0; i-- {
		if branch[i].Type == TypeCompaction {
			idx = i
			break
		}
	}
	if idx == -1 {
		return branch
	}
	c := branch[idx].Compaction

	kept := len(branch)
	for i, e := range branch {
		if e.ID == c.FirstKeptEntryID {
			kept = i
			break
		}
	}

	var resolved []Entry
	for _, e := range branch[:kept] {
		if e.Type == TypeModelChange {
			resolved = append(resolved, e)
		}
	}
	resolved = append(resolved, Entry{
		Type:    TypeMessage,
		ID:      branch[idx].ID,
		Message: &MessageEntry{Role: RoleAssistant, Content: summaryMessage(c.Summary).Content},
	})
	for _, e := range branch[kept:] {
		if e.Type != TypeCompaction {
			resolved = append(resolved, e)
		}
	}
	return resolved
}

func summaryMessage(summary string) MessageEntry {
	return MessageEntry{
		Role: RoleAssistant,
		Content: []Content{{
			Type: ContentTypeText,
			Text: &TextContent{Content: summary},
		}},
	}
}
