package orchestrator

import (
	"context"
	"strconv"
	"strings"

	"github.com/sidecore/agentcore/domain"
	"github.com/sidecore/agentcore/eventbus"
	"github.com/sidecore/agentcore/provider"
)

// maybeGenerateTitle implements spec.md §4.4's fire-and-forget title
// task: once, after the first assistant message with non-empty text,
// issue a small summarization call and write the result back truncated
// to Config.TitleMaxChars. Grounded on the teacher's chat-summarization
// helpers in dev/ (chat_history.go's brief-summary prompt shape),
// reduced to a single untyped text request since this core has no
// Temporal activity to retry it from.
func (o *Orchestrator) maybeGenerateTitle(ctx context.Context, sess *domain.Session, bus *eventbus.Bus) {
	if o.TitleClient == nil || sess.Title != "" {
		return
	}
	sessionID := sess.ID
	firstUser := firstUserText(sess.Messages)
	assistantText := sess.Messages[len(sess.Messages)-1].Text()
	maxChars := o.Config.TitleMaxChars
	if maxChars <= 0 {
		maxChars = 60
	}

	go func() {
		parts := make(chan provider.StreamPart, 8)
		done := make(chan *provider.FinalMessage, 1)
		go func() {
			defer close(parts)
			final, err := o.TitleClient.Stream(context.Background(), provider.Options{
				Secrets: o.Secrets,
				Params: provider.Params{
					Provider:  provider.Format(sess.Provider),
					Model:     sess.Model,
					MaxTokens: 64,
					Messages: []domain.Message{
						{Role: domain.RoleUser, Content: []domain.ContentBlock{{Type: domain.ContentText, Text: titlePrompt(firstUser, assistantText, maxChars)}}},
					},
				},
			}, parts)
			if err != nil {
				done <- nil
				return
			}
			done <- final
		}()
		for range parts {
		}
		final := <-done
		if final == nil {
			return
		}
		title := truncateTitle(final.Output.Text(), maxChars)
		if title == "" {
			return
		}
		if err := o.Store.SetTitle(ctx, sessionID, title); err != nil {
			o.Log.Warn().Err(err).Str("session", sessionID).Msg("failed to persist generated title")
			return
		}
		bus.Publish(domain.LoopEvent{Type: domain.EventTitleGenerated, SessionID: sessionID, Title: title})
	}()
}

func firstUserText(msgs []domain.Message) string {
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			if t := m.Text(); t != "" {
				return t
			}
		}
	}
	return ""
}

func titlePrompt(userText, assistantText string, maxChars int) string {
	var b strings.Builder
	b.WriteString("Summarize the following exchange as a short title of at most ")
	b.WriteString(strconv.Itoa(maxChars))
	b.WriteString(" characters. Respond with the title text only, no quotes or punctuation at the end.\n\nUser: ")
	b.WriteString(userText)
	b.WriteString("\nAssistant: ")
	b.WriteString(assistantText)
	return b.String()
}

func truncateTitle(s string, maxChars int) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return strings.TrimSpace(string(runes[:maxChars]))
}
