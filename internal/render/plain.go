package render

import (
	"strconv"
	"strings"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

// TelegramLimit is the longest text a single telegram message may carry.
const TelegramLimit = 4096

// PlainText renders a message for clients without rich widgets.
func PlainText(msg model.Message) string {
	var b strings.Builder
	if msg.DeepThinking != nil && len(msg.DeepThinking.Plan) > 0 {
		b.WriteString("🧠 ")
		b.WriteString(msg.DeepThinking.Method)
		b.WriteString("\n")
		writeNumbered(&b, msg.DeepThinking.Plan)
		b.WriteString("\n")
	}
	if msg.IsPlan() {
		b.WriteString(msg.Content)
		b.WriteString("\n\n")
		writeNumbered(&b, msg.ResearchPlan)
		return truncate(b.String())
	}
	b.WriteString(strings.TrimSpace(msg.Content))
	if msg.Chart != nil {
		b.WriteString("\n\n📊 ")
		if msg.Chart.Title != "" {
			b.WriteString(msg.Chart.Title)
			b.WriteString(": ")
		}
		for i, ds := range msg.Chart.Datasets {
			if i > 0 {
				b.WriteString("؛ ")
			}
			writeSeries(&b, msg.Chart.Labels, ds)
		}
	}
	for _, step := range msg.Whiteboard {
		switch step.Type {
		case model.StepText, model.StepLatex:
			b.WriteString("\n\n")
			b.WriteString(step.Content)
		case model.StepImage:
			b.WriteString("\n\n🖼 ")
			b.WriteString(step.Content)
		}
	}
	if len(msg.Sources) > 0 {
		b.WriteString("\n\nالمصادر:")
		for _, src := range sources(msg.Sources) {
			b.WriteString("\n• ")
			b.WriteString(src.Title)
			b.WriteString(" - ")
			b.WriteString(src.URI)
		}
	}
	return truncate(strings.TrimSpace(b.String()))
}

func writeNumbered(b *strings.Builder, items []string) {
	for i, item := range items {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(item)
		b.WriteString("\n")
	}
}

func writeSeries(b *strings.Builder, labels []string, ds model.ChartDataset) {
	if ds.Label != "" {
		b.WriteString(ds.Label)
		b.WriteString(" ")
	}
	for i, v := range ds.Data {
		if i > 0 {
			b.WriteString("، ")
		}
		if i < len(labels) {
			b.WriteString(labels[i])
			b.WriteString("=")
		}
		b.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
	}
}

func truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= TelegramLimit {
		return s
	}
	return string(runes[:TelegramLimit-1]) + "…"
}
