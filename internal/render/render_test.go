package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

func kinds(widgets []Widget) []WidgetKind {
	out := make([]WidgetKind, len(widgets))
	for i, w := range widgets {
		out[i] = w.Kind
	}
	return out
}

func TestRenderSplitsProseAndCode(t *testing.T) {
	msg := model.Message{
		Role:    model.RoleAssistant,
		Content: "**مرحبا**\n\n```html\n<h1>hi</h1>\n```\n\nبعد الكود <script>alert(1)</script>",
	}

	widgets := New().Render(msg)

	require.Equal(t, []WidgetKind{WidgetProse, WidgetCode, WidgetProse}, kinds(widgets))
	assert.Contains(t, widgets[0].HTML, "<strong>مرحبا</strong>")
	assert.Equal(t, "html", widgets[1].Language)
	assert.Equal(t, "<h1>hi</h1>\n", widgets[1].Code)
	assert.True(t, widgets[1].Runnable)
	assert.NotEmpty(t, widgets[1].HTML)
	assert.NotContains(t, widgets[2].HTML, "<script>")
	assert.Contains(t, widgets[2].HTML, "بعد الكود")
}

func TestRenderDirectiveWidgets(t *testing.T) {
	msg := model.Message{
		Role:         model.RoleAssistant,
		Content:      "نص",
		Chart:        &model.ChartSpec{Type: model.ChartPie, Datasets: []model.ChartDataset{{Data: []float64{1}}}},
		Mermaid:      []string{"graph TD; A-->B"},
		QRSVG:        "<svg></svg>",
		Whiteboard:   []model.WhiteboardStep{{Type: model.StepText, Content: "خطوة"}},
		DeepThinking: &model.DeepThinking{Method: "تحليل", Plan: []string{"أ"}, Duration: 1540 * time.Millisecond},
		Design:       "<main></main>",
		Sources:      []model.GroundingSource{{URI: "https://ar.wikipedia.org/wiki/x"}, {URI: "not a url", Title: "مرجع"}},
		Attachments:  []model.Attachment{{Name: "a.pdf", MimeType: "application/pdf", Size: 2048}},
	}

	widgets := New().Render(msg)

	assert.Equal(t, []WidgetKind{
		WidgetAttachments, WidgetThinking, WidgetProse, WidgetChart, WidgetMermaid,
		WidgetQR, WidgetWhiteboard, WidgetDesign, WidgetSources,
	}, kinds(widgets))
	assert.Equal(t, "2.0 kB", widgets[0].Attachments[0].Size)
	assert.Equal(t, "1.5s", widgets[1].Thinking.Duration)
	assert.Equal(t, minDwell, widgets[6].Steps[0].Dwell)

	srcs := widgets[8].Sources
	assert.Equal(t, "ar.wikipedia.org", srcs[0].Title)
	assert.Equal(t, faviconURL+"ar.wikipedia.org", srcs[0].Favicon)
	assert.Empty(t, srcs[1].Favicon)
	assert.Equal(t, FallbackIcon, srcs[1].FallbackIcon)
}

func TestRenderErrorAndPlan(t *testing.T) {
	errWidgets := New().Render(model.Message{Content: "خطأ", Error: true})
	assert.Equal(t, []WidgetKind{WidgetError}, kinds(errWidgets))

	plan := New().Render(model.Message{Content: "الخطة", ResearchPlan: []string{"أ", "ب"}})
	require.Equal(t, WidgetPlan, plan[0].Kind)
	assert.False(t, plan[0].Plan.Executed)
	assert.Equal(t, []string{"أ", "ب"}, plan[0].Plan.Steps)
}

func TestDwellIsProportionalAndClamped(t *testing.T) {
	assert.Equal(t, 2*time.Second, Dwell("قصير"))
	assert.Equal(t, 3*time.Second, Dwell(strings.Repeat("م", 50)))
	assert.Equal(t, 12*time.Second, Dwell(strings.Repeat("م", 1000)))
}

func TestRunnable(t *testing.T) {
	assert.True(t, Runnable("JavaScript"))
	assert.True(t, Runnable("js"))
	assert.False(t, Runnable("go"))
}

func TestPlainText(t *testing.T) {
	msg := model.Message{
		Content: "النتائج",
		Chart: &model.ChartSpec{
			Title:    "المبيعات",
			Labels:   []string{"يناير", "فبراير"},
			Datasets: []model.ChartDataset{{Data: []float64{10, 20.5}}},
		},
		Sources: []model.GroundingSource{{URI: "https://example.com/a", Title: "مثال"}},
	}

	assert.Equal(t,
		"النتائج\n\n📊 المبيعات: يناير=10، فبراير=20.5\n\nالمصادر:\n• مثال - https://example.com/a",
		PlainText(msg),
	)

	plan := PlainText(model.Message{Content: "الخطة", ResearchPlan: []string{"أ", "ب"}})
	assert.Equal(t, "الخطة\n\n1. أ\n2. ب\n", plan)

	long := PlainText(model.Message{Content: strings.Repeat("ب", TelegramLimit+10)})
	assert.Equal(t, TelegramLimit, len([]rune(long)))
}
