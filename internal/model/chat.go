package model

import (
	"strconv"
	"strings"
	"time"
)

type Attachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
	// Data is sent to the gateway and never kept on a Message.
	Data []byte `json:"-"`
}

// Meta drops the binary payload.
func (a Attachment) Meta() Attachment {
	return Attachment{Name: a.Name, MimeType: a.MimeType, Size: a.Size}
}

type GroundingSource struct {
	URI   string `json:"uri"`
	Title string `json:"title"`
}

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Raw       string    `json:"raw,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Attachments []Attachment      `json:"attachments,omitempty"`
	Sources     []GroundingSource `json:"sources,omitempty"`

	Chart        *ChartSpec       `json:"chart,omitempty"`
	Whiteboard   []WhiteboardStep `json:"whiteboard,omitempty"`
	QRSVG        string           `json:"qr_svg,omitempty"`
	DeepThinking *DeepThinking    `json:"deep_thinking,omitempty"`
	Mermaid      []string         `json:"mermaid,omitempty"`
	Design       string           `json:"design,omitempty"`

	ResearchPlan   []string `json:"research_plan,omitempty"`
	IsPlanExecuted bool     `json:"is_plan_executed,omitempty"`

	Error bool `json:"error,omitempty"`
}

func (m Message) IsPlan() bool {
	return len(m.ResearchPlan) > 0
}

// Clone copies slices so a snapshot can leave the session lock.
func (m Message) Clone() Message {
	c := m
	c.Attachments = append([]Attachment(nil), m.Attachments...)
	c.Sources = append([]GroundingSource(nil), m.Sources...)
	c.Whiteboard = append([]WhiteboardStep(nil), m.Whiteboard...)
	c.Mermaid = append([]string(nil), m.Mermaid...)
	c.ResearchPlan = append([]string(nil), m.ResearchPlan...)
	if m.Chart != nil {
		chart := m.Chart.clone()
		c.Chart = &chart
	}
	if m.DeepThinking != nil {
		dt := *m.DeepThinking
		dt.Plan = append([]string(nil), m.DeepThinking.Plan...)
		c.DeepThinking = &dt
	}
	return c
}

// Text is what a message contributes to model history.
func (m Message) Text() string {
	if m.IsPlan() {
		var b strings.Builder
		b.WriteString("خطة البحث:\n")
		for i, step := range m.ResearchPlan {
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteString(". ")
			b.WriteString(step)
			b.WriteString("\n")
		}
		return b.String()
	}
	if m.Raw != "" && !m.Error {
		return m.Raw
	}
	return m.Content
}
