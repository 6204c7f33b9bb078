package model

import "time"

type ChartType string

const (
	ChartBar  = ChartType("bar")
	ChartLine = ChartType("line")
	ChartPie  = ChartType("pie")
)

func (t ChartType) Valid() bool {
	switch t {
	case ChartBar, ChartLine, ChartPie:
		return true
	default:
		return false
	}
}

type ChartDataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

type ChartSpec struct {
	Type     ChartType      `json:"type"`
	Title    string         `json:"title,omitempty"`
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}

func (c ChartSpec) clone() ChartSpec {
	out := c
	out.Labels = append([]string(nil), c.Labels...)
	out.Datasets = make([]ChartDataset, len(c.Datasets))
	for i, ds := range c.Datasets {
		out.Datasets[i] = ChartDataset{Label: ds.Label, Data: append([]float64(nil), ds.Data...)}
	}
	return out
}

type StepType string

const (
	StepText          = StepType("text")
	StepLatex         = StepType("latex")
	StepMermaid       = StepType("mermaid")
	StepHTML          = StepType("html")
	StepImage         = StepType("image")
	StepSVG           = StepType("svg")
	StepGenerateImage = StepType("generate_image")
	StepImageLoading  = StepType("image_loading")
)

func (t StepType) Valid() bool {
	switch t {
	case StepText, StepLatex, StepMermaid, StepHTML, StepImage, StepSVG, StepGenerateImage, StepImageLoading:
		return true
	default:
		return false
	}
}

type WhiteboardStep struct {
	Type    StepType `json:"type"`
	Content string   `json:"content"`
}

type DeepThinking struct {
	Method   string        `json:"method"`
	Plan     []string      `json:"plan"`
	Duration time.Duration `json:"duration,omitempty"`
}
