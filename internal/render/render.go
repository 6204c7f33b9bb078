// Package render maps a chat message to the widgets a client draws.
package render

import (
	"bytes"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

const (
	minDwell     = 2 * time.Second
	maxDwell     = 12 * time.Second
	dwellPerRune = 60 * time.Millisecond

	faviconURL   = "https://www.google.com/s2/favicons?sz=32&domain="
	FallbackIcon = "globe"
)

type WidgetKind string

const (
	WidgetProse       = WidgetKind("prose")
	WidgetCode        = WidgetKind("code")
	WidgetChart       = WidgetKind("chart")
	WidgetMermaid     = WidgetKind("mermaid")
	WidgetQR          = WidgetKind("qr")
	WidgetWhiteboard  = WidgetKind("whiteboard")
	WidgetThinking    = WidgetKind("thinking")
	WidgetDesign      = WidgetKind("design")
	WidgetPlan        = WidgetKind("plan")
	WidgetSources     = WidgetKind("sources")
	WidgetAttachments = WidgetKind("attachments")
	WidgetError       = WidgetKind("error")
)

type Step struct {
	model.WhiteboardStep
	Dwell time.Duration `json:"dwell"`
}

type Thinking struct {
	Method   string   `json:"method"`
	Plan     []string `json:"plan"`
	Duration string   `json:"duration,omitempty"`
}

type Source struct {
	URI          string `json:"uri"`
	Title        string `json:"title"`
	Favicon      string `json:"favicon,omitempty"`
	FallbackIcon string `json:"fallback_icon"`
}

type AttachmentView struct {
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     string `json:"size"`
}

type Plan struct {
	Steps    []string `json:"steps"`
	Executed bool     `json:"executed"`
}

// Widget is one drawable piece of a message. Only the fields of its Kind are set.
type Widget struct {
	Kind WidgetKind `json:"kind"`

	HTML     string `json:"html,omitempty"`
	Language string `json:"language,omitempty"`
	Code     string `json:"code,omitempty"`
	Runnable bool   `json:"runnable,omitempty"`

	Chart       *model.ChartSpec `json:"chart,omitempty"`
	Mermaid     string           `json:"mermaid,omitempty"`
	SVG         string           `json:"svg,omitempty"`
	Steps       []Step           `json:"steps,omitempty"`
	Thinking    *Thinking        `json:"thinking,omitempty"`
	Plan        *Plan            `json:"plan,omitempty"`
	Sources     []Source         `json:"sources,omitempty"`
	Attachments []AttachmentView `json:"attachments,omitempty"`
}

type Renderer struct {
	md        goldmark.Markdown
	policy    *bluemonday.Policy
	formatter *chromahtml.Formatter
	style     *chroma.Style
}

func New() *Renderer {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("dir").Globally()
	style := styles.Get("github")
	if style == nil {
		style = styles.Fallback
	}
	return &Renderer{
		md:        goldmark.New(goldmark.WithExtensions(extension.GFM)),
		policy:    policy,
		formatter: chromahtml.New(chromahtml.WithClasses(true), chromahtml.TabWidth(4)),
		style:     style,
	}
}

// Render lays out a message in display order.
func (r *Renderer) Render(msg model.Message) []Widget {
	var widgets []Widget
	if len(msg.Attachments) > 0 {
		widgets = append(widgets, Widget{Kind: WidgetAttachments, Attachments: attachments(msg.Attachments)})
	}
	if msg.DeepThinking != nil {
		widgets = append(widgets, Widget{Kind: WidgetThinking, Thinking: thinking(msg.DeepThinking)})
	}
	if msg.Error {
		return append(widgets, Widget{Kind: WidgetError, HTML: r.policy.Sanitize(msg.Content)})
	}
	if msg.IsPlan() {
		widgets = append(widgets, Widget{
			Kind: WidgetPlan,
			Plan: &Plan{Steps: append([]string(nil), msg.ResearchPlan...), Executed: msg.IsPlanExecuted},
		})
	}
	widgets = append(widgets, r.markdown(msg.Content)...)
	if msg.Chart != nil {
		widgets = append(widgets, Widget{Kind: WidgetChart, Chart: msg.Chart})
	}
	for _, code := range msg.Mermaid {
		widgets = append(widgets, Widget{Kind: WidgetMermaid, Mermaid: code})
	}
	if msg.QRSVG != "" {
		widgets = append(widgets, Widget{Kind: WidgetQR, SVG: msg.QRSVG})
	}
	if len(msg.Whiteboard) > 0 {
		widgets = append(widgets, Widget{Kind: WidgetWhiteboard, Steps: Steps(msg.Whiteboard)})
	}
	if msg.Design != "" {
		widgets = append(widgets, Widget{Kind: WidgetDesign, Language: "html", Code: msg.Design, Runnable: true})
	}
	if len(msg.Sources) > 0 {
		widgets = append(widgets, Widget{Kind: WidgetSources, Sources: sources(msg.Sources)})
	}
	return widgets
}

// markdown splits prose from fenced code so code gets its own widget.
func (r *Renderer) markdown(content string) []Widget {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	src := []byte(content)
	doc := r.md.Parser().Parse(text.NewReader(src))

	var (
		widgets []Widget
		prose   bytes.Buffer
	)
	flush := func() {
		if prose.Len() == 0 {
			return
		}
		widgets = append(widgets, Widget{Kind: WidgetProse, HTML: r.policy.Sanitize(prose.String())})
		prose.Reset()
	}
	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		block, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			if err := r.md.Renderer().Render(&prose, src, node); err != nil {
				prose.WriteString(bluemonday.StrictPolicy().Sanitize(string(node.Text(src))))
			}
			continue
		}
		flush()
		widgets = append(widgets, r.code(string(block.Language(src)), codeLines(block, src)))
	}
	flush()
	return widgets
}

func (r *Renderer) code(language, code string) Widget {
	w := Widget{Kind: WidgetCode, Language: language, Code: code, Runnable: Runnable(language)}
	lexer := lexers.Get(language)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	iterator, err := chroma.Coalesce(lexer).Tokenise(nil, code)
	if err != nil {
		return w
	}
	var buf bytes.Buffer
	if err = r.formatter.Format(&buf, r.style, iterator); err != nil {
		return w
	}
	w.HTML = buf.String()
	return w
}

func codeLines(block *ast.FencedCodeBlock, src []byte) string {
	var b strings.Builder
	lines := block.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		b.Write(line.Value(src))
	}
	return b.String()
}

// Runnable reports whether a code block can be previewed in a sandbox.
func Runnable(language string) bool {
	switch strings.ToLower(language) {
	case "html", "js", "javascript":
		return true
	default:
		return false
	}
}

// Dwell is how long a whiteboard step stays on screen before the next one.
func Dwell(content string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(content)) * dwellPerRune
	return min(max(d, minDwell), maxDwell)
}

// Steps attaches the dwell time of each whiteboard step.
func Steps(board []model.WhiteboardStep) []Step {
	out := make([]Step, len(board))
	for i, step := range board {
		out[i] = Step{WhiteboardStep: step, Dwell: Dwell(step.Content)}
	}
	return out
}

func thinking(dt *model.DeepThinking) *Thinking {
	t := &Thinking{Method: dt.Method, Plan: append([]string(nil), dt.Plan...)}
	if dt.Duration > 0 {
		t.Duration = dt.Duration.Round(100 * time.Millisecond).String()
	}
	return t
}

func sources(in []model.GroundingSource) []Source {
	out := make([]Source, 0, len(in))
	for _, src := range in {
		s := Source{URI: src.URI, Title: src.Title, FallbackIcon: FallbackIcon}
		if u, err := url.Parse(src.URI); err == nil && u.Host != "" {
			s.Favicon = faviconURL + url.QueryEscape(u.Hostname())
			if s.Title == "" {
				s.Title = u.Hostname()
			}
		}
		if s.Title == "" {
			s.Title = src.URI
		}
		out = append(out, s)
	}
	return out
}

func attachments(in []model.Attachment) []AttachmentView {
	out := make([]AttachmentView, len(in))
	for i, att := range in {
		out[i] = AttachmentView{Name: att.Name, MimeType: att.MimeType, Size: humanize.Bytes(uint64(max(att.Size, 0)))}
	}
	return out
}
