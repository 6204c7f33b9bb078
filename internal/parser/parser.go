// Package parser extracts directive blocks from the accumulated text of a
// streamed model answer.
//
// Parse is a pure function of the whole buffer received so far. A block is
// removed from the display text only once its body parses; a block that is
// still truncated stays in the text verbatim and is retried on the next call.
package parser

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

type CommandKind string

const (
	CommandScroll = CommandKind("scroll")
	CommandPlay   = CommandKind("play")
)

// Command is an inline instruction addressed to the Quran reader.
type Command struct {
	Kind  CommandKind `json:"kind"`
	Surah int         `json:"surah"`
	Ayah  int         `json:"ayah"`
}

type Result struct {
	Display      string
	Chart        *model.ChartSpec
	DeepThinking *model.DeepThinking
	Design       string
	Whiteboard   []model.WhiteboardStep
	QRSVG        string
	Mermaid      []string
	Commands     []Command
}

var (
	commandPattern      = regexp.MustCompile(`\[\[(SCROLL_TO|PLAY):\s*(\d{1,3})\s*:\s*(\d{1,3})\s*\]\]`)
	chartPattern        = regexp.MustCompile("(?s)```json:chart[ \\t]*\\r?\\n(.*?)```")
	whiteboardPattern   = regexp.MustCompile("(?s)```json:whiteboard[ \\t]*\\r?\\n(.*?)```")
	qrPattern           = regexp.MustCompile("(?s)```json:qr[ \\t]*\\r?\\n(.*?)```")
	designPattern       = regexp.MustCompile("(?s)```html:design[ \\t]*\\r?\\n(.*?)```")
	mermaidPattern      = regexp.MustCompile("(?s)```mermaid[ \\t]*\\r?\\n(.*?)```")
	deepThinkingPattern = regexp.MustCompile(`(?s)<deep_thinking>(.*?)</deep_thinking>`)
)

func Parse(text string) Result {
	var res Result

	display := commandPattern.ReplaceAllStringFunc(text, func(match string) string {
		cmd, ok := parseCommand(match)
		if !ok {
			return match
		}
		res.Commands = append(res.Commands, cmd)
		return ""
	})

	display = extract(display, deepThinkingPattern, func(body string) bool {
		dt, ok, valid := parseDeepThinking(body)
		if ok && valid {
			res.DeepThinking = dt
		}
		return ok
	})
	display = extract(display, chartPattern, func(body string) bool {
		chart, ok, valid := parseChart(body)
		if ok && valid {
			res.Chart = chart
		}
		return ok
	})
	display = extract(display, whiteboardPattern, func(body string) bool {
		steps, ok := parseWhiteboard(body)
		if ok {
			res.Whiteboard = append(res.Whiteboard, steps...)
		}
		return ok
	})
	display = extract(display, qrPattern, func(body string) bool {
		payload, ok := parseQRPayload(body)
		if !ok {
			return false
		}
		if payload == "" {
			return true
		}
		svg, err := QRCodeSVG(payload)
		if err != nil {
			return true
		}
		res.QRSVG = svg
		return true
	})
	display = extract(display, mermaidPattern, func(body string) bool {
		code := strings.TrimSpace(body)
		if code == "" {
			return false
		}
		res.Mermaid = append(res.Mermaid, code)
		return true
	})
	display = extract(display, designPattern, func(body string) bool {
		html := strings.TrimSpace(body)
		if html == "" {
			return false
		}
		res.Design = html
		return true
	})

	res.Display = display
	return res
}

// extract drops every match whose body parse reports ok and keeps the rest untouched.
func extract(text string, re *regexp.Regexp, parse func(body string) bool) string {
	return re.ReplaceAllStringFunc(text, func(match string) string {
		sub := re.FindStringSubmatch(match)
		if len(sub) < 2 || !parse(sub[1]) {
			return match
		}
		return ""
	})
}

func parseCommand(match string) (Command, bool) {
	sub := commandPattern.FindStringSubmatch(match)
	if len(sub) != 4 {
		return Command{}, false
	}
	surah, err := strconv.Atoi(sub[2])
	if err != nil || surah < 1 || surah > 114 {
		return Command{}, false
	}
	ayah, err := strconv.Atoi(sub[3])
	if err != nil || ayah < 1 {
		return Command{}, false
	}
	kind := CommandScroll
	if sub[1] == "PLAY" {
		kind = CommandPlay
	}
	return Command{Kind: kind, Surah: surah, Ayah: ayah}, true
}

// parseChart reports ok when the body is JSON and valid when the chart can be drawn.
func parseChart(body string) (*model.ChartSpec, bool, bool) {
	var chart model.ChartSpec
	if err := json.Unmarshal([]byte(body), &chart); err != nil {
		return nil, false, false
	}
	chart.Type = model.ChartType(strings.ToLower(string(chart.Type)))
	if !chart.Type.Valid() || len(chart.Datasets) == 0 {
		return nil, true, false
	}
	return &chart, true, true
}

func parseDeepThinking(body string) (*model.DeepThinking, bool, bool) {
	var dt model.DeepThinking
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &dt); err != nil {
		return nil, false, false
	}
	dt.Duration = 0
	if dt.Method == "" && len(dt.Plan) == 0 {
		return nil, true, false
	}
	return &dt, true, true
}

func parseQRPayload(body string) (string, bool) {
	raw := []byte(strings.TrimSpace(body))
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, true
	}
	var obj struct {
		Data string `json:"data"`
		Text string `json:"text"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	for _, v := range []string{obj.Data, obj.Text, obj.URL} {
		if v != "" {
			return v, true
		}
	}
	return "", true
}

func parseWhiteboard(body string) ([]model.WhiteboardStep, bool) {
	var raw any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, false
	}
	return flattenSteps(raw, nil), true
}

// flattenSteps accepts a step, a list of steps, nested lists or {"steps": [...]}.
func flattenSteps(v any, out []model.WhiteboardStep) []model.WhiteboardStep {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			out = flattenSteps(item, out)
		}
	case map[string]any:
		if steps, ok := node["steps"]; ok {
			return flattenSteps(steps, out)
		}
		stepType, _ := node["type"].(string)
		step := model.WhiteboardStep{Type: model.StepType(strings.ToLower(stepType))}
		if !step.Type.Valid() {
			return out
		}
		switch content := node["content"].(type) {
		case string:
			step.Content = content
		case nil:
		default:
			b, err := json.Marshal(content)
			if err != nil {
				return out
			}
			step.Content = string(b)
		}
		out = append(out, step)
	}
	return out
}
