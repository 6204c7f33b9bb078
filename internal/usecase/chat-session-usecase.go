package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/sourcegraph/conc"

	"github.com/iamvkosarev/persona-chat/internal/gateway"
	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/internal/observability"
	"github.com/iamvkosarev/persona-chat/internal/parser"
	"github.com/iamvkosarev/persona-chat/pkg/local"
)

var (
	ErrSessionBusy         = errors.New("session is busy")
	ErrEmptyMessage        = errors.New("message is empty")
	ErrUploadNotAllowed    = errors.New("persona does not accept attachments")
	ErrMessageNotFound     = errors.New("message not found")
	ErrNotUserMessage      = errors.New("only user messages can be edited")
	ErrPlanNotFound        = errors.New("research plan not found")
	ErrPlanAlreadyExecuted = errors.New("research plan already executed")
	ErrAttachmentsNotHeld  = errors.New("attachments are not kept, send them again to regenerate")
)

type SessionState string

const (
	StateIdle      = SessionState("idle")
	StateSending   = SessionState("sending")
	StateStreaming = SessionState("streaming")
	StateCancelled = SessionState("cancelled")
)

const planPrompt = "ضع خطة بحث من 3 إلى 7 خطوات واضحة ومرتبة للإجابة عن الطلب التالي. " +
	"كل خطوة جملة واحدة تصف ما سيتم البحث عنه.\n\nالطلب: %s"

var planSchema = &jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"steps": {
			Type:        jsonschema.Array,
			Description: "ordered research steps",
			Items:       &jsonschema.Definition{Type: jsonschema.String},
		},
	},
	Required: []string{"steps"},
}

// ChatGateway is the part of the API gateway a chat session needs.
type ChatGateway interface {
	StreamGenerate(
		ctx context.Context,
		persona model.Persona,
		turn gateway.Turn,
		history []gateway.Turn,
		opts gateway.StreamOptions,
	) (gateway.Stream, error)
	GenerateStructured(
		ctx context.Context,
		persona model.Persona,
		prompt, systemOverride string,
		schema *jsonschema.Definition,
		out any,
	) (bool, error)
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

type SendRequest struct {
	Text           string
	Attachments    []model.Attachment
	WebSearch      bool
	DeepThinking   bool
	SystemOverride string
	// Hidden turns reach the model but are not added to the transcript.
	Hidden bool
}

// Hooks receive side effects as a stream is applied. Nil hooks are skipped.
type Hooks struct {
	OnMessage    func(model.Message)
	OnScroll     func(parser.Command)
	OnPlay       func(parser.Command)
	OnDesign     func(html string)
	OnWhiteboard func(steps []model.WhiteboardStep)
}

func (h Hooks) message(m model.Message) {
	if h.OnMessage != nil {
		h.OnMessage(m)
	}
}

func (h Hooks) command(cmd parser.Command) {
	switch {
	case cmd.Kind == parser.CommandScroll && h.OnScroll != nil:
		h.OnScroll(cmd)
	case cmd.Kind == parser.CommandPlay && h.OnPlay != nil:
		h.OnPlay(cmd)
	}
}

// ChatSession owns the transcript of one persona.
type ChatSession struct {
	mu         sync.Mutex
	persona    model.Persona
	gateway    ChatGateway
	messages   []model.Message
	state      SessionState
	generation int
	cancelled  atomic.Bool
	cancel     context.CancelFunc
	// executingPlan is the plan whose report is streaming.
	executingPlan string

	design          string
	whiteboard      []model.WhiteboardStep
	whiteboardOwner string
	imageSlots      map[string]map[int]model.WhiteboardStep
	fired           map[string]int

	now   func() time.Time
	newID func() string
}

func NewChatSession(persona model.Persona, gw ChatGateway) *ChatSession {
	return &ChatSession{
		persona:    persona,
		gateway:    gw,
		state:      StateIdle,
		imageSlots: make(map[string]map[int]model.WhiteboardStep),
		fired:      make(map[string]int),
		now:        time.Now,
		newID:      func() string { return ulid.Make().String() },
	}
}

func (s *ChatSession) Persona() model.Persona {
	return s.persona
}

func (s *ChatSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *ChatSession) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

func (s *ChatSession) Message(index int) (model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.messages) {
		return model.Message{}, fmt.Errorf("%w: index %d", ErrMessageNotFound, index)
	}
	return s.messages[index].Clone(), nil
}

// DesignPreview is the latest design HTML produced in this session.
func (s *ChatSession) DesignPreview() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.design
}

func (s *ChatSession) Whiteboard() []model.WhiteboardStep {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.whiteboard)
}

// Send submits a user turn. The researcher persona answers with a plan first.
func (s *ChatSession) Send(ctx context.Context, req SendRequest, hooks Hooks) error {
	return s.send(ctx, req, hooks, nil)
}

// Edit truncates the transcript at index and resubmits text as a new user turn.
func (s *ChatSession) Edit(ctx context.Context, index int, req SendRequest, hooks Hooks) error {
	return s.send(ctx, req, hooks, func() error {
		if index < 0 || index >= len(s.messages) {
			return fmt.Errorf("%w: index %d", ErrMessageNotFound, index)
		}
		if s.messages[index].Role != model.RoleUser {
			return ErrNotUserMessage
		}
		s.truncateLocked(index)
		return nil
	})
}

// Regenerate resubmits the last user message. Attachment payloads are not
// kept, so a turn with attachments needs them in req again.
func (s *ChatSession) Regenerate(ctx context.Context, req SendRequest, hooks Hooks) error {
	s.mu.Lock()
	index := -1
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == model.RoleUser {
			index = i
			break
		}
	}
	if index < 0 {
		s.mu.Unlock()
		return ErrMessageNotFound
	}
	if len(s.messages[index].Attachments) > 0 && len(req.Attachments) == 0 {
		s.mu.Unlock()
		return ErrAttachmentsNotHeld
	}
	req.Text = s.messages[index].Content
	s.mu.Unlock()
	return s.Edit(ctx, index, req, hooks)
}

// Stop flags the running request. Chunks already applied stay in place.
func (s *ChatSession) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSending && s.state != StateStreaming {
		return false
	}
	s.cancelled.Store(true)
	s.state = StateCancelled
	if s.cancel != nil {
		s.cancel()
	}
	return true
}

// NewChat drops the transcript and any running request.
func (s *ChatSession) NewChat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancelled.Store(true)
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.executingPlan = ""
	s.messages = nil
	s.state = StateIdle
	s.design = ""
	s.whiteboard = nil
	s.whiteboardOwner = ""
	s.imageSlots = make(map[string]map[int]model.WhiteboardStep)
	s.fired = make(map[string]int)
}

// ExecutePlan streams the research report for an approved plan. editedSteps,
// when given, replace the proposed steps.
func (s *ChatSession) ExecutePlan(ctx context.Context, planID string, editedSteps []string, hooks Hooks) error {
	var steps []string
	for _, step := range editedSteps {
		if step = strings.TrimSpace(step); step != "" {
			steps = append(steps, step)
		}
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	index := s.indexOfLocked(planID)
	if index < 0 || !s.messages[index].IsPlan() {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrPlanNotFound, planID)
	}
	plan := &s.messages[index]
	if plan.IsPlanExecuted {
		s.mu.Unlock()
		return ErrPlanAlreadyExecuted
	}
	if len(steps) > 0 {
		plan.ResearchPlan = steps
	}
	history := s.historyLocked()
	plan.IsPlanExecuted = true
	planSnapshot := plan.Clone()
	ctx, gen := s.beginLocked(ctx)
	s.executingPlan = planID
	s.mu.Unlock()

	hooks.message(planSnapshot)

	var numbered strings.Builder
	for i, step := range planSnapshot.ResearchPlan {
		numbered.WriteString(strconv.Itoa(i+1) + ". " + step + "\n")
	}
	turn := gateway.Turn{
		Role: model.RoleUser,
		Text: local.TextResearchRequest.DefaultFormat(numbered.String()),
	}
	return s.stream(ctx, gen, turn, history, gateway.StreamOptions{WebSearch: true}, hooks)
}

func (s *ChatSession) send(ctx context.Context, req SendRequest, hooks Hooks, prepare func() error) error {
	if strings.TrimSpace(req.Text) == "" && len(req.Attachments) == 0 {
		return ErrEmptyMessage
	}
	if len(req.Attachments) > 0 && !s.persona.Features.FileUpload {
		return ErrUploadNotAllowed
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrSessionBusy
	}
	if prepare != nil {
		if err := prepare(); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	history := s.historyLocked()
	var userMsg model.Message
	if !req.Hidden {
		userMsg = model.Message{
			ID:        s.newID(),
			Role:      model.RoleUser,
			Content:   req.Text,
			CreatedAt: s.now(),
		}
		for _, att := range req.Attachments {
			userMsg.Attachments = append(userMsg.Attachments, att.Meta())
		}
		s.messages = append(s.messages, userMsg)
	}
	ctx, gen := s.beginLocked(ctx)
	s.mu.Unlock()

	if !req.Hidden {
		hooks.message(userMsg.Clone())
	}

	if s.persona.Features.Research && !req.Hidden {
		return s.requestPlan(ctx, gen, req, hooks)
	}
	turn := gateway.Turn{Role: model.RoleUser, Text: req.Text, Attachments: req.Attachments}
	opts := gateway.StreamOptions{
		WebSearch:      req.WebSearch,
		DeepThinking:   req.DeepThinking,
		SystemOverride: req.SystemOverride,
	}
	return s.stream(ctx, gen, turn, history, opts, hooks)
}

// beginLocked moves an idle session to sending and returns the request context.
func (s *ChatSession) beginLocked(ctx context.Context) (context.Context, int) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.cancelled.Store(false)
	s.state = StateSending
	return ctx, s.generation
}

func (s *ChatSession) requestPlan(ctx context.Context, gen int, req SendRequest, hooks Hooks) error {
	var plan struct {
		Steps []string `json:"steps"`
	}
	ok, err := s.gateway.GenerateStructured(ctx, s.persona, fmt.Sprintf(planPrompt, req.Text), "", planSchema, &plan)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil
	}
	defer s.end(gen)
	if s.interrupted(ctx, err) {
		s.mu.Unlock()
		return nil
	}
	msg := model.Message{ID: s.newID(), Role: model.RoleAssistant, CreatedAt: s.now()}
	switch {
	case err != nil:
		msg.Content = errorText(err)
		msg.Error = true
	case !ok || len(plan.Steps) == 0:
		msg.Content = local.TextStructuredFailed.Default
		msg.Error = true
	default:
		msg.Content = "خطة البحث المقترحة. يمكنك تعديل الخطوات ثم الموافقة لبدء البحث."
		msg.ResearchPlan = plan.Steps
	}
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	hooks.message(msg.Clone())
	return err
}

func (s *ChatSession) stream(
	ctx context.Context,
	gen int,
	turn gateway.Turn,
	history []gateway.Turn,
	opts gateway.StreamOptions,
	hooks Hooks,
) error {
	start := s.now()
	images := conc.NewWaitGroup()
	defer images.Wait()

	stream, err := s.gateway.StreamGenerate(ctx, s.persona, turn, history, opts)
	if err != nil {
		return s.finish(ctx, gen, "", start, err, hooks)
	}
	defer stream.Close()

	var (
		raw       strings.Builder
		sources   []model.GroundingSource
		msgID     string
		streamErr error
	)
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
		if s.cancelled.Load() {
			break
		}
		raw.WriteString(chunk.Text)
		sources = mergeSources(sources, chunk.Sources)
		var alive bool
		msgID, alive = s.apply(ctx, gen, msgID, raw.String(), sources, images, hooks)
		if !alive {
			return nil
		}
	}
	return s.finish(ctx, gen, msgID, start, streamErr, hooks)
}

// apply re-parses the whole buffer and merges it into the assistant message.
func (s *ChatSession) apply(
	ctx context.Context,
	gen int,
	msgID, raw string,
	sources []model.GroundingSource,
	images *conc.WaitGroup,
	hooks Hooks,
) (string, bool) {
	res := parser.Parse(raw)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return msgID, false
	}
	index := s.indexOfLocked(msgID)
	if index < 0 {
		msgID = s.newID()
		s.messages = append(s.messages, model.Message{ID: msgID, Role: model.RoleAssistant, CreatedAt: s.now()})
		index = len(s.messages) - 1
		if s.state == StateSending {
			s.state = StateStreaming
		}
	}
	msg := &s.messages[index]
	msg.Raw = raw
	msg.Content = res.Display
	msg.Sources = sources
	msg.Chart = res.Chart
	msg.QRSVG = res.QRSVG
	msg.Mermaid = res.Mermaid
	msg.Design = res.Design
	msg.DeepThinking = res.DeepThinking

	steps, tasks := s.resolveWhiteboardLocked(msgID, res.Whiteboard)
	msg.Whiteboard = steps

	var commands []parser.Command
	if fired := s.fired[msgID]; len(res.Commands) > fired {
		commands = res.Commands[fired:]
		s.fired[msgID] = len(res.Commands)
	}
	designChanged := res.Design != "" && res.Design != s.design
	if designChanged {
		s.design = res.Design
	}
	whiteboardChanged := len(steps) > 0 && !slices.Equal(steps, s.whiteboard)
	if whiteboardChanged {
		s.whiteboard = slices.Clone(steps)
		s.whiteboardOwner = msgID
	}
	snapshot := msg.Clone()
	s.mu.Unlock()

	for _, task := range tasks {
		images.Go(func() {
			s.generateImage(ctx, gen, task, hooks)
		})
	}

	hooks.message(snapshot)
	for _, cmd := range commands {
		hooks.command(cmd)
	}
	if designChanged && hooks.OnDesign != nil {
		hooks.OnDesign(res.Design)
	}
	if whiteboardChanged && hooks.OnWhiteboard != nil {
		hooks.OnWhiteboard(slices.Clone(steps))
	}
	return msgID, true
}

func (s *ChatSession) finish(
	ctx context.Context,
	gen int,
	msgID string,
	start time.Time,
	streamErr error,
	hooks Hooks,
) error {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return nil
	}
	defer s.end(gen)
	index := s.indexOfLocked(msgID)

	if s.interrupted(ctx, streamErr) {
		s.mu.Unlock()
		return nil
	}
	var planSnapshot *model.Message
	if streamErr != nil {
		observability.LoggerFromContext(ctx).Error(
			"stream failed", "persona", s.persona.ID, "error", streamErr,
		)
		// A report that never arrived leaves its plan open for another attempt.
		if i := s.indexOfLocked(s.executingPlan); i >= 0 {
			s.messages[i].IsPlanExecuted = false
			m := s.messages[i].Clone()
			planSnapshot = &m
		}
		if index < 0 {
			s.messages = append(s.messages, model.Message{ID: s.newID(), Role: model.RoleAssistant, CreatedAt: s.now()})
			index = len(s.messages) - 1
		}
		s.messages[index].Content = errorText(streamErr)
		s.messages[index].Error = true
	} else if index >= 0 && s.messages[index].DeepThinking != nil {
		s.messages[index].DeepThinking.Duration = s.now().Sub(start)
	}
	var snapshot *model.Message
	if index >= 0 {
		m := s.messages[index].Clone()
		snapshot = &m
	}
	s.mu.Unlock()

	if planSnapshot != nil {
		hooks.message(*planSnapshot)
	}
	if snapshot != nil {
		hooks.message(*snapshot)
	}
	return streamErr
}

// interrupted reports whether the request ended through Stop or through the
// caller's context, e.g. a disconnected client. Applied content stays either way.
func (s *ChatSession) interrupted(ctx context.Context, err error) bool {
	return s.cancelled.Load() || (ctx.Err() != nil && errors.Is(err, context.Canceled))
}

// end returns the session to idle unless the chat was reset meanwhile.
func (s *ChatSession) end(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return
	}
	s.state = StateIdle
	s.executingPlan = ""
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

type imageTask struct {
	msgID  string
	slot   int
	prompt string
}

// resolveWhiteboardLocked swaps generate_image steps for their loading or
// resolved state and returns the image requests not started yet.
func (s *ChatSession) resolveWhiteboardLocked(msgID string, steps []model.WhiteboardStep) ([]model.WhiteboardStep, []imageTask) {
	if len(steps) == 0 {
		return nil, nil
	}
	slots := s.imageSlots[msgID]
	if slots == nil {
		slots = make(map[int]model.WhiteboardStep)
		s.imageSlots[msgID] = slots
	}
	var tasks []imageTask
	for i, step := range steps {
		if step.Type != model.StepGenerateImage {
			continue
		}
		if resolved, ok := slots[i]; ok {
			steps[i] = resolved
			continue
		}
		slots[i] = model.WhiteboardStep{Type: model.StepImageLoading, Content: step.Content}
		steps[i] = slots[i]
		tasks = append(tasks, imageTask{msgID: msgID, slot: i, prompt: step.Content})
	}
	return steps, tasks
}

func (s *ChatSession) generateImage(ctx context.Context, gen int, task imageTask, hooks Hooks) {
	// The image outlives a stopped stream; only its result is dropped with the chat.
	url, err := s.gateway.GenerateImage(context.WithoutCancel(ctx), task.prompt)
	resolved := model.WhiteboardStep{Type: model.StepImage, Content: url}
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("whiteboard image failed", "prompt", task.prompt, "error", err)
		resolved = model.WhiteboardStep{Type: model.StepText, Content: local.TextImageFailed.DefaultFormat(task.prompt)}
	}

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	if slots := s.imageSlots[task.msgID]; slots != nil {
		slots[task.slot] = resolved
	}
	index := s.indexOfLocked(task.msgID)
	if index < 0 || task.slot >= len(s.messages[index].Whiteboard) {
		s.mu.Unlock()
		return
	}
	msg := &s.messages[index]
	msg.Whiteboard[task.slot] = resolved
	whiteboardChanged := s.whiteboardOwner == task.msgID
	if whiteboardChanged {
		s.whiteboard = slices.Clone(msg.Whiteboard)
	}
	snapshot := msg.Clone()
	s.mu.Unlock()

	hooks.message(snapshot)
	if whiteboardChanged && hooks.OnWhiteboard != nil {
		hooks.OnWhiteboard(slices.Clone(snapshot.Whiteboard))
	}
}

// historyLocked is the transcript as model turns. Failed answers and plans the
// user never approved are left out.
func (s *ChatSession) historyLocked() []gateway.Turn {
	history := make([]gateway.Turn, 0, len(s.messages))
	for _, m := range s.messages {
		if m.Error || (m.IsPlan() && !m.IsPlanExecuted) {
			continue
		}
		text := m.Text()
		if strings.TrimSpace(text) == "" {
			continue
		}
		history = append(history, gateway.Turn{Role: m.Role, Text: text})
	}
	return history
}

func (s *ChatSession) truncateLocked(index int) {
	for _, m := range s.messages[index:] {
		delete(s.imageSlots, m.ID)
		delete(s.fired, m.ID)
	}
	s.messages = s.messages[:index]
}

func (s *ChatSession) indexOfLocked(id string) int {
	if id == "" {
		return -1
	}
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func mergeSources(existing, incoming []model.GroundingSource) []model.GroundingSource {
	for _, src := range incoming {
		if !slices.ContainsFunc(existing, func(e model.GroundingSource) bool { return e.URI == src.URI }) {
			existing = append(existing, src)
		}
	}
	return existing
}

func errorText(err error) string {
	if errors.Is(err, gateway.ErrCredentialsExhausted) {
		return local.TextCredentialsExhausted.Default
	}
	return local.TextServerError.Default
}
