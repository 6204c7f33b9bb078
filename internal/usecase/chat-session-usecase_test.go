package usecase

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/persona-chat/internal/gateway"
	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/internal/parser"
	"github.com/iamvkosarev/persona-chat/pkg/local"
)

type scriptedStream struct {
	ctx    context.Context
	chunks []gateway.Chunk
	pos    int
	hold   chan struct{}
}

func (s *scriptedStream) Recv() (gateway.Chunk, error) {
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return c, nil
	}
	if s.hold != nil {
		select {
		case <-s.hold:
		case <-s.ctx.Done():
			return gateway.Chunk{}, s.ctx.Err()
		}
	}
	return gateway.Chunk{}, io.EOF
}

func (s *scriptedStream) Close() error { return nil }

type fakeGateway struct {
	mu sync.Mutex

	answers   [][]string
	streamErr error
	hold      chan struct{}

	turns     []gateway.Turn
	histories [][]gateway.Turn

	plan         []string
	structuredOK bool

	imageURL     string
	imageErr     error
	imageStarted chan struct{}
	imageHold    chan struct{}
}

func (g *fakeGateway) StreamGenerate(
	ctx context.Context,
	_ model.Persona,
	turn gateway.Turn,
	history []gateway.Turn,
	_ gateway.StreamOptions,
) (gateway.Stream, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.turns = append(g.turns, turn)
	g.histories = append(g.histories, history)
	if g.streamErr != nil {
		return nil, g.streamErr
	}
	var texts []string
	if len(g.answers) > 0 {
		texts, g.answers = g.answers[0], g.answers[1:]
	}
	chunks := make([]gateway.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = gateway.Chunk{Text: text}
	}
	return &scriptedStream{ctx: ctx, chunks: chunks, hold: g.hold}, nil
}

func (g *fakeGateway) GenerateStructured(
	_ context.Context,
	_ model.Persona,
	_, _ string,
	_ *jsonschema.Definition,
	out any,
) (bool, error) {
	if !g.structuredOK {
		return false, nil
	}
	plan := out.(*struct {
		Steps []string `json:"steps"`
	})
	plan.Steps = g.plan
	return true, nil
}

func (g *fakeGateway) GenerateImage(context.Context, string) (string, error) {
	if g.imageStarted != nil {
		close(g.imageStarted)
	}
	if g.imageHold != nil {
		<-g.imageHold
	}
	return g.imageURL, g.imageErr
}

func (g *fakeGateway) lastHistory() []gateway.Turn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.histories[len(g.histories)-1]
}

func (g *fakeGateway) lastTurn() gateway.Turn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.turns[len(g.turns)-1]
}

func testPersona(t *testing.T, id model.PersonaID) model.Persona {
	t.Helper()
	personas, err := NewPersonaUsecase(DefaultPersonas(PersonaModels{Fast: "fast", Quality: "quality"}))
	require.NoError(t, err)
	persona, err := personas.Get(id)
	require.NoError(t, err)
	return persona
}

type recorder struct {
	mu       sync.Mutex
	messages []model.Message
	scrolls  []parser.Command
	plays    []parser.Command
	designs  []string
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnMessage: func(m model.Message) {
			r.mu.Lock()
			r.messages = append(r.messages, m)
			r.mu.Unlock()
		},
		OnScroll: func(c parser.Command) { r.scrolls = append(r.scrolls, c) },
		OnPlay:   func(c parser.Command) { r.plays = append(r.plays, c) },
		OnDesign: func(html string) { r.designs = append(r.designs, html) },
	}
}

func (r *recorder) assistant() []model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Message
	for _, m := range r.messages {
		if m.Role == model.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}

func TestSendStreamsChartOnlyOnceBlockIsClosed(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{
		"مرحبا ```json:chart\n{\"type\":\"bar\",\"labels\":[\"أ\",\"ب\"],",
		"\"datasets\":[{\"label\":\"س\",\"data\":[1,2]}]}\n",
		"``` شكرا",
	}}}
	session := NewChatSession(testPersona(t, model.PersonaQuality), gw)
	rec := &recorder{}

	err := session.Send(context.Background(), SendRequest{Text: "لخص هذا"}, rec.hooks())

	require.NoError(t, err)
	updates := rec.assistant()
	require.GreaterOrEqual(t, len(updates), 3)
	assert.Nil(t, updates[0].Chart)
	assert.Nil(t, updates[1].Chart)
	require.NotNil(t, updates[2].Chart)
	assert.Equal(t, model.ChartBar, updates[2].Chart.Type)

	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, model.RoleUser, messages[0].Role)
	assert.Equal(t, "لخص هذا", messages[0].Content)
	assert.Equal(t, "مرحبا  شكرا", messages[1].Content)
	require.NotNil(t, messages[1].Chart)
	assert.Equal(t, []float64{1, 2}, messages[1].Chart.Datasets[0].Data)
	assert.Equal(t, StateIdle, session.State())
}

func TestSendRejectsEmptyAndUnsupportedUploads(t *testing.T) {
	session := NewChatSession(testPersona(t, model.PersonaSocial), &fakeGateway{})

	err := session.Send(context.Background(), SendRequest{Text: "  "}, Hooks{})
	require.ErrorIs(t, err, ErrEmptyMessage)

	err = session.Send(context.Background(), SendRequest{
		Text:        "انظر",
		Attachments: []model.Attachment{{Name: "a.png", MimeType: "image/png", Data: []byte{1}}},
	}, Hooks{})
	require.ErrorIs(t, err, ErrUploadNotAllowed)
	assert.Empty(t, session.Messages())
}

func TestSendKeepsAttachmentMetadataOnly(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"صورة جميلة"}}}
	session := NewChatSession(testPersona(t, model.PersonaFast), gw)

	err := session.Send(context.Background(), SendRequest{
		Text:        "صف",
		Attachments: []model.Attachment{{Name: "a.png", MimeType: "image/png", Size: 3, Data: []byte{1, 2, 3}}},
	}, Hooks{})

	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, gw.lastTurn().Attachments[0].Data)
	assert.Nil(t, session.Messages()[0].Attachments[0].Data)
	assert.Equal(t, int64(3), session.Messages()[0].Attachments[0].Size)
}

func TestEditTruncatesAndResends(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"١"}, {"٢"}, {"٣"}}}
	session := NewChatSession(testPersona(t, model.PersonaFast), gw)
	ctx := context.Background()
	require.NoError(t, session.Send(ctx, SendRequest{Text: "أ"}, Hooks{}))
	require.NoError(t, session.Send(ctx, SendRequest{Text: "ب"}, Hooks{}))

	require.ErrorIs(t, session.Edit(ctx, 1, SendRequest{Text: "x"}, Hooks{}), ErrNotUserMessage)
	require.ErrorIs(t, session.Edit(ctx, 9, SendRequest{Text: "x"}, Hooks{}), ErrMessageNotFound)

	err := session.Edit(ctx, 2, SendRequest{Text: "ج"}, Hooks{})

	require.NoError(t, err)
	messages := session.Messages()
	require.Len(t, messages, 4)
	assert.Equal(t, "أ", messages[0].Content)
	assert.Equal(t, "١", messages[1].Content)
	assert.Equal(t, "ج", messages[2].Content)
	assert.Equal(t, "٣", messages[3].Content)
	assert.Equal(t, []gateway.Turn{
		{Role: model.RoleUser, Text: "أ"},
		{Role: model.RoleAssistant, Text: "١"},
	}, gw.lastHistory())
}

func TestRegenerateResendsLastUserMessage(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"أول"}, {"ثان"}}}
	session := NewChatSession(testPersona(t, model.PersonaFast), gw)
	require.NoError(t, session.Send(context.Background(), SendRequest{Text: "سؤال"}, Hooks{}))

	require.NoError(t, session.Regenerate(context.Background(), SendRequest{}, Hooks{}))

	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "سؤال", messages[0].Content)
	assert.Equal(t, "ثان", messages[1].Content)
}

func TestRegenerateNeedsAttachmentsAgain(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"أول"}, {"ثان"}}}
	session := NewChatSession(testPersona(t, model.PersonaFast), gw)
	image := model.Attachment{Name: "a.png", MimeType: "image/png", Size: 3, Data: []byte{1, 2, 3}}
	require.NoError(t, session.Send(context.Background(), SendRequest{Attachments: []model.Attachment{image}}, Hooks{}))

	err := session.Regenerate(context.Background(), SendRequest{}, Hooks{})
	require.ErrorIs(t, err, ErrAttachmentsNotHeld)
	assert.Len(t, session.Messages(), 2)

	require.NoError(t, session.Regenerate(context.Background(), SendRequest{Attachments: []model.Attachment{image}}, Hooks{}))
	assert.Equal(t, []byte{1, 2, 3}, gw.lastTurn().Attachments[0].Data)
	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "ثان", messages[1].Content)
	assert.Equal(t, "a.png", messages[0].Attachments[0].Name)
}

func TestStreamFailureBecomesErrorMessageOutsideHistory(t *testing.T) {
	gw := &fakeGateway{streamErr: gateway.ErrCredentialsExhausted}
	session := NewChatSession(testPersona(t, model.PersonaFast), gw)

	err := session.Send(context.Background(), SendRequest{Text: "مرحبا"}, Hooks{})

	require.ErrorIs(t, err, gateway.ErrCredentialsExhausted)
	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.True(t, messages[1].Error)
	assert.Equal(t, local.TextCredentialsExhausted.Default, messages[1].Content)
	assert.Equal(t, StateIdle, session.State())

	gw.streamErr = nil
	gw.answers = [][]string{{"أهلاً"}}
	require.NoError(t, session.Send(context.Background(), SendRequest{Text: "مجدداً"}, Hooks{}))
	assert.Equal(t, []gateway.Turn{{Role: model.RoleUser, Text: "مرحبا"}}, gw.lastHistory())
}

func TestStopKeepsPartialAnswer(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"جزء من"}}, hold: make(chan struct{})}
	session := NewChatSession(testPersona(t, model.PersonaFast), gw)
	assert.False(t, session.Stop())

	done := make(chan error, 1)
	go func() {
		done <- session.Send(context.Background(), SendRequest{Text: "اكتب"}, Hooks{})
	}()
	require.Eventually(t, func() bool { return session.State() == StateStreaming }, time.Second, time.Millisecond)

	err := session.Send(context.Background(), SendRequest{Text: "آخر"}, Hooks{})
	require.ErrorIs(t, err, ErrSessionBusy)

	assert.True(t, session.Stop())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("send did not return after stop")
	}
	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "جزء من", messages[1].Content)
	assert.False(t, messages[1].Error)
	assert.Equal(t, StateIdle, session.State())
}

func TestCallerCancelKeepsPartialAnswer(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"جزء من"}, {"تتمة"}}, hold: make(chan struct{})}
	session := NewChatSession(testPersona(t, model.PersonaFast), gw)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- session.Send(ctx, SendRequest{Text: "اكتب"}, Hooks{})
	}()
	require.Eventually(t, func() bool { return session.State() == StateStreaming }, time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("send did not return after the caller went away")
	}
	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "جزء من", messages[1].Content)
	assert.False(t, messages[1].Error)
	assert.Equal(t, StateIdle, session.State())

	close(gw.hold)
	require.NoError(t, session.Send(context.Background(), SendRequest{Text: "أكمل"}, Hooks{}))
	assert.Equal(t, []gateway.Turn{
		{Role: model.RoleUser, Text: "اكتب"},
		{Role: model.RoleAssistant, Text: "جزء من"},
	}, gw.lastHistory())
}

func TestNewChatDiscardsRunningStream(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"نص"}}, hold: make(chan struct{})}
	session := NewChatSession(testPersona(t, model.PersonaFast), gw)

	done := make(chan error, 1)
	go func() {
		done <- session.Send(context.Background(), SendRequest{Text: "اكتب"}, Hooks{})
	}()
	require.Eventually(t, func() bool { return session.State() == StateStreaming }, time.Second, time.Millisecond)

	session.NewChat()

	require.NoError(t, <-done)
	assert.Empty(t, session.Messages())
	assert.Equal(t, StateIdle, session.State())
}

func TestResearchPlanFlow(t *testing.T) {
	gw := &fakeGateway{
		structuredOK: true,
		plan:         []string{"جمع المصادر", "تحليل البيانات", "كتابة الخلاصة"},
		answers:      [][]string{{"التقرير النهائي"}},
	}
	session := NewChatSession(testPersona(t, model.PersonaResearcher), gw)
	ctx := context.Background()

	require.NoError(t, session.Send(ctx, SendRequest{Text: "الطاقة الشمسية"}, Hooks{}))

	messages := session.Messages()
	require.Len(t, messages, 2)
	plan := messages[1]
	assert.True(t, plan.IsPlan())
	assert.False(t, plan.IsPlanExecuted)
	assert.Len(t, plan.ResearchPlan, 3)

	err := session.ExecutePlan(ctx, plan.ID, []string{"خطوة معدلة", " "}, Hooks{})

	require.NoError(t, err)
	messages = session.Messages()
	require.Len(t, messages, 3)
	assert.True(t, messages[1].IsPlanExecuted)
	assert.Equal(t, []string{"خطوة معدلة"}, messages[1].ResearchPlan)
	assert.Equal(t, "التقرير النهائي", messages[2].Content)
	assert.Contains(t, gw.lastTurn().Text, "1. خطوة معدلة")
	assert.Equal(t, []gateway.Turn{{Role: model.RoleUser, Text: "الطاقة الشمسية"}}, gw.lastHistory())

	require.ErrorIs(t, session.ExecutePlan(ctx, plan.ID, nil, Hooks{}), ErrPlanAlreadyExecuted)
	require.ErrorIs(t, session.ExecutePlan(ctx, messages[0].ID, nil, Hooks{}), ErrPlanNotFound)
}

func TestFailedReportReopensPlan(t *testing.T) {
	gw := &fakeGateway{
		structuredOK: true,
		plan:         []string{"جمع المصادر", "كتابة الخلاصة"},
	}
	session := NewChatSession(testPersona(t, model.PersonaResearcher), gw)
	ctx := context.Background()
	require.NoError(t, session.Send(ctx, SendRequest{Text: "الطاقة"}, Hooks{}))
	planID := session.Messages()[1].ID

	gw.streamErr = errors.New("upstream unavailable")
	rec := &recorder{}
	require.Error(t, session.ExecutePlan(ctx, planID, nil, rec.hooks()))

	messages := session.Messages()
	require.Len(t, messages, 3)
	assert.False(t, messages[1].IsPlanExecuted)
	assert.True(t, messages[2].Error)
	seen := rec.assistant()
	require.Len(t, seen, 3)
	assert.True(t, seen[0].IsPlanExecuted)
	assert.False(t, seen[1].IsPlanExecuted)
	assert.True(t, seen[2].Error)

	gw.streamErr = nil
	gw.answers = [][]string{{"التقرير"}}
	require.NoError(t, session.ExecutePlan(ctx, planID, nil, Hooks{}))
	messages = session.Messages()
	assert.True(t, messages[1].IsPlanExecuted)
	assert.Equal(t, "التقرير", messages[len(messages)-1].Content)
}

func TestResearchPlanSoftFailure(t *testing.T) {
	session := NewChatSession(testPersona(t, model.PersonaResearcher), &fakeGateway{})

	require.NoError(t, session.Send(context.Background(), SendRequest{Text: "موضوع"}, Hooks{}))

	messages := session.Messages()
	require.Len(t, messages, 2)
	assert.True(t, messages[1].Error)
	assert.Equal(t, local.TextStructuredFailed.Default, messages[1].Content)
}

func TestHistorySkipsUnapprovedPlansAndErrors(t *testing.T) {
	session := NewChatSession(testPersona(t, model.PersonaResearcher), &fakeGateway{})
	session.messages = []model.Message{
		{Role: model.RoleUser, Content: "أ"},
		{Role: model.RoleAssistant, ResearchPlan: []string{"خطوة"}},
		{Role: model.RoleUser, Content: "ب"},
		{Role: model.RoleAssistant, Content: "خطأ", Error: true},
		{Role: model.RoleUser, Content: "ج"},
		{Role: model.RoleAssistant, ResearchPlan: []string{"س", "ص"}, IsPlanExecuted: true},
	}

	history := session.historyLocked()

	assert.Equal(t, []gateway.Turn{
		{Role: model.RoleUser, Text: "أ"},
		{Role: model.RoleUser, Text: "ب"},
		{Role: model.RoleUser, Text: "ج"},
		{Role: model.RoleAssistant, Text: "خطة البحث:\n1. س\n2. ص\n"},
	}, history)
}

func TestWhiteboardImagesResolveInPlace(t *testing.T) {
	block := "```json:whiteboard\n" +
		`[{"type":"text","content":"شرح"},{"type":"generate_image","content":"قطة"}]` +
		"\n```"
	gw := &fakeGateway{answers: [][]string{{block}}, imageURL: "https://img.example/cat.png"}
	session := NewChatSession(testPersona(t, model.PersonaQuality), gw)

	require.NoError(t, session.Send(context.Background(), SendRequest{Text: "ارسم"}, Hooks{}))

	want := []model.WhiteboardStep{
		{Type: model.StepText, Content: "شرح"},
		{Type: model.StepImage, Content: "https://img.example/cat.png"},
	}
	assert.Equal(t, want, session.Messages()[1].Whiteboard)
	assert.Equal(t, want, session.Whiteboard())
}

func TestSendWaitsForImagesAfterStop(t *testing.T) {
	block := "```json:whiteboard\n" + `{"type":"generate_image","content":"قطة"}` + "\n```"
	gw := &fakeGateway{
		answers:      [][]string{{block}},
		hold:         make(chan struct{}),
		imageURL:     "https://img.example/cat.png",
		imageStarted: make(chan struct{}),
		imageHold:    make(chan struct{}),
	}
	session := NewChatSession(testPersona(t, model.PersonaQuality), gw)

	done := make(chan error, 1)
	go func() {
		done <- session.Send(context.Background(), SendRequest{Text: "ارسم"}, Hooks{})
	}()
	select {
	case <-gw.imageStarted:
	case <-time.After(time.Second):
		t.Fatal("image task did not start")
	}
	require.True(t, session.Stop())

	select {
	case <-done:
		t.Fatal("send returned before the image resolved")
	case <-time.After(50 * time.Millisecond):
	}

	close(gw.imageHold)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("send did not return after the image resolved")
	}
	assert.Equal(t, []model.WhiteboardStep{
		{Type: model.StepImage, Content: "https://img.example/cat.png"},
	}, session.Messages()[1].Whiteboard)
}

func TestWhiteboardImageFailureBecomesText(t *testing.T) {
	block := "```json:whiteboard\n" + `{"type":"generate_image","content":"قطة"}` + "\n```"
	gw := &fakeGateway{answers: [][]string{{block}}, imageErr: errors.New("boom")}
	session := NewChatSession(testPersona(t, model.PersonaQuality), gw)

	require.NoError(t, session.Send(context.Background(), SendRequest{Text: "ارسم"}, Hooks{}))

	assert.Equal(t, []model.WhiteboardStep{
		{Type: model.StepText, Content: local.TextImageFailed.DefaultFormat("قطة")},
	}, session.Messages()[1].Whiteboard)
}

func TestCommandsFireOncePerMessage(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"اقرأ [[SCROLL_TO:2:255]]", " ثم استمع [[PLAY:1:1]]", " انتهى"}}}
	session := NewChatSession(testPersona(t, model.PersonaFast), gw)
	rec := &recorder{}

	require.NoError(t, session.Send(context.Background(), SendRequest{Text: "البقرة"}, rec.hooks()))

	assert.Equal(t, []parser.Command{{Kind: parser.CommandScroll, Surah: 2, Ayah: 255}}, rec.scrolls)
	assert.Equal(t, []parser.Command{{Kind: parser.CommandPlay, Surah: 1, Ayah: 1}}, rec.plays)
	assert.Equal(t, "اقرأ  ثم استمع  انتهى", session.Messages()[1].Content)
}

func TestDesignPreviewFollowsLatestBlock(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"تفضل\n```html:design\n<h1>مرحبا</h1>\n```"}}}
	session := NewChatSession(testPersona(t, model.PersonaDesigner), gw)
	rec := &recorder{}

	require.NoError(t, session.Send(context.Background(), SendRequest{Text: "صمم"}, rec.hooks()))

	assert.Equal(t, "<h1>مرحبا</h1>", session.DesignPreview())
	assert.Equal(t, []string{"<h1>مرحبا</h1>"}, rec.designs)
}

func TestHiddenTurnIsNotRecorded(t *testing.T) {
	gw := &fakeGateway{answers: [][]string{{"حسناً"}}}
	session := NewChatSession(testPersona(t, model.PersonaResearcher), gw)

	err := session.Send(context.Background(), SendRequest{Text: "تعليمات داخلية", Hidden: true}, Hooks{})

	require.NoError(t, err)
	messages := session.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, model.RoleAssistant, messages[0].Role)
	assert.Equal(t, "تعليمات داخلية", gw.lastTurn().Text)
}
