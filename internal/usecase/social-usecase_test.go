package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

type fakeSocialGateway struct {
	mu      sync.Mutex
	agents  []SocialAgent
	ok      bool
	fail    string
	prompts []string
}

func (g *fakeSocialGateway) GenerateText(_ context.Context, _ model.Persona, prompt, system string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.fail != "" && strings.Contains(system, g.fail) {
		return "", errors.New("boom")
	}
	name := strings.TrimPrefix(strings.SplitN(system, ".", 2)[0], "أنت ")
	return " رأي " + name + " ", nil
}

func (g *fakeSocialGateway) GenerateStructured(
	_ context.Context,
	_ model.Persona,
	_, _ string,
	_ *jsonschema.Definition,
	out any,
) (bool, error) {
	cast := out.(*struct {
		Agents []SocialAgent `json:"agents"`
	})
	cast.Agents = g.agents
	return g.ok, nil
}

func newTestSocial(t *testing.T, gw SocialGateway) *SocialUsecase {
	t.Helper()
	personas, err := NewPersonaUsecase(DefaultPersonas(PersonaModels{Fast: "fast", Quality: "quality"}))
	require.NoError(t, err)
	return NewSocialUsecase(SocialUsecaseDeps{Gateway: gw, Personas: personas})
}

func TestSimulateCastsAgentsAndPlaysRounds(t *testing.T) {
	gw := &fakeSocialGateway{ok: true, agents: []SocialAgent{
		{Name: "سارة", Personality: "متفائلة"},
		{Name: "خالد", Personality: "متشكك"},
		{Name: "ليلى", Personality: "محايدة"},
	}}
	social := newTestSocial(t, gw)

	sim, err := social.Simulate(context.Background(), SimulationRequest{Topic: "العمل عن بعد", Count: 2, Rounds: 2})

	require.NoError(t, err)
	require.Len(t, sim.Agents, 2)
	require.Len(t, sim.Posts, 4)
	assert.Equal(t, SocialPost{Round: 1, Agent: "سارة", Text: "رأي سارة"}, sim.Posts[0])
	assert.Equal(t, SocialPost{Round: 1, Agent: "خالد", Text: "رأي خالد"}, sim.Posts[1])
	assert.Equal(t, 2, sim.Posts[3].Round)
	assert.Equal(t, "خالد", sim.Posts[3].Agent)

	var secondRound int
	for _, prompt := range gw.prompts {
		if strings.Contains(prompt, "- سارة: رأي سارة") {
			secondRound++
		}
	}
	assert.Equal(t, 2, secondRound)
}

func TestSimulateKeepsFailedPostsInTheirSlot(t *testing.T) {
	gw := &fakeSocialGateway{fail: "خالد"}
	social := newTestSocial(t, gw)

	sim, err := social.Simulate(context.Background(), SimulationRequest{
		Topic:  "الرياضة",
		Agents: []SocialAgent{{Name: "سارة"}, {Name: "خالد"}},
		Rounds: 1,
	})

	require.NoError(t, err)
	require.Len(t, sim.Posts, 2)
	assert.False(t, sim.Posts[0].Failed)
	assert.True(t, sim.Posts[1].Failed)
	assert.Equal(t, "خالد", sim.Posts[1].Agent)
}

func TestSimulateErrors(t *testing.T) {
	social := newTestSocial(t, &fakeSocialGateway{})

	_, err := social.Simulate(context.Background(), SimulationRequest{Topic: " "})
	require.ErrorIs(t, err, ErrEmptyTopic)

	_, err = social.Simulate(context.Background(), SimulationRequest{Topic: "أي شيء"})
	require.ErrorIs(t, err, ErrStructuredOutput)
}
