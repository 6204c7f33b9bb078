package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/sourcegraph/conc/pool"

	"github.com/iamvkosarev/persona-chat/internal/model"
	"github.com/iamvkosarev/persona-chat/internal/observability"
)

const (
	defaultSocialAgents = 4
	maxSocialAgents     = 8
	defaultSocialRounds = 2
	maxSocialRounds     = 5
)

var (
	ErrEmptyTopic       = errors.New("simulation topic is empty")
	ErrStructuredOutput = errors.New("model returned no usable structured output")
)

const castPrompt = "أنشئ %d شخصيات متنوعة لنقاش على وسائل التواصل الاجتماعي حول الموضوع التالي. " +
	"لكل شخصية اسم عربي ووصف قصير لخلفيتها وطريقة تفكيرها.\n\nالموضوع: %s"

const postSystemPrompt = "أنت %s. %s\nتكتب منشوراً قصيراً باللغة العربية على منصة تواصل اجتماعي. " +
	"لا تتجاوز ثلاث جمل، وابقَ وفياً لشخصيتك."

var castSchema = &jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"agents": {
			Type: jsonschema.Array,
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"name":        {Type: jsonschema.String},
					"personality": {Type: jsonschema.String},
				},
				Required: []string{"name", "personality"},
			},
		},
	},
	Required: []string{"agents"},
}

type SocialAgent struct {
	Name        string `json:"name"`
	Personality string `json:"personality"`
}

type SocialPost struct {
	Round  int    `json:"round"`
	Agent  string `json:"agent"`
	Text   string `json:"text"`
	Failed bool   `json:"failed,omitempty"`
}

type SimulationRequest struct {
	Topic  string        `json:"topic"`
	Agents []SocialAgent `json:"agents,omitempty"`
	Count  int           `json:"count,omitempty"`
	Rounds int           `json:"rounds,omitempty"`
}

type Simulation struct {
	Topic  string        `json:"topic"`
	Agents []SocialAgent `json:"agents"`
	Posts  []SocialPost  `json:"posts"`
}

type SocialGateway interface {
	GenerateText(ctx context.Context, persona model.Persona, prompt, systemOverride string) (string, error)
	GenerateStructured(
		ctx context.Context,
		persona model.Persona,
		prompt, systemOverride string,
		schema *jsonschema.Definition,
		out any,
	) (bool, error)
}

type SocialUsecaseDeps struct {
	Gateway  SocialGateway
	Personas *PersonaUsecase
}

// SocialUsecase runs multi-agent discussions on the social persona.
type SocialUsecase struct {
	SocialUsecaseDeps
}

func NewSocialUsecase(deps SocialUsecaseDeps) *SocialUsecase {
	return &SocialUsecase{SocialUsecaseDeps: deps}
}

// Simulate casts agents when none are given and plays the rounds. Agents in a
// round write concurrently and see every post of the previous rounds.
func (u *SocialUsecase) Simulate(ctx context.Context, req SimulationRequest) (Simulation, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return Simulation{}, ErrEmptyTopic
	}
	persona, err := u.Personas.Get(model.PersonaSocial)
	if err != nil {
		return Simulation{}, err
	}
	agents := req.Agents
	if len(agents) == 0 {
		if agents, err = u.cast(ctx, persona, topic, clamp(req.Count, defaultSocialAgents, maxSocialAgents)); err != nil {
			return Simulation{}, err
		}
	}
	if len(agents) > maxSocialAgents {
		agents = agents[:maxSocialAgents]
	}
	rounds := clamp(req.Rounds, defaultSocialRounds, maxSocialRounds)

	sim := Simulation{Topic: topic, Agents: agents}
	for round := 1; round <= rounds; round++ {
		posts, err := u.playRound(ctx, persona, topic, round, agents, sim.Posts)
		if err != nil {
			return Simulation{}, fmt.Errorf("failed to play round %d: %w", round, err)
		}
		sim.Posts = append(sim.Posts, posts...)
	}
	return sim, nil
}

func (u *SocialUsecase) cast(ctx context.Context, persona model.Persona, topic string, count int) ([]SocialAgent, error) {
	var out struct {
		Agents []SocialAgent `json:"agents"`
	}
	ok, err := u.Gateway.GenerateStructured(ctx, persona, fmt.Sprintf(castPrompt, count, topic), "", castSchema, &out)
	if err != nil {
		return nil, fmt.Errorf("failed to cast agents: %w", err)
	}
	var agents []SocialAgent
	for _, agent := range out.Agents {
		if strings.TrimSpace(agent.Name) != "" {
			agents = append(agents, agent)
		}
	}
	if !ok || len(agents) == 0 {
		return nil, ErrStructuredOutput
	}
	if len(agents) > count {
		agents = agents[:count]
	}
	return agents, nil
}

func (u *SocialUsecase) playRound(
	ctx context.Context,
	persona model.Persona,
	topic string,
	round int,
	agents []SocialAgent,
	feed []SocialPost,
) ([]SocialPost, error) {
	prompt := feedPrompt(topic, feed)
	posts := make([]SocialPost, len(agents))
	p := pool.New().WithMaxGoroutines(4).WithContext(ctx)
	for i, agent := range agents {
		p.Go(func(ctx context.Context) error {
			system := fmt.Sprintf(postSystemPrompt, agent.Name, agent.Personality)
			text, err := u.Gateway.GenerateText(ctx, persona, prompt, system)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				observability.LoggerFromContext(ctx).Warn("social post failed", "agent", agent.Name, "error", err)
				posts[i] = SocialPost{Round: round, Agent: agent.Name, Failed: true}
				return nil
			}
			posts[i] = SocialPost{Round: round, Agent: agent.Name, Text: strings.TrimSpace(text)}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return posts, nil
}

func feedPrompt(topic string, feed []SocialPost) string {
	var b strings.Builder
	b.WriteString("الموضوع: ")
	b.WriteString(topic)
	b.WriteString("\n")
	if len(feed) == 0 {
		b.WriteString("\nاكتب أول منشور في النقاش.")
		return b.String()
	}
	b.WriteString("\nالمنشورات السابقة:\n")
	for _, post := range feed {
		if post.Failed {
			continue
		}
		b.WriteString("- ")
		b.WriteString(post.Agent)
		b.WriteString(": ")
		b.WriteString(post.Text)
		b.WriteString("\n")
	}
	b.WriteString("\nاكتب ردك على النقاش.")
	return b.String()
}

func clamp(v, def, limit int) int {
	if v <= 0 {
		return def
	}
	if v > limit {
		return limit
	}
	return v
}
