package usecase

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/iamvkosarev/persona-chat/internal/model"
)

var (
	ErrPersonaNotFound  = errors.New("persona not found")
	ErrDuplicatePersona = errors.New("duplicate persona id")
	ErrNoPersonas       = errors.New("no personas configured")
)

type PersonaModels struct {
	Fast    string
	Quality string
}

// DefaultPersonas is the built-in persona table.
func DefaultPersonas(models PersonaModels) []model.Persona {
	return []model.Persona{
		{
			ID:           model.PersonaFast,
			DisplayName:  "المساعد السريع",
			Model:        models.Fast,
			SystemPrompt: "أنت مساعد ذكي سريع ومختصر. أجب بوضوح وإيجاز.",
			Features:     model.Features{FileUpload: true, Charts: true},
		},
		{
			ID:          model.PersonaQuality,
			DisplayName: "المفكر العميق",
			Model:       models.Quality,
			SystemPrompt: "أنت مساعد خبير يفكر بعمق قبل الإجابة، تشرح بدقة وتستخدم الرسوم البيانية " +
				"والمخططات والسبورة عند الحاجة.",
			Features: model.Features{
				WebSearch:    true,
				FileUpload:   true,
				Charts:       true,
				DeepThinking: true,
				Whiteboard:   true,
			},
		},
		{
			ID:           model.PersonaResearcher,
			DisplayName:  "الباحث",
			Model:        models.Quality,
			SystemPrompt: "أنت باحث محترف. تبني تقارير بحثية شاملة ومنظمة وموثقة بالمصادر.",
			Features:     model.Features{WebSearch: true, Charts: true, Research: true},
		},
		{
			ID:           model.PersonaSocial,
			DisplayName:  "المحاكي الاجتماعي",
			Model:        models.Fast,
			SystemPrompt: "أنت منسق لمحاكاة اجتماعية متعددة الوكلاء، تكتب بأصوات شخصيات مختلفة.",
		},
		{
			ID:           model.PersonaDesigner,
			DisplayName:  "المصمم",
			Model:        models.Quality,
			SystemPrompt: "أنت مصمم واجهات ويب محترف. تنتج صفحات HTML متجاوبة وجميلة تدعم اللغة العربية.",
			Features:     model.Features{FileUpload: true, Design: true},
		},
	}
}

type personasFile struct {
	Personas []model.Persona `toml:"personas"`
}

// LoadPersonas reads a persona table from a TOML file with [[personas]] entries.
func LoadPersonas(path string) ([]model.Persona, error) {
	var file personasFile
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("failed to decode personas file %s: %w", path, err)
	}
	return file.Personas, nil
}

// PersonaUsecase is the read-only persona registry.
type PersonaUsecase struct {
	personas map[model.PersonaID]model.Persona
	order    []model.PersonaID
}

func NewPersonaUsecase(personas []model.Persona) (*PersonaUsecase, error) {
	if len(personas) == 0 {
		return nil, ErrNoPersonas
	}
	p := &PersonaUsecase{
		personas: make(map[model.PersonaID]model.Persona, len(personas)),
		order:    make([]model.PersonaID, 0, len(personas)),
	}
	for _, persona := range personas {
		if persona.ID == "" || persona.Model == "" {
			return nil, fmt.Errorf("persona %q: id and model are required", persona.DisplayName)
		}
		if _, ok := p.personas[persona.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePersona, persona.ID)
		}
		p.personas[persona.ID] = persona
		p.order = append(p.order, persona.ID)
	}
	return p, nil
}

func (p *PersonaUsecase) Get(id model.PersonaID) (model.Persona, error) {
	persona, ok := p.personas[id]
	if !ok {
		return model.Persona{}, fmt.Errorf("%w: %s", ErrPersonaNotFound, id)
	}
	return persona, nil
}

func (p *PersonaUsecase) List() []model.Persona {
	personas := make([]model.Persona, 0, len(p.order))
	for _, id := range p.order {
		personas = append(personas, p.personas[id])
	}
	return personas
}
