package catalog

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/suPer8Hu/ai-chat/internal/ai"
)

type Model struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	Created     int64  `json:"created"`
	OwnedBy     string `json:"owned_by"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

const defaultDescription = "Mistral AI language model"

var descriptions = map[string]string{
	"mistral-large-latest":  "Most capable model for complex tasks",
	"mistral-large-2407":    "Large model with enhanced capabilities",
	"mistral-medium-latest": "Balanced performance and efficiency",
	"mistral-small-latest":  "Fast and efficient for simple tasks",
	"codestral-latest":      "Specialized for code generation and analysis",
	"mistral-nemo":          "Lightweight model for basic tasks",
	"voxtral-mini-2507":     "Compact multimodal model with voice capabilities",
	"pixtral-large-latest":  "Large multimodal model for vision tasks",
	"pixtral-12b-2409":      "Efficient vision model for image analysis",
}

// categories are checked in order; the first rule with a matching substring wins.
var categories = []struct {
	name    string
	markers []string
}{
	{"Large Models", []string{"large"}},
	{"Medium Models", []string{"medium"}},
	{"Small Models", []string{"small"}},
	{"Code Models", []string{"codestral", "code"}},
	{"Lightweight Models", []string{"nemo", "mini"}},
	{"Multimodal Models", []string{"pixtral", "voxtral"}},
}

const otherCategory = "Other Models"

func Describe(id string) string {
	if d, ok := descriptions[id]; ok {
		return d
	}
	return defaultDescription
}

func Categorize(id string) string {
	for _, c := range categories {
		for _, m := range c.markers {
			if strings.Contains(id, m) {
				return c.name
			}
		}
	}
	return otherCategory
}

// Build drops embedding models, keeps the first entry per id, annotates each
// model and sorts by category then id.
func Build(raw []ai.RawModel) []Model {
	unique := orderedmap.New[string, Model]()
	for _, m := range raw {
		if m.ID == "" || strings.Contains(m.ID, "embed") {
			continue
		}
		if _, seen := unique.Get(m.ID); seen {
			continue
		}
		unique.Set(m.ID, Model{
			ID:          m.ID,
			Object:      m.Object,
			Created:     m.Created,
			OwnedBy:     m.OwnedBy,
			Description: Describe(m.ID),
			Category:    Categorize(m.ID),
		})
	}

	out := make([]Model, 0, unique.Len())
	for pair := unique.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Cache holds a processed catalog between upstream fetches.
type Cache interface {
	GetCatalog(ctx context.Context, provider string) ([]Model, bool, error)
	PutCatalog(ctx context.Context, provider string, models []Model) error
}

type Service struct {
	cache  Cache
	logger *slog.Logger
}

func NewService(cache Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{cache: cache, logger: logger}
}

// List returns the processed catalog for provider, cached under name when a
// cache is configured and warm. Cache failures only cost a refetch.
func (s *Service) List(ctx context.Context, name string, provider ai.Provider) ([]Model, error) {
	if s.cache != nil {
		models, ok, err := s.cache.GetCatalog(ctx, name)
		if err != nil {
			s.logger.Warn("catalog cache read failed", "error", err)
		} else if ok {
			return models, nil
		}
	}

	raw, err := provider.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	models := Build(raw)

	if s.cache != nil {
		if err := s.cache.PutCatalog(ctx, name, models); err != nil {
			s.logger.Warn("catalog cache write failed", "error", err)
		}
	}
	return models, nil
}
