package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/ai-chat/internal/ai"
)

func TestBuild_DedupesAndDropsEmbeddings(t *testing.T) {
	models := Build([]ai.RawModel{
		{ID: "mistral-large-latest", Object: "model", OwnedBy: "mistralai", Created: 1},
		{ID: "mistral-large-latest", Object: "model", OwnedBy: "someone-else", Created: 2},
		{ID: "text-embed-v1"},
	})

	require.Len(t, models, 1)
	assert.Equal(t, "mistral-large-latest", models[0].ID)
	assert.Equal(t, "mistralai", models[0].OwnedBy, "first occurrence wins")
	assert.Equal(t, "Large Models", models[0].Category)
	assert.Equal(t, "Most capable model for complex tasks", models[0].Description)
}

func TestBuild_SortsByCategoryThenID(t *testing.T) {
	models := Build([]ai.RawModel{
		{ID: "pixtral-12b-2409"},
		{ID: "mistral-small-latest"},
		{ID: "open-mixtral-8x7b"},
		{ID: "codestral-latest"},
		{ID: "mistral-large-2407"},
		{ID: "mistral-large-latest"},
		{ID: ""},
	})

	ids := make([]string, 0, len(models))
	for _, m := range models {
		ids = append(ids, m.ID)
	}
	assert.Equal(t, []string{
		"codestral-latest",     // Code Models
		"mistral-large-2407",   // Large Models
		"mistral-large-latest", // Large Models
		"pixtral-12b-2409",     // Multimodal Models
		"open-mixtral-8x7b",    // Other Models
		"mistral-small-latest", // Small Models
	}, ids)
}

func TestCategorize_Precedence(t *testing.T) {
	cases := map[string]string{
		"pixtral-large-latest": "Large Models",
		"voxtral-mini-2507":    "Lightweight Models",
		"devstral-small":       "Small Models",
		"codestral-latest":     "Code Models",
		"mistral-nemo":         "Lightweight Models",
		"pixtral-12b-2409":     "Multimodal Models",
		"ministral-8b":         "Lightweight Models",
		"open-mistral-7b":      "Other Models",
	}
	for id, want := range cases {
		assert.Equal(t, want, Categorize(id), id)
	}
	assert.Equal(t, defaultDescription, Describe("ministral-8b"))
}

type fakeProvider struct {
	models []ai.RawModel
	err    error
	calls  int
}

func (p *fakeProvider) Chat(context.Context, ai.ChatRequest) (*ai.ChatResult, error) {
	return nil, errors.New("not used")
}

func (p *fakeProvider) ListModels(context.Context) ([]ai.RawModel, error) {
	p.calls++
	return p.models, p.err
}

type memCache struct {
	byProvider map[string][]Model
}

func (c *memCache) GetCatalog(_ context.Context, provider string) ([]Model, bool, error) {
	m, ok := c.byProvider[provider]
	return m, ok, nil
}

func (c *memCache) PutCatalog(_ context.Context, provider string, models []Model) error {
	if c.byProvider == nil {
		c.byProvider = make(map[string][]Model)
	}
	c.byProvider[provider] = models
	return nil
}

func TestService_UsesCache(t *testing.T) {
	prov := &fakeProvider{models: []ai.RawModel{{ID: "mistral-small-latest"}}}
	svc := NewService(&memCache{}, nil)

	first, err := svc.List(context.Background(), "mistral", prov)
	require.NoError(t, err)
	second, err := svc.List(context.Background(), "mistral", prov)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, prov.calls, "second call should be served from cache")
}

func TestService_CachesPerProvider(t *testing.T) {
	mistral := &fakeProvider{models: []ai.RawModel{{ID: "mistral-small-latest"}}}
	ollama := &fakeProvider{models: []ai.RawModel{{ID: "llama3:latest"}}}
	svc := NewService(&memCache{}, nil)
	ctx := context.Background()

	_, err := svc.List(ctx, "mistral", mistral)
	require.NoError(t, err)
	got, err := svc.List(ctx, "ollama", ollama)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "llama3:latest", got[0].ID)
	assert.Equal(t, 1, ollama.calls)
}

func TestService_PropagatesProviderError(t *testing.T) {
	boom := &ai.StatusError{Provider: "mistral", Status: 401}
	svc := NewService(nil, nil)

	_, err := svc.List(context.Background(), "mistral", &fakeProvider{err: boom})
	require.ErrorIs(t, err, boom)
}
