package rag

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/nikhilbhutani/docassist/internal/llm"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/nikhilbhutani/docassist/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEmbedder struct{ err error }

func (s stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0, 0}, nil
}

type stubStore struct {
	vectorstore.EmbeddingStore
	results []vectorstore.SearchResult
	opts    vectorstore.SearchOptions
}

func (s *stubStore) SearchSimilar(_ context.Context, _ []float32, opts vectorstore.SearchOptions) ([]vectorstore.SearchResult, error) {
	s.opts = opts
	if opts.TopK < len(s.results) {
		return s.results[:opts.TopK], nil
	}
	return s.results, nil
}

type recordingGenerator struct {
	calls  int
	system string
	user   string
	answer string
	err    error
}

func (g *recordingGenerator) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	g.calls++
	g.system, g.user = systemPrompt, userPrompt
	return g.answer, g.err
}

func result(content string, score float64) vectorstore.SearchResult {
	return vectorstore.SearchResult{
		EmbeddingID: uuid.New(),
		ChunkID:     uuid.New(),
		DocumentID:  uuid.New(),
		Content:     content,
		Distance:    1 - score,
		Score:       score,
	}
}

func newComposer(store *stubStore, gen Generator, cfg ComposerConfig) *Composer {
	return NewComposer(NewRetriever(store, stubEmbedder{}, 5), gen, nil, cfg)
}

func TestRetriever_PassesScopeAndTopK(t *testing.T) {
	store := &stubStore{results: []vectorstore.SearchResult{result("a", 0.9)}}
	r := NewRetriever(store, stubEmbedder{}, 3)

	owner, docID := uuid.New(), uuid.New()
	got, err := r.Retrieve(context.Background(), "q", owner, &docID)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, owner, store.opts.UserID)
	require.NotNil(t, store.opts.DocumentID)
	assert.Equal(t, docID, *store.opts.DocumentID)
	assert.Equal(t, 3, store.opts.TopK)
}

func TestRetriever_EmbeddingError(t *testing.T) {
	embedErr := errors.New("boom")
	r := NewRetriever(&stubStore{}, stubEmbedder{err: embedErr}, 3)
	_, err := r.Retrieve(context.Background(), "q", uuid.New(), nil)
	assert.ErrorIs(t, err, embedErr)
	assert.ErrorIs(t, err, models.ErrEmbedding)
}

func TestCompose_EmbeddingErrorIsClassified(t *testing.T) {
	c := NewComposer(NewRetriever(&stubStore{}, stubEmbedder{err: errors.New("timeout")}, 5),
		&recordingGenerator{}, nil, ComposerConfig{})

	_, err := c.Compose(context.Background(), "q", uuid.New(), nil)
	assert.ErrorIs(t, err, models.ErrEmbedding)
}

func TestCompose_NoResultsReturnsFallback(t *testing.T) {
	gen := &recordingGenerator{}
	c := newComposer(&stubStore{}, gen, ComposerConfig{})

	answer, err := c.Compose(context.Background(), "anything?", uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, NoContextAnswer, answer.Text)
	assert.NotNil(t, answer.Sources)
	assert.Empty(t, answer.Sources)
	assert.Zero(t, gen.calls)
}

func TestCompose_BuildsPromptInRankOrder(t *testing.T) {
	store := &stubStore{results: []vectorstore.SearchResult{
		result("The sky is blue.", 0.9),
		result("Grass is green.", 0.7),
	}}
	gen := &recordingGenerator{answer: "Blue."}
	c := newComposer(store, gen, ComposerConfig{MaxContextTokens: 1000})

	answer, err := c.Compose(context.Background(), "What color is the sky?", uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Blue.", answer.Text)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, systemPrompt, gen.system)
	assert.Contains(t, gen.user, "The sky is blue.\n\n---\n\nGrass is green.")
	assert.Contains(t, gen.user, "Question: What color is the sky?")

	require.Len(t, answer.Sources, 2)
	assert.Equal(t, store.results[0].ChunkID, answer.Sources[0].ChunkID)
	assert.Equal(t, store.results[0].DocumentID, answer.Sources[0].DocumentID)
	assert.Equal(t, "The sky is blue.", answer.Sources[0].Excerpt)
	assert.InDelta(t, 0.9, answer.Sources[0].Score, 1e-9)
}

func TestCompose_ContextBudget(t *testing.T) {
	long := strings.Repeat("word ", 300)
	store := &stubStore{results: []vectorstore.SearchResult{
		result(long, 0.9),
		result(long, 0.8),
		result("short tail", 0.7),
	}}
	gen := &recordingGenerator{answer: "ok"}
	c := newComposer(store, gen, ComposerConfig{MaxContextTokens: 450})

	answer, err := c.Compose(context.Background(), "q", uuid.New(), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, strings.Count(gen.user, long))
	assert.Contains(t, gen.user, "short tail")
	// Every retrieved chunk is still cited.
	assert.Len(t, answer.Sources, 3)
}

func TestCompose_TopChunkAlwaysIncluded(t *testing.T) {
	huge := strings.Repeat("word ", 2000)
	store := &stubStore{results: []vectorstore.SearchResult{result(huge, 0.9)}}
	gen := &recordingGenerator{answer: "ok"}
	c := newComposer(store, gen, ComposerConfig{MaxContextTokens: 10})

	_, err := c.Compose(context.Background(), "q", uuid.New(), nil)
	require.NoError(t, err)
	assert.Contains(t, gen.user, huge)
}

func TestCompose_ExcerptTruncation(t *testing.T) {
	exact := strings.Repeat("é", 200)
	long := strings.Repeat("é", 201)
	store := &stubStore{results: []vectorstore.SearchResult{result(exact, 0.9), result(long, 0.8)}}
	c := newComposer(store, &recordingGenerator{answer: "ok"}, ComposerConfig{})

	answer, err := c.Compose(context.Background(), "q", uuid.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, exact, answer.Sources[0].Excerpt)
	assert.Equal(t, exact+"...", answer.Sources[1].Excerpt)
}

func TestCompose_GenerationErrorPropagates(t *testing.T) {
	store := &stubStore{results: []vectorstore.SearchResult{result("ctx", 0.9)}}
	gen := NewLLMGenerator(failingGateway{}, GeneratorOptions{Model: "gpt-4o-mini"})
	c := newComposer(store, gen, ComposerConfig{})

	_, err := c.Compose(context.Background(), "q", uuid.New(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrGeneration)
}

type failingGateway struct{}

func (failingGateway) Chat(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
	return nil, errors.New("all providers failed")
}

type capturingGateway struct{ req llm.ChatRequest }

func (g *capturingGateway) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	g.req = req
	return &llm.ChatResponse{Provider: "openai", Model: req.Model, Content: "answer"}, nil
}

func TestLLMGenerator_SendsSystemAndUserMessages(t *testing.T) {
	gw := &capturingGateway{}
	gen := NewLLMGenerator(gw, GeneratorOptions{Provider: "openai", Model: "gpt-4o-mini", Temperature: 0.2, MaxTokens: 512})

	out, err := gen.Generate(context.Background(), "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, "answer", out)
	assert.Equal(t, []llm.Message{{Role: "system", Content: "sys"}, {Role: "user", Content: "usr"}}, gw.req.Messages)
	assert.Equal(t, "openai", gw.req.Provider)
	assert.Equal(t, 512, gw.req.MaxTokens)
	assert.InDelta(t, 0.2, gw.req.Temperature, 1e-9)
}

func TestCompose_PlainGeneratorErrorIsClassified(t *testing.T) {
	store := &stubStore{results: []vectorstore.SearchResult{result("ctx", 0.9)}}
	c := newComposer(store, &recordingGenerator{err: errors.New("timeout")}, ComposerConfig{})

	_, err := c.Compose(context.Background(), "q", uuid.New(), nil)
	assert.ErrorIs(t, err, models.ErrGeneration)
}
