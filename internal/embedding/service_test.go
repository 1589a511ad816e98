package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/nikhilbhutani/docassist/internal/llm"
	"github.com/nikhilbhutani/docassist/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	dims    int
	err     error
	batches []int
}

func (f *fakeGateway) Embed(_ context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	f.batches = append(f.batches, len(req.Input))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(req.Input))
	for i := range out {
		out[i] = make([]float32, f.dims)
		out[i][0] = float32(len(req.Input[i]))
	}
	return &llm.EmbeddingResponse{Embeddings: out}, nil
}

func TestService_EmbedBatchesOfHundred(t *testing.T) {
	gw := &fakeGateway{dims: 4}
	s := NewService(gw, "", 4)

	texts := make([]string, 250)
	for i := range texts {
		texts[i] = "text"
	}
	vecs, err := s.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vecs, 250)
	assert.Equal(t, []int{100, 100, 50}, gw.batches)
}

func TestService_Embed(t *testing.T) {
	s := NewService(&fakeGateway{dims: 3}, "m", 0)
	v, err := s.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{5, 0, 0}, v)
}

func TestService_ErrorsWrapErrEmbedding(t *testing.T) {
	upstream := errors.New("rate limited")
	s := NewService(&fakeGateway{err: upstream}, "", 0)

	_, err := s.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, models.ErrEmbedding)
	assert.ErrorIs(t, err, upstream)
}

func TestService_DimensionCheck(t *testing.T) {
	s := NewService(&fakeGateway{dims: 3}, "", 1536)
	_, err := s.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, models.ErrEmbedding)
}
