package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cespare/xxhash/v2"
)

// DefaultDimensions is the embedding width the index is built for.
const DefaultDimensions = 384

// Embedder turns texts into fixed-width vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// HashEmbedder is a local feature-hashing embedder over words and character
// trigrams. It needs no model and is deterministic across processes.
type HashEmbedder struct {
	dims          int
	trigramWeight float32
}

// NewHashEmbedder returns a hashing embedder; dims <= 0 selects DefaultDimensions.
func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &HashEmbedder{dims: dims, trigramWeight: 0.5}
}

func (h *HashEmbedder) Dimensions() int { return h.dims }

func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, h.embedOne(text))
	}
	return out, nil
}

func (h *HashEmbedder) embedOne(text string) []float32 {
	vec := make([]float32, h.dims)
	for _, word := range ContentTokens(text) {
		h.add(vec, "w:"+word, 1)
		padded := "^" + word + "$"
		if len(padded) <= 3 {
			continue
		}
		for i := 0; i+3 <= len(padded); i++ {
			h.add(vec, "t:"+padded[i:i+3], h.trigramWeight)
		}
	}
	normalize(vec)
	return vec
}

// add uses the high bit of the hash as a sign so collisions cancel on average.
func (h *HashEmbedder) add(vec []float32, feature string, weight float32) {
	sum := xxhash.Sum64String(feature)
	idx := int(sum % uint64(h.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
}

type bedrockInvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockEmbedder calls a Titan-style embedding model through InvokeModel.
type BedrockEmbedder struct {
	api     bedrockInvokeModelAPI
	modelID string
	dims    int
}

func NewBedrockEmbedder(api bedrockInvokeModelAPI, modelID string, dims int) *BedrockEmbedder {
	if api == nil {
		panic("match: bedrock runtime client cannot be nil")
	}
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &BedrockEmbedder{api: api, modelID: modelID, dims: dims}
}

func (b *BedrockEmbedder) Dimensions() int { return b.dims }

func (b *BedrockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if strings.TrimSpace(b.modelID) == "" {
		return nil, errors.New("match: bedrock embedding model id is required")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	embeddings := make([][]float32, 0, len(texts))
	for _, text := range texts {
		payload, err := json.Marshal(map[string]any{
			"inputText":  text,
			"dimensions": b.dims,
			"normalize":  true,
		})
		if err != nil {
			return nil, fmt.Errorf("match: embedding request marshal: %w", err)
		}

		out, err := b.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(b.modelID),
			ContentType: aws.String("application/json"),
			Accept:      aws.String("application/json"),
			Body:        payload,
		})
		if err != nil {
			return nil, fmt.Errorf("match: invoke embedding model: %w", err)
		}

		var decoded struct {
			Embedding []float64 `json:"embedding"`
		}
		if err := json.Unmarshal(out.Body, &decoded); err != nil {
			return nil, fmt.Errorf("match: embedding response parse: %w", err)
		}
		if len(decoded.Embedding) != b.dims {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(decoded.Embedding), b.dims)
		}

		vec := make([]float32, len(decoded.Embedding))
		for i, f := range decoded.Embedding {
			vec[i] = float32(f)
		}
		embeddings = append(embeddings, vec)
	}
	return embeddings, nil
}
