//go:build onnx

// Package onnx provides a local embedding provider running a BERT-style
// sentence-transformer model through ONNX Runtime. It needs model and
// tokenizer files on disk plus the onnxruntime shared library, so it is
// kept behind the "onnx" build tag.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/agentvale/recall-go-sdk/embedding"
)

// Config configures the ONNX embedding provider.
type Config struct {
	// ModelPath points at the ONNX model file. Required.
	ModelPath string

	// TokenizerPath points at the HuggingFace tokenizer.json. Required.
	TokenizerPath string

	// SharedLibraryPath locates libonnxruntime. Required on platforms
	// where the default loader search path does not find it.
	SharedLibraryPath string

	// Dimensions is the embedding size. Default: 384 (all-MiniLM-L6-v2).
	Dimensions int

	// MaxSequenceLength caps tokenized input. Default: 128.
	MaxSequenceLength int
}

// Provider embeds text with a local ONNX model. Zero marginal cost.
type Provider struct {
	session    *ort.DynamicAdvancedSession
	tokenizer  *wordPieceTokenizer
	dimensions int
	maxSeqLen  int
	model      string
}

// New creates an ONNX provider and loads model and tokenizer.
func New(config Config) (*Provider, error) {
	if config.ModelPath == "" {
		return nil, fmt.Errorf("onnx: ModelPath is required")
	}
	if config.Dimensions == 0 {
		config.Dimensions = 384
	}
	if config.MaxSequenceLength == 0 {
		config.MaxSequenceLength = 128
	}

	if config.SharedLibraryPath != "" {
		ort.SetSharedLibraryPath(config.SharedLibraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnx runtime: %w", err)
	}

	tokenizer, err := loadWordPieceTokenizer(config.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(config.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	return &Provider{
		session:    session,
		tokenizer:  tokenizer,
		dimensions: config.Dimensions,
		maxSeqLen:  config.MaxSequenceLength,
		model:      strings.TrimSuffix(config.ModelPath, ".onnx"),
	}, nil
}

func (p *Provider) Name() string { return "onnx" }

func (p *Provider) Model() string { return p.model }

func (p *Provider) Dimensions() int { return p.dimensions }

// EstimateCost is zero: local inference has no per-call billing.
func (p *Provider) EstimateCost(text string) float64 { return 0 }

// Embed tokenizes text, runs inference, mean-pools over attended tokens,
// and returns a unit vector.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", embedding.ErrProviderUnavailable, err)
	}

	tokens := p.tokenizer.tokenize(text)

	inputIDs := make([]int64, p.maxSeqLen)
	attentionMask := make([]int64, p.maxSeqLen)
	tokenTypeIDs := make([]int64, p.maxSeqLen)

	inputIDs[0] = int64(p.tokenizer.clsToken)
	attentionMask[0] = 1

	tokenLen := len(tokens)
	if tokenLen > p.maxSeqLen-2 { // room for [CLS] and [SEP]
		tokenLen = p.maxSeqLen - 2
	}
	for i := 0; i < tokenLen; i++ {
		inputIDs[i+1] = tokens[i]
		attentionMask[i+1] = 1
	}
	inputIDs[tokenLen+1] = int64(p.tokenizer.sepToken)
	attentionMask[tokenLen+1] = 1

	shape := ort.NewShape(1, int64(p.maxSeqLen))
	inputIDsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: input_ids tensor: %v", embedding.ErrProviderError, err)
	}
	defer inputIDsTensor.Destroy()

	attentionTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("%w: attention_mask tensor: %v", embedding.ErrProviderError, err)
	}
	defer attentionTensor.Destroy()

	tokenTypeTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("%w: token_type_ids tensor: %v", embedding.ErrProviderError, err)
	}
	defer tokenTypeTensor.Destroy()

	outputs := []ort.Value{nil}
	err = p.session.Run([]ort.Value{inputIDsTensor, attentionTensor, tokenTypeTensor}, outputs)
	if err != nil {
		return nil, fmt.Errorf("%w: inference: %v", embedding.ErrProviderUnavailable, err)
	}
	defer func() {
		for _, out := range outputs {
			if out != nil {
				out.Destroy()
			}
		}
	}()

	if len(outputs) == 0 || outputs[0] == nil {
		return nil, fmt.Errorf("%w: no output tensors", embedding.ErrProviderError)
	}
	outputTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("%w: unexpected output tensor type", embedding.ErrProviderError)
	}

	vec, err := p.pool(outputTensor.GetData(), outputTensor.GetShape(), attentionMask)
	if err != nil {
		return nil, err
	}
	return normalize(vec), nil
}

// pool reduces the model output to one vector: either the output is
// already pooled ([1, dim]) or it is mean-pooled over attended positions
// ([1, seq, dim]).
func (p *Provider) pool(data []float32, shape ort.Shape, attentionMask []int64) ([]float32, error) {
	switch len(shape) {
	case 2:
		if len(data) < p.dimensions {
			return nil, fmt.Errorf("%w: output has %d components, want %d",
				embedding.ErrProviderError, len(data), p.dimensions)
		}
		vec := make([]float32, p.dimensions)
		copy(vec, data[:p.dimensions])
		return vec, nil

	case 3:
		seqLen, hidden := int(shape[1]), int(shape[2])
		if shape[0] != 1 || hidden != p.dimensions {
			return nil, fmt.Errorf("%w: unexpected output shape %v",
				embedding.ErrProviderError, shape)
		}
		vec := make([]float32, hidden)
		var attended float32
		for i := 0; i < seqLen; i++ {
			if attentionMask[i] == 0 {
				continue
			}
			attended++
			offset := i * hidden
			for j := 0; j < hidden; j++ {
				vec[j] += data[offset+j]
			}
		}
		if attended == 0 {
			return nil, fmt.Errorf("%w: no attended tokens", embedding.ErrProviderError)
		}
		for j := range vec {
			vec[j] /= attended
		}
		return vec, nil

	default:
		return nil, fmt.Errorf("%w: unexpected output shape %v", embedding.ErrProviderError, shape)
	}
}

// Close releases ONNX session resources.
func (p *Provider) Close() error {
	if p.session != nil {
		return p.session.Destroy()
	}
	return nil
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}

// wordPieceTokenizer is a minimal BERT WordPiece tokenizer loaded from a
// HuggingFace tokenizer.json vocabulary.
type wordPieceTokenizer struct {
	vocab    map[string]int
	clsToken int
	sepToken int
	unkToken int
}

func loadWordPieceTokenizer(path string) (*wordPieceTokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tokenizerData struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tokenizerData); err != nil {
		return nil, err
	}
	return &wordPieceTokenizer{
		vocab:    tokenizerData.Model.Vocab,
		clsToken: 101, // [CLS]
		sepToken: 102, // [SEP]
		unkToken: 100, // [UNK]
	}, nil
}

func (t *wordPieceTokenizer) tokenize(text string) []int64 {
	words := strings.Fields(strings.ToLower(text))
	var tokens []int64
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'")
		if id, ok := t.vocab[word]; ok {
			tokens = append(tokens, int64(id))
			continue
		}
		for _, sub := range t.wordPiece(word) {
			if id, ok := t.vocab[sub]; ok {
				tokens = append(tokens, int64(id))
			} else {
				tokens = append(tokens, int64(t.unkToken))
			}
		}
	}
	return tokens
}

// wordPiece splits a word into the longest matching vocabulary subwords,
// prefixing continuations with "##".
func (t *wordPieceTokenizer) wordPiece(word string) []string {
	var subwords []string
	start := 0
	for start < len(word) {
		end := len(word)
		found := false
		for end > start {
			sub := word[start:end]
			if start > 0 {
				sub = "##" + sub
			}
			if _, ok := t.vocab[sub]; ok {
				subwords = append(subwords, sub)
				start = end
				found = true
				break
			}
			end--
		}
		if !found {
			subwords = append(subwords, "[UNK]")
			start++
		}
	}
	return subwords
}
