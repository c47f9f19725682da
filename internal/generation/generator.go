package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/replyd/internal/prompt"
)

const (
	// DefaultModel is used when config names no model.
	DefaultModel = "gpt-4o-mini"

	defaultSystemPrompt = "You are a conversation response generator. Always reply with a JSON array of " +
		"candidate objects. Each object must include 'text' and 'style' fields, and a " +
		"'features' object with metadata when available."

	// historyWindow bounds how much dialog history goes into the request.
	historyWindow = 4
)

// promptOrder lists the prompt assets composed into the system prompt.
var promptOrder = []string{"00_system_core", "20_safety_guard", "10_generator", "11_styles_catalog"}

// Config configures the candidate generator.
type Config struct {
	// Model is the OpenAI model name.
	Model string
	// APIKey enables API-backed generation when non-empty. Without it the
	// generator always serves deterministic fallback candidates.
	APIKey string
	// BaseURL overrides the API endpoint, e.g. for a proxy.
	BaseURL string
	// Temperature is the sampling temperature for generation.
	Temperature float64
	// MaxOutputTokens bounds the response size.
	MaxOutputTokens int
}

// Generator produces candidate replies. The API path can fail or return
// garbage; the generator then degrades to the deterministic fallback so the
// caller always receives a valid, non-empty candidate list.
type Generator struct {
	cfg          Config
	client       *openai.Client
	catalog      StylesCatalog
	systemPrompt string
	logger       *zap.Logger
}

// NewGenerator creates a generator. The styles catalog and system prompt are
// composed from the prompt loader's assets; missing prompt files degrade to
// built-in defaults rather than failing startup.
func NewGenerator(cfg Config, loader *prompt.Loader, logger *zap.Logger) (*Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.8
	}
	if cfg.MaxOutputTokens == 0 {
		cfg.MaxOutputTokens = 600
	}

	g := &Generator{
		cfg:          cfg,
		systemPrompt: composeSystemPrompt(loader),
		catalog:      loadStylesCatalog(loader, logger),
		logger:       logger,
	}

	if cfg.APIKey != "" {
		opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		client := openai.NewClient(opts...)
		g.client = &client
	}

	return g, nil
}

// Catalog exposes the styles catalog for feature extraction and UI use.
func (g *Generator) Catalog() StylesCatalog {
	return g.catalog
}

// Generate produces up to gc.CandidateCount candidates for the context. It
// never returns an empty list: API failures, unparseable responses, and the
// no-key configuration all fall back to deterministic per-style texts.
func (g *Generator) Generate(ctx context.Context, gc *Context) ([]Candidate, error) {
	if gc.CandidateCount < 1 {
		return nil, fmt.Errorf("generation: candidate count must be positive, got %d", gc.CandidateCount)
	}

	if g.client != nil {
		candidates, err := g.generateViaAPI(ctx, gc)
		if err == nil && len(candidates) > 0 {
			return candidates, nil
		}
		if err != nil {
			g.logger.Warn("model generation failed, serving fallback candidates", zap.Error(err))
		}
	}

	return g.generateFallback(gc), nil
}

func (g *Generator) generateViaAPI(ctx context.Context, gc *Context) ([]Candidate, error) {
	stylesAllowed := gc.StylesAllowed
	if len(stylesAllowed) == 0 {
		stylesAllowed = g.catalog.Names()
	}

	payload, err := json.Marshal(map[string]any{
		"history":        formatHistory(gc.Messages),
		"user_profile":   orEmpty(gc.UserProfile),
		"goal":           gc.Goal,
		"constraints":    orEmpty(gc.Constraints),
		"styles_allowed": stylesAllowed,
		"N":              gc.CandidateCount,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding generation request: %w", err)
	}

	items := responses.ResponseInputParam{
		responses.ResponseInputItemParamOfMessage(g.systemPrompt, responses.EasyInputMessageRoleSystem),
		responses.ResponseInputItemParamOfMessage(string(payload), responses.EasyInputMessageRoleUser),
	}

	resp, err := g.client.Responses.New(ctx, responses.ResponseNewParams{
		Model:           shared.ResponsesModel(g.cfg.Model),
		Input:           responses.ResponseNewParamsInputUnion{OfInputItemList: items},
		Temperature:     openai.Float(g.cfg.Temperature),
		MaxOutputTokens: openai.Int(int64(g.cfg.MaxOutputTokens)),
	})
	if err != nil {
		return nil, fmt.Errorf("openai generate: %w", err)
	}

	parsed, err := parseCandidatesPayload(resp.OutputText())
	if err != nil {
		return nil, fmt.Errorf("model response was not a candidate list: %w", err)
	}

	language := g.inferLanguage(gc.Messages)
	candidates := make([]Candidate, 0, len(parsed))
	for _, item := range parsed {
		style := item.Style
		if style == "" {
			style = "unknown"
		}
		traits, _ := g.catalog.Traits(style)
		features := buildFeatures(item.Text, style, traits, language)
		for k, v := range item.Features {
			features[k] = v
		}
		for k, v := range item.Meta {
			features[k] = v
		}
		candidates = append(candidates, Candidate{
			Text:     item.Text,
			Style:    style,
			Features: features,
		})
	}

	if len(candidates) > gc.CandidateCount {
		candidates = candidates[:gc.CandidateCount]
	}
	return candidates, nil
}

func (g *Generator) generateFallback(gc *Context) []Candidate {
	styles := gc.StylesAllowed
	if len(styles) == 0 {
		styles = g.catalog.Names()
	}
	if len(styles) == 0 {
		styles = fallbackStyles
	}
	if len(styles) > gc.CandidateCount {
		styles = styles[:gc.CandidateCount]
	}

	language := g.inferLanguage(gc.Messages)
	lastUser := lastUserMessage(gc.Messages)

	candidates := make([]Candidate, 0, len(styles))
	for _, style := range styles {
		text := fallbackText(style, lastUser, language)
		traits, _ := g.catalog.Traits(style)
		candidates = append(candidates, Candidate{
			Text:     text,
			Style:    style,
			Features: buildFeatures(text, style, traits, language),
		})
	}
	return candidates
}

func (g *Generator) inferLanguage(messages []Message) string {
	if last := lastUserMessage(messages); last != "" {
		return detectLanguage(last)
	}
	return "ja"
}

// composeSystemPrompt joins the prompt assets in order, skipping any that
// are missing on disk.
func composeSystemPrompt(loader *prompt.Loader) string {
	var parts []string
	for _, id := range promptOrder {
		content, err := loader.Load(id)
		if err != nil {
			continue
		}
		parts = append(parts, content)
	}
	composed := strings.TrimSpace(strings.Join(parts, "\n\n"))
	if composed == "" {
		return defaultSystemPrompt
	}
	return composed
}

// loadStylesCatalog extracts the JSON object embedded in the styles catalog
// prompt. A missing or malformed catalog yields an empty catalog; the
// feature extractor substitutes trait defaults.
func loadStylesCatalog(loader *prompt.Loader, logger *zap.Logger) StylesCatalog {
	raw, err := loader.Load("11_styles_catalog")
	if err != nil {
		logger.Warn("styles catalog prompt unavailable", zap.Error(err))
		return StylesCatalog{}
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return StylesCatalog{}
	}

	var catalog StylesCatalog
	if err := json.Unmarshal([]byte(raw[start:end+1]), &catalog); err != nil {
		logger.Warn("styles catalog is not valid JSON", zap.Error(err))
		return StylesCatalog{}
	}
	return catalog
}

func formatHistory(messages []Message) string {
	start := len(messages) - historyWindow
	if start < 0 {
		start = 0
	}
	lines := make([]string, 0, historyWindow)
	for _, msg := range messages[start:] {
		lines = append(lines, fmt.Sprintf("[%s] %s", strings.ToUpper(msg.Role), msg.Content))
	}
	return strings.Join(lines, "\n")
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
