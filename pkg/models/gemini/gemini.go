package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/nstogner/drydock/pkg/models"
	"github.com/nstogner/drydock/pkg/store"
)

const (
	// LevelTrace is a custom log level for detailed HTTP traffic.
	LevelTrace = slog.Level(-8)
)

// GeminiModel implements models.ModelProvider using the Google Gemini API.
type GeminiModel struct {
	client *genai.Client
}

// New creates a new GeminiModel.
func New(ctx context.Context, apiKey string) (*GeminiModel, error) {
	httpClient := &http.Client{
		Transport: &loggingTransport{
			base:   http.DefaultTransport,
			apiKey: apiKey,
		},
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiModel{client: client}, nil
}

type loggingTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// If API key is provided and not already in headers/query, add it.
	// We do this because passing a custom http.Client often bypasses
	// the library's automatic API key injection.
	if t.apiKey != "" && req.Header.Get("x-goog-api-key") == "" && req.URL.Query().Get("key") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("x-goog-api-key", t.apiKey)
	}

	if !slog.Default().Enabled(req.Context(), LevelTrace) {
		return t.base.RoundTrip(req)
	}

	reqDump, err := httputil.DumpRequestOut(req, true)
	if err != nil {
		slog.Debug("Failed to dump Gemini request", "error", err)
	} else {
		slog.Debug("Gemini REST Request", "url", req.URL.String(), "dump", string(reqDump))
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	// For streaming, don't dump body to avoid consuming it/blocking.
	isStream := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") ||
		strings.Contains(req.URL.Query().Get("alt"), "sse")

	respDump, err := httputil.DumpResponse(resp, !isStream)
	if err != nil {
		slog.Debug("Failed to dump Gemini response", "error", err)
	} else {
		slog.Debug("Gemini REST Response", "isStream", isStream, "dump", string(respDump))
	}

	return resp, nil
}

// Close releases resources.
func (m *GeminiModel) Close() {
	m.client.Close()
}

// List returns available models.
func (m *GeminiModel) List(ctx context.Context) ([]string, error) {
	iter := m.client.ListModels(ctx)
	var names []string
	for {
		model, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		slog.Debug("Found Gemini model", "name", model.Name)
		names = append(names, model.Name)
	}
	return names, nil
}

// toGenaiSchema converts a provider-neutral JSON-schema map into the genai
// schema type. Only the subset our tools declare (objects of strings) is
// handled.
func toGenaiSchema(schema map[string]any) *genai.Schema {
	out := &genai.Schema{Type: genai.TypeObject}

	if desc, ok := schema["description"].(string); ok {
		out.Description = desc
	}
	if typ, ok := schema["type"].(string); ok && typ == "string" {
		out.Type = genai.TypeString
		return out
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		out.Properties = make(map[string]*genai.Schema, len(props))
		for name, p := range props {
			sub, ok := p.(map[string]any)
			if !ok {
				continue
			}
			out.Properties[name] = toGenaiSchema(sub)
		}
	}
	if req, ok := schema["required"].([]string); ok {
		out.Required = req
	}
	return out
}

func toGenaiTools(decls []models.ToolDecl) []*genai.Tool {
	if len(decls) == 0 {
		return nil
	}
	var fns []*genai.FunctionDeclaration
	for _, d := range decls {
		fns = append(fns, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  toGenaiSchema(d.InputSchema),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: fns}}
}

// Stream sends a context to the LLM and returns a stream.
func (m *GeminiModel) Stream(ctx context.Context, modelName string, messages []models.AgentMessage, tools []models.ToolDecl) (models.ModelStream, error) {
	slog.Debug("Gemini.Stream: Request Parameters", "model", modelName, "messageCount", len(messages))
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}
	gm := m.client.GenerativeModel(modelName)
	gm.Tools = toGenaiTools(tools)

	// Track tool-call ids back to function names: Gemini keys function
	// responses by name, our entries key them by tool-use id.
	callNames := make(map[string]string)

	convert := func(msg models.AgentMessage) []genai.Part {
		var parts []genai.Part
		for _, c := range msg.Content {
			switch c.Type {
			case store.ContentTypeText:
				parts = append(parts, genai.Text(c.Text.Content))
			case store.ContentTypeToolUse:
				callNames[c.ToolUse.ID] = c.ToolUse.Name
				parts = append(parts, genai.FunctionCall{
					Name: c.ToolUse.Name,
					Args: c.ToolUse.Input,
				})
			case store.ContentTypeToolResult:
				parts = append(parts, genai.FunctionResponse{
					Name: callNames[c.ToolResult.ToolUseID],
					Response: map[string]any{
						"result": c.ToolResult.Content,
					},
				})
			}
		}
		return parts
	}

	var genaiHistory []*genai.Content
	for _, msg := range messages {
		parts := convert(msg)

		// Gemini only distinguishes "model" from "user"; tool results
		// arrive from the environment, which is the user side.
		role := "user"
		if msg.Role == store.RoleAssistant {
			role = "model"
		}

		if len(parts) > 0 {
			genaiHistory = append(genaiHistory, &genai.Content{
				Role:  role,
				Parts: parts,
			})
		}
	}

	if len(genaiHistory) == 0 {
		return nil, fmt.Errorf("no sendable content in messages")
	}

	cs := gm.StartChat()
	cs.History = genaiHistory[:len(genaiHistory)-1]
	lastParts := genaiHistory[len(genaiHistory)-1].Parts

	iter := cs.SendMessageStream(ctx, lastParts...)
	return &geminiStream{iter: iter}, nil
}

// geminiStream wrapper
type geminiStream struct {
	iter *genai.GenerateContentResponseIterator
}

func (s *geminiStream) FullMessage() (models.AgentMessage, error) {
	var fullText strings.Builder
	var toolCalls []store.Content

	slog.Debug("Aggregating Gemini response stream")

	for {
		resp, err := s.iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return models.AgentMessage{}, err
		}

		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if txt, ok := part.(genai.Text); ok {
					fullText.WriteString(string(txt))
				} else if fc, ok := part.(genai.FunctionCall); ok {
					toolCalls = append(toolCalls, store.Content{
						Type: store.ContentTypeToolUse,
						ToolUse: &store.ToolUseContent{
							ID:    "call-" + uuid.New().String(),
							Name:  fc.Name,
							Input: fc.Args,
						},
					})
				}
			}
		}
	}

	content := []store.Content{}
	if fullText.Len() > 0 {
		content = append(content, store.Content{
			Type: store.ContentTypeText,
			Text: &store.TextContent{Content: fullText.String()},
		})
	}
	content = append(content, toolCalls...)

	return models.AgentMessage{
		Role:    store.RoleAssistant,
		Content: content,
	}, nil
}

func (s *geminiStream) Close() error {
	return nil
}
