// ABOUTME: OpenAI-backed implementation of the AI capability
// ABOUTME: Provides auto-reply classification and conversation summarization

package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrNotConfigured is returned when the AI capability is invoked without
// an API key. Callers treat the feature as disabled, never as fatal.
var ErrNotConfigured = errors.New("ai capability not configured")

const defaultModel = "gpt-4o"

// classifySystemPrompt is the fixed instruction contract for the auto-reply
// decision. The model must answer with a strict JSON object; anything else
// is treated by callers as "do not reply".
const classifySystemPrompt = `Você é um assistente de saúde. Analise a mensagem de um paciente. ` +
	`Sua tarefa é decidir se uma resposta automática de apoio é apropriada. ` +
	`Responda APENAS com um objeto JSON. ` +
	`Se a mensagem for uma simples atualização, um agradecimento ou uma afirmação positiva, retorne: ` +
	`{"responder": true, "texto_resposta": "[uma frase curta de apoio]"}. ` +
	`Exemplos de frases: 'Obrigado por compartilhar!', 'Entendido, continue assim!', 'Registro feito!'. ` +
	`Se a mensagem for uma pergunta, um pedido de ajuda, uma queixa (mesmo que sutil), ` +
	`ou qualquer coisa que exija atenção humana, retorne: {"responder": false}`

// summarizeSystemPrompt instructs the model to produce a clinical summary.
const summarizeSystemPrompt = `Você é um assistente de saúde inteligente. Sua tarefa é resumir a ` +
	`seguinte conversa entre um paciente em tratamento e um profissional de saúde. ` +
	`O resumo deve ser conciso, útil e focado nos aspectos clínicos e comportamentais.`

const summarizeUserPrompt = `Por favor, resuma a conversa abaixo em bullet points, focando em: ` +
	`1. Evolução de sintomas ou queixas. 2. Adesão ao tratamento (medicamentos, dieta, exercícios). ` +
	`3. Efeitos colaterais mencionados. 4. Estado emocional ou humor geral relatado. ` +
	`5. Dados numéricos específicos reportados (peso, pressão, etc.). ` +
	`Não invente informações e seja direto ao ponto.`

// Decision is the structured auto-reply verdict returned by the model.
type Decision struct {
	ShouldReply bool
	ReplyText   string
}

// Client talks to the OpenAI chat completions API.
type Client struct {
	api    openai.Client
	model  string
	logger *slog.Logger
}

// Config holds the AI capability settings.
type Config struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// NewClient creates an OpenAI client. Returns nil (capability disabled)
// when no API key is configured.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	api := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(timeout),
	)

	return &Client{
		api:    api,
		model:  model,
		logger: logger.With("component", "ai"),
	}
}

// decisionPayload is the wire shape of the classification contract.
type decisionPayload struct {
	Responder     bool   `json:"responder"`
	TextoResposta string `json:"texto_resposta"`
}

// ClassifyAutoReply asks the model whether an automatic supportive reply is
// appropriate for the given patient message. A malformed model response is
// an error; callers fall back to not replying.
func (c *Client) ClassifyAutoReply(ctx context.Context, text string) (Decision, error) {
	if c == nil {
		return Decision{}, ErrNotConfigured
	}

	userPrompt := fmt.Sprintf("Analise esta mensagem do paciente: %q", text)

	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(classifySystemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return Decision{}, fmt.Errorf("classify request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return Decision{}, errors.New("classify response had no choices")
	}

	content := completion.Choices[0].Message.Content
	var payload decisionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return Decision{}, fmt.Errorf("parsing classify decision: %w", err)
	}

	c.logger.Debug("auto-reply classified", "responder", payload.Responder)
	return Decision{
		ShouldReply: payload.Responder,
		ReplyText:   payload.TextoResposta,
	}, nil
}

// Summarize produces a clinical bullet-point summary of a conversation
// transcript.
func (c *Client) Summarize(ctx context.Context, transcript string) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}

	userPrompt := fmt.Sprintf("%s\n\n--- CONVERSA ---\n%s", summarizeUserPrompt, transcript)

	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(summarizeSystemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize request: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("summarize response had no choices")
	}

	return completion.Choices[0].Message.Content, nil
}
