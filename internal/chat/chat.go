// Package chat implements the marketing-assistant conversation: a persona
// picker, a per-user transcript, and an extractor for ready-to-use
// generation prompts the assistant embeds in its replies.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/lumeo-ai/studio/internal/config"
	"github.com/lumeo-ai/studio/internal/models"
)

var ErrEmptyMessage = errors.New("empty message")

// promptDelimiter marks a generation-ready prompt inside an assistant reply.
const promptDelimiter = "PROMPT:"

const fallbackReply = "Desculpe, estou com dificuldades para responder agora. Tente novamente em instantes."

// Persona identifies one of the assistant specialties.
type Persona string

const (
	PersonaCreative Persona = "criativo"
	PersonaCopy     Persona = "copy"
	PersonaTraffic  Persona = "trafego"
	PersonaSocial   Persona = "social"
	PersonaSEO      Persona = "seo"
	PersonaSales    Persona = "vendas"
)

const DefaultPersona = PersonaCreative

// Personas lists the selectable specialties in display order.
var Personas = []struct {
	ID    Persona
	Title string
}{
	{PersonaCreative, "Diretor Criativo"},
	{PersonaCopy, "Copywriter"},
	{PersonaTraffic, "Gestor de Tráfego"},
	{PersonaSocial, "Social Media"},
	{PersonaSEO, "Especialista em SEO"},
	{PersonaSales, "Consultor de Vendas"},
}

func ValidPersona(p Persona) bool {
	for _, entry := range Personas {
		if entry.ID == p {
			return true
		}
	}
	return false
}

const greeting = "Olá! Sou seu assistente de marketing. Me conte sobre seu negócio e eu te ajudo a criar campanhas, textos e artes."

// Transcript is one user's conversation with the assistant. Each session
// owns exactly one; turns accumulate until Reset.
type Transcript struct {
	mu      sync.Mutex
	persona Persona
	turns   []models.ChatMessage
}

func NewTranscript() *Transcript {
	return &Transcript{
		persona: DefaultPersona,
		turns: []models.ChatMessage{
			{Role: models.RoleModel, Text: greeting},
		},
	}
}

func (t *Transcript) Persona() Persona {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.persona
}

// SetPersona switches the active specialty. Unknown values are ignored so
// stale clients cannot wedge the conversation.
func (t *Transcript) SetPersona(p Persona) {
	if !ValidPersona(p) {
		return
	}
	t.mu.Lock()
	t.persona = p
	t.mu.Unlock()
}

// Messages returns a snapshot of the conversation so far.
func (t *Transcript) Messages() []models.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.ChatMessage, len(t.turns))
	copy(out, t.turns)
	return out
}

func (t *Transcript) Reset() {
	t.mu.Lock()
	t.persona = DefaultPersona
	t.turns = []models.ChatMessage{{Role: models.RoleModel, Text: greeting}}
	t.mu.Unlock()
}

func (t *Transcript) append(msg models.ChatMessage) {
	t.mu.Lock()
	t.turns = append(t.turns, msg)
	t.mu.Unlock()
}

// Client posts transcripts to the assistant backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.ChatAPIURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// wireTurn carries one transcript turn in the backend's history format:
// parts is the turn text itself, not a list.
type wireTurn struct {
	Role  string `json:"role"`
	Parts string `json:"parts"`
}

type chatRequest struct {
	History []wireTurn `json:"history"`
	Persona string     `json:"persona"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Send appends the user message to the transcript, asks the backend for a
// reply, and appends it. A backend failure still yields a turn (a canned
// apology) so the conversation never loses the user's message.
func (c *Client) Send(ctx context.Context, t *Transcript, message string) (models.ChatMessage, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return models.ChatMessage{}, ErrEmptyMessage
	}

	t.append(models.ChatMessage{Role: models.RoleUser, Text: message})

	reply, err := c.complete(ctx, t)
	if err != nil {
		if c.log != nil {
			c.log.Error("chat completion failed", "error", err)
		}
		reply = fallbackReply
	}

	out := models.ChatMessage{Role: models.RoleModel, Text: reply}
	t.append(out)
	return out, nil
}

func (c *Client) complete(ctx context.Context, t *Transcript) (string, error) {
	turns := t.Messages()
	history := make([]wireTurn, 0, len(turns))
	for _, m := range turns {
		role := "user"
		if m.Role == models.RoleModel {
			role = "model"
		}
		history = append(history, wireTurn{Role: role, Parts: m.Text})
	}

	body, err := json.Marshal(chatRequest{History: history, Persona: string(t.Persona())})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("post chat: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("chat api: status=%d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if strings.TrimSpace(parsed.Response) == "" {
		return "", errors.New("empty reply")
	}
	return parsed.Response, nil
}

// HasPrompt reports whether an assistant reply carries an embedded
// generation prompt.
func HasPrompt(reply string) bool {
	return strings.Contains(reply, promptDelimiter)
}

// ExtractPrompt pulls the generation prompt out of a reply. The prompt runs
// from the delimiter to the end of its paragraph.
func ExtractPrompt(reply string) (string, bool) {
	idx := strings.Index(reply, promptDelimiter)
	if idx < 0 {
		return "", false
	}
	rest := reply[idx+len(promptDelimiter):]
	if end := strings.Index(rest, "\n\n"); end >= 0 {
		rest = rest[:end]
	}
	prompt := strings.TrimSpace(rest)
	if prompt == "" {
		return "", false
	}
	return prompt, true
}
