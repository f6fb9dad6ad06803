// Package llm binds the pipeline's three LLM capabilities - classification,
// drafting and the photo-need decision - to the Anthropic API. Parsing is
// deliberately forgiving: a malformed classification degrades to safe
// defaults instead of failing the batch.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"github.com/linconhq/lincon/internal/record"
)

// Classification is the result of classifying one memory.
type Classification struct {
	Category   record.Category
	HasContext record.HasContext
}

// PhotoNeed is the asset-need capability's decision.
type PhotoNeed struct {
	NeedsPhoto       bool   `json:"needs_photo"`
	Reason           string `json:"reason"`
	PhotoDescription string `json:"photo_description"`
}

// Client talks to the Anthropic API.
type Client struct {
	client *anthropic.Client
	model  string
	log    *logrus.Entry
}

// New creates an LLM client.
func New(apiKey, model string, log *logrus.Entry) *Client {
	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	return &Client{
		client: &client,
		model:  model,
		log:    log,
	}
}

// complete runs one prompt with an assistant prefill so the response
// continues as valid JSON (or raw text when prefill is empty).
func (c *Client) complete(ctx context.Context, prompt, prefill string) (string, error) {
	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}
	if prefill != "" {
		messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(prefill)))
	}

	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 2048,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("failed to call Claude API: %w", err)
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}

	if responseText == "" {
		return "", fmt.Errorf("Claude returned empty response")
	}

	// The response continues from after the prefill.
	return prefill + responseText, nil
}

// Classify categorizes one memory. Invalid or unparseable responses default
// to misc/unknown rather than failing the batch; only transport errors
// propagate so the memory stays unclassified for the next run.
func (c *Client) Classify(ctx context.Context, text string) (Classification, error) {
	raw, err := c.complete(ctx, buildClassifyPrompt(text), "{")
	if err != nil {
		return Classification{}, err
	}

	fallback := Classification{Category: record.CategoryMisc, HasContext: record.ContextUnknown}

	var parsed struct {
		Category   string `json:"category"`
		HasContext string `json:"has_context"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		c.log.WithError(err).Warn("unparseable classification, defaulting to misc")
		return fallback, nil
	}

	cls := Classification{
		Category:   record.ParseCategory(parsed.Category),
		HasContext: record.ContextUnknown,
	}
	switch parsed.HasContext {
	case "yes":
		cls.HasContext = record.ContextYes
	case "no":
		cls.HasContext = record.ContextNo
	}
	return cls, nil
}

// GenerateText drafts a plain text post from the source memories.
func (c *Client) GenerateText(ctx context.Context, memories []record.Memory) (string, error) {
	raw, err := c.complete(ctx, buildTextPostPrompt(memories), "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

// GenerateCarousel drafts ordered slide texts, clamped to the slide limit.
func (c *Client) GenerateCarousel(ctx context.Context, memories []record.Memory) ([]string, error) {
	raw, err := c.complete(ctx, buildCarouselPrompt(memories), "[")
	if err != nil {
		return nil, err
	}

	slides, err := parseSlides(raw)
	if err != nil {
		return nil, err
	}
	return slides, nil
}

// NeedsPhoto decides whether the draft needs a real photograph. Absent or
// ambiguous signal reads as no - the conservative branch.
func (c *Client) NeedsPhoto(ctx context.Context, slides []string, sourceText string) (bool, string, string, error) {
	raw, err := c.complete(ctx, buildNeedsPhotoPrompt(slides, sourceText), "{")
	if err != nil {
		return false, "", "", err
	}

	var need PhotoNeed
	if err := json.Unmarshal([]byte(raw), &need); err != nil {
		c.log.WithError(err).Warn("unparseable photo-need response, assuming no photo")
		return false, "", "", nil
	}
	return need.NeedsPhoto, need.Reason, need.PhotoDescription, nil
}

// parseSlides validates and clamps a drafted slide array.
func parseSlides(raw string) ([]string, error) {
	var slides []string
	if err := json.Unmarshal([]byte(raw), &slides); err != nil {
		return nil, fmt.Errorf("failed to parse carousel JSON: %w (response was: %.500s)", err, raw)
	}

	out := slides[:0]
	for _, s := range slides {
		if strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("carousel draft contained no slides")
	}
	if len(out) > record.MaxSlides {
		out = out[:record.MaxSlides]
	}
	return out, nil
}
