// Package llm drafts revision notes for poorly discriminating exam items using
// an OpenAI-compatible chat API.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/examstats/internal/llm/prompts"
	"github.com/pavelanni/examstats/internal/model"
)

// ItemReview is the LLM's assessment of a single item.
type ItemReview struct {
	Verdict      string `json:"verdict"`
	SuspectedKey string `json:"suspected_key"`
	Notes        string `json:"notes"`
}

// ReviewedItem ties a review to the item it is about.
type ReviewedItem struct {
	KeyID           string      `json:"keyId"`
	Index           int         `json:"index"`
	PointBiserial   float64     `json:"rpb"`
	Difficulty      float64     `json:"difficulty"`
	SuspectedMiskey string      `json:"suspectedMiskey,omitempty"`
	Review          *ItemReview `json:"review,omitempty"`
	Error           string      `json:"error,omitempty"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api     *openai.Client
	model   string
	variant prompts.Variant
}

// New creates a new LLM client. An empty variant selects the brief prompt.
func New(baseURL, apiKey, modelName string, variant prompts.Variant) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if variant == "" {
		variant = prompts.VariantBrief
	}
	return &Client{
		api:     openai.NewClientWithConfig(config),
		model:   modelName,
		variant: variant,
	}
}

// ReviewItem asks the LLM about one item of an answer key.
func (c *Client) ReviewItem(ctx context.Context, examName string, ka model.KeyAnalysis, it model.ItemStatistic) (*ItemReview, error) {
	prompt, err := prompts.BuildReviewPrompt(c.variant, ReviewData(examName, ka, it))
	if err != nil {
		return nil, fmt.Errorf("build prompt: %w", err)
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	var review ItemReview
	if err := json.Unmarshal([]byte(raw), &review); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w (raw: %s)", err, raw)
	}
	review.Verdict = strings.ToLower(strings.TrimSpace(review.Verdict))
	review.SuspectedKey = model.ParseLetters(review.SuspectedKey).String()
	return &review, nil
}

// ReviewReport reviews every candidate item of a report. A failed call is
// recorded on the item and does not stop the others.
func (c *Client) ReviewReport(ctx context.Context, rep *model.Report) ([]ReviewedItem, error) {
	var out []ReviewedItem
	for _, ka := range rep.AnswerKeys {
		for _, it := range Candidates(ka) {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			item := ReviewedItem{
				KeyID:           ka.ID,
				Index:           it.Index,
				PointBiserial:   it.PointBiserial,
				Difficulty:      it.Difficulty,
				SuspectedMiskey: SuspectedMiskey(ka, it),
			}
			review, err := c.ReviewItem(ctx, rep.Name, ka, it)
			if err != nil {
				slog.Warn("item review failed", "key", ka.ID, "index", it.Index, "error", err)
				item.Error = err.Error()
			} else {
				item.Review = review
			}
			out = append(out, item)
		}
	}
	return out, nil
}

// Candidates returns the items of a key with poor discrimination that at least
// one student answered.
func Candidates(ka model.KeyAnalysis) []model.ItemStatistic {
	var out []model.ItemStatistic
	for _, it := range ka.Items {
		if it.Respondents > 0 && it.Class.Discrimination == model.Poor {
			out = append(out, it)
		}
	}
	return out
}

// SuspectedMiskey returns the letter the upper group picks more often than any
// expected letter, or "" when the expected answer leads.
func SuspectedMiskey(ka model.KeyAnalysis, it model.ItemStatistic) string {
	if it.Index >= len(ka.Questions) {
		return ""
	}
	expected := ka.Questions[it.Index].ExpectedLetters()
	var bestExpected, bestOther float64
	other := -1
	for o := 0; o < model.NumOptions; o++ {
		share := it.Upper[o]
		if expected.Has(o) {
			bestExpected = max(bestExpected, share)
		} else if share > bestOther {
			bestOther, other = share, o
		}
	}
	if other < 0 || bestOther <= bestExpected {
		return ""
	}
	return string(model.Options[other])
}

// ReviewData converts item statistics into prompt input.
func ReviewData(examName string, ka model.KeyAnalysis, it model.ItemStatistic) prompts.ReviewData {
	d := prompts.ReviewData{
		ExamName:        examName,
		KeyID:           ka.ID,
		Number:          it.Index + 1,
		Respondents:     it.Respondents,
		Difficulty:      it.Difficulty,
		PointBiserial:   it.PointBiserial,
		Reliability:     ka.Reliability,
		AlphaIfDeleted:  it.AlphaIfDeleted,
		SuspectedMiskey: SuspectedMiskey(ka, it),
	}
	if it.Index < len(ka.Questions) {
		q := ka.Questions[it.Index]
		d.Expected = q.ExpectedLetters().String()
		d.Operator = q.Operator.String()
	}
	for o := 0; o < model.NumOptions; o++ {
		d.Options = append(d.Options, prompts.OptionShare{
			Letter: string(model.Options[o]),
			All:    it.Frequency[o],
			Upper:  it.Upper[o],
			Lower:  it.Lower[o],
		})
	}
	return d
}
