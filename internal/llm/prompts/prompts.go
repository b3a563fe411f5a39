// Package prompts renders the item review prompts sent to the LLM.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

//go:embed templates/*.txt
var templateFS embed.FS

var tagRegex = regexp.MustCompile(`</?\s*[a-zA-Z][\w-]*\b[^>]*>`)

// maxNameRunes bounds user-provided text placed into a prompt.
const maxNameRunes = 200

// Variant selects the review prompt.
type Variant string

const (
	// VariantBrief asks for a verdict and a sentence or two.
	VariantBrief Variant = "brief"
	// VariantDetailed asks for an explanation aimed at the instructor.
	VariantDetailed Variant = "detailed"
)

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[Variant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return Variant(v) == VariantBrief || Variant(v) == VariantDetailed
}

// OptionShare is how often one letter was chosen.
type OptionShare struct {
	Letter string
	All    float64
	Upper  float64
	Lower  float64
}

// ReviewData is the template input for one item.
type ReviewData struct {
	ExamName        string
	KeyID           string
	Number          int // 1-based
	Expected        string
	Operator        string
	Respondents     int
	Difficulty      float64
	PointBiserial   float64
	Reliability     float64
	AlphaIfDeleted  float64
	Options         []OptionShare
	SuspectedMiskey string
}

func load(fsys fs.FS) error {
	loadOnce.Do(func() {
		templates = make(map[Variant]*template.Template)
		for _, v := range []Variant{VariantBrief, VariantDetailed} {
			file := "templates/review_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New(string(v)).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", file, err)
				return
			}
			templates[v] = tmpl
		}
	})
	return loadErr
}

// BuildReviewPrompt renders the review prompt for one item.
func BuildReviewPrompt(variant Variant, data ReviewData) (string, error) {
	if err := load(templateFS); err != nil {
		return "", err
	}
	tmpl, ok := templates[variant]
	if !ok {
		return "", fmt.Errorf("invalid prompt variant: %s", variant)
	}
	data.ExamName = sanitize(data.ExamName)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitize strips markup and bounds the length of free text.
func sanitize(s string) string {
	s = tagRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, `"`, "'")
	s = strings.TrimSpace(s)
	if s == "" {
		return "[untitled]"
	}
	if utf8.RuneCountInString(s) > maxNameRunes {
		s = string([]rune(s)[:maxNameRunes]) + "..."
	}
	return s
}
