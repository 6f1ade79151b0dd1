// Package ai wraps the text and image generation providers used for scene
// descriptions, scene backgrounds and toolkit assets.
//
// Each provider client tries an ordered list of models and returns the first
// usable answer. "Usable" for text can be narrowed by the caller through
// TextRequest.Accept, so a model that answers with unparseable JSON is
// skipped just like one that errors.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"reflect"
	"regexp"
	"strings"

	// decoders for provider image payloads
	_ "image/jpeg"
	_ "image/png"
)

var (
	// ErrAllModelsFailed is returned when every model in a fallback list failed.
	ErrAllModelsFailed = errors.New("all models failed")
	// ErrNoJSON is returned when no JSON object could be recovered from text.
	ErrNoJSON = errors.New("no JSON object in response")
	// ErrEmptyResponse is returned for responses without content.
	ErrEmptyResponse = errors.New("empty response")
)

// TextRequest is a single prompt to a text model.
type TextRequest struct {
	System string
	Prompt string
	// JSON asks providers that support it for a JSON object response.
	JSON bool
	// Accept, if set, validates a response; a non-nil error moves on to the next model.
	Accept func(text string) error
}

// TextGenerator produces text for a prompt.
type TextGenerator interface {
	Complete(ctx context.Context, req TextRequest) (string, error)
}

// ImageGenerator produces an image for a prompt.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (image.Image, error)
}

var (
	fenceOpen  = regexp.MustCompile("```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("```\\s*")
)

// CleanJSON recovers a JSON object from model output.
//
//  1. Strip ```json / ``` fences and surrounding whitespace; parse.
//  2. Otherwise take the text between the first '{' and the last '}'; parse.
//
// Returns the compacted object or ErrNoJSON.
func CleanJSON(text string) ([]byte, error) {
	cleaned := fenceOpen.ReplaceAllString(text, "")
	cleaned = fenceClose.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(cleaned)
	if b, ok := compactObject(cleaned); ok {
		return b, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if b, ok := compactObject(cleaned[start : end+1]); ok {
			return b, nil
		}
	}
	return nil, ErrNoJSON
}

func compactObject(s string) ([]byte, bool) {
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(s)); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// GenerateJSON asks gen for a JSON object and decodes it into v, which must
// be a non-nil pointer. A model whose answer does not decode is treated as
// failed, and v is only written once an answer has been accepted.
func GenerateJSON(ctx context.Context, gen TextGenerator, system, prompt string, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("generate json: want non-nil pointer, got %T", v)
	}
	accepted := false
	accept := func(text string) error {
		b, err := CleanJSON(text)
		if err != nil {
			return err
		}
		fresh := reflect.New(rv.Elem().Type())
		if err := json.Unmarshal(b, fresh.Interface()); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
		rv.Elem().Set(fresh.Elem())
		accepted = true
		return nil
	}
	text, err := gen.Complete(ctx, TextRequest{System: system, Prompt: prompt, JSON: true, Accept: accept})
	if err != nil {
		return err
	}
	if !accepted {
		// the generator did not run Accept itself
		return accept(text)
	}
	return nil
}
