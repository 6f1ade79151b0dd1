// Package toolkit generates game assets: NPCs and items as structured data
// from a text model, plus a portrait or icon from an image model with the
// white background cut out.
package toolkit

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/escaperoom/internal/ai"
	"github.com/robalobadob/escaperoom/internal/imaging"
	"github.com/robalobadob/escaperoom/internal/themes"
)

var (
	ErrUnknownProvider = errors.New("unknown provider")
	ErrUnauthorized    = errors.New("provider password mismatch")
	ErrInvalidRequest  = errors.New("invalid request")
	ErrIncompleteData  = errors.New("generated data is incomplete")
)

const (
	ResizeSize = 512

	dataSystem = "You are a game data generator. Output JSON only."
)

// Provider is one configured text+image backend.
type Provider struct {
	Name     string
	Text     ai.TextGenerator
	Images   ai.ImageGenerator
	Password string // optional access password
}

// Toolkit dispatches asset requests to providers.
type Toolkit struct {
	providers map[string]Provider
	order     []string
	catalog   *themes.Catalog
	language  string
	bg        imaging.BackgroundOptions
}

// New builds a toolkit. language is the language the generated text is written in.
func New(catalog *themes.Catalog, language string, providers ...Provider) *Toolkit {
	t := &Toolkit{
		providers: make(map[string]Provider, len(providers)),
		catalog:   catalog,
		language:  language,
		bg:        imaging.DefaultBackgroundOptions(),
	}
	for _, p := range providers {
		if p.Text == nil || p.Images == nil {
			continue
		}
		t.providers[p.Name] = p
		t.order = append(t.order, p.Name)
	}
	return t
}

// Providers lists configured provider names and whether each needs a password.
func (t *Toolkit) Providers() map[string]bool {
	out := make(map[string]bool, len(t.order))
	for _, name := range t.order {
		out[name] = t.providers[name].Password != ""
	}
	return out
}

// Styles lists the available art styles.
func (t *Toolkit) Styles() []string { return t.catalog.Styles }

// Options are shared by NPC and item requests.
type Options struct {
	Provider string `json:"provider"`
	Password string `json:"password,omitempty"`
	Style    string `json:"style"`
	Resize   *bool  `json:"resize,omitempty"` // default true
}

// Asset is generated data plus its PNG.
type Asset[T any] struct {
	Data  T      `json:"data"`
	PNG   []byte `json:"-"`
	Style string `json:"style"`
}

func (t *Toolkit) resolve(o Options) (Provider, string, error) {
	name := strings.ToLower(strings.TrimSpace(o.Provider))
	if name == "" && len(t.order) > 0 {
		name = t.order[0]
	}
	p, ok := t.providers[name]
	if !ok {
		return Provider{}, "", fmt.Errorf("%w: %q", ErrUnknownProvider, o.Provider)
	}
	if p.Password != "" && subtle.ConstantTimeCompare([]byte(p.Password), []byte(o.Password)) != 1 {
		return Provider{}, "", ErrUnauthorized
	}
	style, ok := t.catalog.Style(o.Style)
	if !ok {
		return Provider{}, "", fmt.Errorf("%w: unknown style %q", ErrInvalidRequest, o.Style)
	}
	return p, style, nil
}

// finishImage removes the background and optionally resizes.
func (t *Toolkit) finishImage(img image.Image, o Options) ([]byte, error) {
	out := imaging.RemoveBackground(img, t.bg)
	if o.Resize == nil || *o.Resize {
		out = imaging.Resize(out, ResizeSize)
	}
	return imaging.EncodePNG(out)
}

func (t *Toolkit) image(ctx context.Context, p Provider, prompt string, o Options) ([]byte, error) {
	img, err := p.Images.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}
	b, err := t.finishImage(img, o)
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", p.Name).Int("bytes", len(b)).Msg("asset image ready")
	return b, nil
}
