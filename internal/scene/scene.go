// Package scene produces the content of an escape room: a theme, a
// one-sentence description and the background image the player clicks on.
// Target placement is not done here; the game engine asks its Placer.
package scene

import (
	"context"
	"fmt"
	"image"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/robalobadob/escaperoom/internal/ai"
	"github.com/robalobadob/escaperoom/internal/imaging"
	"github.com/robalobadob/escaperoom/internal/themes"
)

// Size is the side of the square scene image; targets live in this space.
const Size = 1024

const descriptionSystem = "Describe the room in one bright, breezy sentence in the mood of an anime background. No lists, no quotes."

const scenePromptTemplate = `High quality anime-style background illustration inspired by modern Japanese mobile RPG games.

First-person perspective escape room scene.
Location: %s

Clean anime line art.
Soft cel shading.
Bright pastel colors.
Soft bloom lighting.
Subtle floating light particles.
Highly detailed environment.
Many small objects scattered naturally.
No characters.`

// Scene is one generated room.
type Scene struct {
	Theme       string
	Description string
	Image       image.Image
}

// Generator builds scenes. Text and Images are optional: without Text a
// canned description is used, without Images a placeholder is drawn.
type Generator struct {
	Text    ai.TextGenerator
	Images  ai.ImageGenerator
	Catalog *themes.Catalog
}

// Prompt returns the image prompt for a theme.
func Prompt(theme string) string {
	return fmt.Sprintf(scenePromptTemplate, theme)
}

// Generate produces a scene. An empty theme picks one at random.
// Description failures degrade to the canned sentence; image failures are errors.
func (g *Generator) Generate(ctx context.Context, theme string) (*Scene, error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		theme = g.Catalog.Random()
	}
	sc := &Scene{Theme: theme}

	start := time.Now()
	if g.Images != nil {
		img, err := g.Images.Generate(ctx, Prompt(theme))
		if err != nil {
			return nil, fmt.Errorf("generate scene image: %w", err)
		}
		if b := img.Bounds(); b.Dx() != Size || b.Dy() != Size {
			img = imaging.Resize(img, Size)
		}
		sc.Image = img
	} else {
		sc.Image = imaging.Placeholder(Size, Size, rand.Uint64())
	}

	sc.Description = g.describe(ctx, theme)
	log.Info().Str("theme", theme).Dur("took", time.Since(start)).Msg("scene generated")
	return sc, nil
}

func (g *Generator) describe(ctx context.Context, theme string) string {
	fallback := fmt.Sprintf("You find yourself in a %s. Somewhere in here are the clues to get out.", theme)
	if g.Text == nil {
		return fallback
	}
	text, err := g.Text.Complete(ctx, ai.TextRequest{
		System: descriptionSystem,
		Prompt: fmt.Sprintf("Describe this place: %s.", theme),
	})
	if err != nil {
		log.Warn().Err(err).Str("theme", theme).Msg("scene description failed, using fallback")
		return fallback
	}
	return strings.TrimSpace(text)
}
