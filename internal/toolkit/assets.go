package toolkit

import (
	"context"
	"fmt"
	"strings"

	"github.com/robalobadob/escaperoom/internal/ai"
)

// NPC is a generated non-player character.
type NPC struct {
	Name         string         `json:"name"`
	Role         string         `json:"role"`
	Rarity       string         `json:"rarity"`
	Stats        map[string]any `json:"stats"` // STR, DEX, INT, LUK
	Skill        Skill          `json:"skill"`
	Backstory    string         `json:"backstory"`
	VisualPrompt string         `json:"visual_prompt"`
}

type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Item is a generated item.
type Item struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Rank        string `json:"rank"`
	Effect      string `json:"effect"`
	Description string `json:"description"`
}

func (i Item) empty() bool {
	return i.Name == "" && i.Type == "" && i.Rank == "" && i.Effect == "" && i.Description == ""
}

// NPCPrompt builds the data prompt for an NPC theme.
func NPCPrompt(theme, language string) string {
	return fmt.Sprintf(`Create a unique game NPC based on: '%s'.
Return JSON object with keys: name, role, rarity, stats(STR,DEX,INT,LUK), skill(name,description), backstory, visual_prompt.
Translate contents to %s, but keep visual_prompt in English. Output JSON only.`, theme, language)
}

// ItemPrompt builds the data prompt for an item name.
func ItemPrompt(name, language string) string {
	return fmt.Sprintf("Create game item: '%s'. Return JSON: name, type, rank, effect, description. %s text. JSON only.", name, language)
}

// PortraitPrompt is the image prompt for an NPC.
func PortraitPrompt(style, visual string) string {
	return fmt.Sprintf("%s style. %s. White background, character portrait.", style, visual)
}

// IconPrompt is the image prompt for an item.
func IconPrompt(style, item string) string {
	return fmt.Sprintf("%s style. Game icon of %s. centered, isolated on white background.", style, item)
}

// NPC generates an NPC for theme.
func (t *Toolkit) NPC(ctx context.Context, theme string, o Options) (*Asset[NPC], error) {
	theme = strings.TrimSpace(theme)
	if theme == "" {
		return nil, fmt.Errorf("%w: theme is required", ErrInvalidRequest)
	}
	p, style, err := t.resolve(o)
	if err != nil {
		return nil, err
	}

	var npc NPC
	if err := ai.GenerateJSON(ctx, p.Text, dataSystem, NPCPrompt(theme, t.language), &npc); err != nil {
		return nil, fmt.Errorf("generate npc data: %w", err)
	}
	if strings.TrimSpace(npc.Name) == "" {
		return nil, fmt.Errorf("%w: npc has no name", ErrIncompleteData)
	}
	visual := strings.TrimSpace(npc.VisualPrompt)
	if visual == "" {
		visual = theme
	}

	png, err := t.image(ctx, p, PortraitPrompt(style, visual), o)
	if err != nil {
		return nil, err
	}
	return &Asset[NPC]{Data: npc, PNG: png, Style: style}, nil
}

// Item generates an item called name.
func (t *Toolkit) Item(ctx context.Context, name string, o Options) (*Asset[Item], error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: item name is required", ErrInvalidRequest)
	}
	p, style, err := t.resolve(o)
	if err != nil {
		return nil, err
	}

	var item Item
	if err := ai.GenerateJSON(ctx, p.Text, dataSystem, ItemPrompt(name, t.language), &item); err != nil {
		return nil, fmt.Errorf("generate item data: %w", err)
	}
	if item.empty() {
		return nil, fmt.Errorf("%w: item is empty", ErrIncompleteData)
	}

	png, err := t.image(ctx, p, IconPrompt(style, name), o)
	if err != nil {
		return nil, err
	}
	return &Asset[Item]{Data: item, PNG: png, Style: style}, nil
}
