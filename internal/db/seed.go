package db

import (
	"fmt"

	"github.com/promptcraft/promptcraft/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultTiers are the tiers created on first migration.
func DefaultTiers() []models.Tier {
	return []models.Tier{
		{ID: models.FreeTierID, Name: "Free", Description: "Perfect for testing the AI prompt engine", MonthlyQuota: 50, Features: datatypes.JSON(`["50 prompts per month","Access to basic templates","Standard AI models","Community support"]`), Currency: "usd", SortOrder: 0, IsEnabled: true},
		{ID: "basic", Name: "Basic", Description: "For consistent high-quality creators", MonthlyQuota: 200, Features: datatypes.JSON(`["200 prompts per month","Intermediate template access","Priority processing","7-day history retention"]`), MonthlyPriceCents: 200, Currency: "usd", SortOrder: 1, IsEnabled: true},
		{ID: "pro", Name: "Pro", Description: "Unlimited potential for power users", MonthlyQuota: 600, Features: datatypes.JSON(`["600 prompts per month","ALL Templates & Styles","BYOK Fallback (Unlimited)","Unlimited history retention"]`), MonthlyPriceCents: 500, Currency: "usd", SortOrder: 2, IsEnabled: true},
	}
}

// DefaultModelConfigs are the model configs created on first migration.
func DefaultModelConfigs() []models.ModelConfig {
	return []models.ModelConfig{
		{
			ModelID:     "gemini-1.5-pro",
			Name:        "Gemini 1.5 Pro",
			Provider:    "google",
			Description: "Google's most capable model for reasoning and creativity.",
			Endpoint:    "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-pro:generateContent",
			EnvKey:      "GEMINI_API_KEY",
			IsActive:    true,
		},
		{
			ModelID:     "gpt-4o",
			Name:        "GPT-4o",
			Provider:    "openai",
			Description: "OpenAI's flagship multimodal model.",
			Endpoint:    "https://api.openai.com/v1/chat/completions",
			EnvKey:      "OPENAI_API_KEY",
			IsActive:    true,
		},
	}
}

// DefaultTemplates are the templates created on first migration.
func DefaultTemplates() []models.Template {
	return []models.Template{
		{
			ID:            "midjourney-v6",
			Category:      "Image",
			Name:          "Midjourney v6 Cinematic",
			Description:   "Optimized for high-end photography and cinematic lighting.",
			Structure:     "{{topic}} --ar {{aspect_ratio}} --style raw --v 6.0",
			DefaultParams: datatypes.JSON(`{"aspect_ratio":"16:9"}`),
			ParamSchema:   datatypes.JSON(`[{"key":"aspect_ratio","type":"select","label":"Aspect Ratio","options":[{"label":"16:9","value":"16:9"},{"label":"1:1","value":"1:1"},{"label":"9:16","value":"9:16"}]}]`),
			IsActive:      true,
		},
		{
			ID:            "dalle-3-descriptive",
			Category:      "Image",
			Name:          "DALL·E 3 Storyboard",
			Description:   "Best for detailed, illustrative storyboards and concepts.",
			Structure:     "A detailed illustration of {{topic}} in the style of...",
			DefaultParams: datatypes.JSON(`{}`),
			ParamSchema:   datatypes.JSON(`[]`),
			IsActive:      true,
		},
		{
			ID:            "marketing-copy-gen",
			Category:      "Text",
			Name:          "Marketing Copy Engine",
			Description:   "Generate conversion-focused headlines and body text.",
			Structure:     "Write a high-converting {{platform}} post about {{topic}}...",
			DefaultParams: datatypes.JSON(`{"platform":"LinkedIn"}`),
			ParamSchema:   datatypes.JSON(`[{"key":"platform","type":"select","label":"Platform","options":[{"label":"LinkedIn","value":"LinkedIn"},{"label":"X","value":"X"},{"label":"Instagram","value":"Instagram"}]}]`),
			IsActive:      true,
		},
	}
}

// Seed inserts default tiers, model configs and templates that do not exist yet.
func Seed(conn *gorm.DB) error {
	tiers := DefaultTiers()
	if errTiers := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&tiers).Error; errTiers != nil {
		return fmt.Errorf("db: seed tiers: %w", errTiers)
	}
	modelConfigs := DefaultModelConfigs()
	if errModels := conn.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "model_id"}},
		DoNothing: true,
	}).Create(&modelConfigs).Error; errModels != nil {
		return fmt.Errorf("db: seed model configs: %w", errModels)
	}
	templates := DefaultTemplates()
	if errTemplates := conn.Clauses(clause.OnConflict{DoNothing: true}).Create(&templates).Error; errTemplates != nil {
		return fmt.Errorf("db: seed templates: %w", errTemplates)
	}
	return nil
}
