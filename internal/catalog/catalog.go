// Package catalog holds the built-in coffee personality scenarios.
package catalog

import "tribe-quiz-service/internal/domain"

// DefaultVersion identifies the built-in scenario set.
const DefaultVersion = "2024-11-v1"

// Default returns the five built-in scenarios. Each call returns a fresh copy.
func Default() domain.ScenarioSet {
	return domain.ScenarioSet{
		Version: DefaultVersion,
		Scenarios: []domain.Scenario{
			{
				ID:       1,
				Category: "morning ritual",
				Prompt:   "Your alarm goes off. What does the first coffee of the day look like?",
				Options: []domain.Option{
					{Key: "a", Label: "A double shot of something dark, no questions asked", Tribe: domain.TribeOwl},
					{Key: "b", Label: "Whatever bean I haven't tried yet, brewed by hand", Tribe: domain.TribeFox},
					{Key: "c", Label: "A big warm latte in my favourite mug", Tribe: domain.TribeBear},
					{Key: "d", Label: "An iced vanilla something, grabbed on the run", Tribe: domain.TribeHummingbird},
				},
			},
			{
				ID:       2,
				Category: "flavor",
				Prompt:   "Which tasting note makes you lean in?",
				Options: []domain.Option{
					{Key: "a", Label: "Dark chocolate and smoke", Tribe: domain.TribeOwl},
					{Key: "b", Label: "Bergamot and stone fruit", Tribe: domain.TribeFox},
					{Key: "c", Label: "Toasted nuts and caramel", Tribe: domain.TribeBear},
					{Key: "d", Label: "Berries and honey", Tribe: domain.TribeHummingbird},
				},
			},
			{
				ID:       3,
				Category: "cafe vibe",
				Prompt:   "Pick the café you'd walk into.",
				Options: []domain.Option{
					{Key: "a", Label: "Open late, low light, vinyl playing", Tribe: domain.TribeOwl},
					{Key: "b", Label: "A tiny roaster with a rotating menu", Tribe: domain.TribeFox},
					{Key: "c", Label: "Armchairs, pastries, rain on the windows", Tribe: domain.TribeBear},
					{Key: "d", Label: "Bright, loud, and great for people-watching", Tribe: domain.TribeHummingbird},
				},
			},
			{
				ID:       4,
				Category: "brew method",
				Prompt:   "Someone hands you a brewing kit. You reach for...",
				Options: []domain.Option{
					{Key: "a", Label: "A moka pot", Tribe: domain.TribeOwl},
					{Key: "b", Label: "A gooseneck kettle and a V60", Tribe: domain.TribeFox},
					{Key: "c", Label: "A French press for the whole table", Tribe: domain.TribeBear},
					{Key: "d", Label: "A cold brew jar and a shaker", Tribe: domain.TribeHummingbird},
				},
			},
			{
				ID:       5,
				Category: "adventure",
				Prompt:   "You're travelling. What coffee story do you come home with?",
				Options: []domain.Option{
					{Key: "a", Label: "The 2am espresso bar nobody else found", Tribe: domain.TribeOwl},
					{Key: "b", Label: "A farm visit and a bag of micro-lot beans", Tribe: domain.TribeFox},
					{Key: "c", Label: "The corner café I went to every single morning", Tribe: domain.TribeBear},
					{Key: "d", Label: "Ten different drinks in ten different cafés", Tribe: domain.TribeHummingbird},
				},
			},
		},
	}
}
