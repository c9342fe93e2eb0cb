package core

import (
	"errors"
	"strings"
)

// BadgeID identifies a catalog badge.
type BadgeID string

// RequirementType selects how a badge requirement is checked.
type RequirementType string

const (
	RequirementPoints     RequirementType = "points"
	RequirementTrips      RequirementType = "trips"
	RequirementActivities RequirementType = "activities"
	RequirementStreak     RequirementType = "streak"
	RequirementCustom     RequirementType = "custom"
)

// Requirement is the unlock rule of a badge.
type Requirement struct {
	Type        RequirementType `json:"type"`
	Value       int64           `json:"value"`
	Description string          `json:"description"`
}

// Badge is an immutable catalog entry.
type Badge struct {
	ID          BadgeID     `json:"id"`
	Name        string      `json:"name"`
	Icon        string      `json:"icon"`
	Description string      `json:"description"`
	Requirement Requirement `json:"requirement"`
}

const (
	BadgeExplorer      BadgeID = "explorer"
	BadgeAdventurer    BadgeID = "adventurer"
	BadgeGlobetrotter  BadgeID = "globetrotter"
	BadgeRisingStar    BadgeID = "rising_star"
	BadgeTrailblazer   BadgeID = "trailblazer"
	BadgeLegend        BadgeID = "legend"
	BadgeActiveCamper  BadgeID = "active_camper"
	BadgeMarathoner    BadgeID = "marathoner"
	BadgeWeekStreak    BadgeID = "week_streak"
	BadgeMonthStreak   BadgeID = "month_streak"
	BadgePhotographer  BadgeID = "photographer"
	BadgeSocialite     BadgeID = "socialite"
	BadgeGoodSamaritan BadgeID = "good_samaritan"
	BadgeEcoWarrior    BadgeID = "eco_warrior"
	BadgeEarlyBird     BadgeID = "early_bird"
	BadgeNightOwl      BadgeID = "night_owl"
	BadgeSurvivor      BadgeID = "survivor"
	BadgeLightning     BadgeID = "lightning"
)

// catalog order is evaluation order; keep IDs stable, clients store them.
var catalog = []Badge{
	{ID: BadgeExplorer, Name: "Explorateur", Icon: "🧭", Description: "Terminer sa première aventure",
		Requirement: Requirement{Type: RequirementTrips, Value: 1, Description: "1 trip completed"}},
	{ID: BadgeAdventurer, Name: "Aventurier", Icon: "🎒", Description: "Terminer 5 aventures",
		Requirement: Requirement{Type: RequirementTrips, Value: 5, Description: "5 trips completed"}},
	{ID: BadgeGlobetrotter, Name: "Globe-trotteur", Icon: "🌍", Description: "Terminer 10 aventures",
		Requirement: Requirement{Type: RequirementTrips, Value: 10, Description: "10 trips completed"}},
	{ID: BadgeRisingStar, Name: "Étoile montante", Icon: "⭐", Description: "Atteindre 100 points",
		Requirement: Requirement{Type: RequirementPoints, Value: 100, Description: "100 points"}},
	{ID: BadgeTrailblazer, Name: "Pionnier", Icon: "🥾", Description: "Atteindre 1000 points",
		Requirement: Requirement{Type: RequirementPoints, Value: 1000, Description: "1000 points"}},
	{ID: BadgeLegend, Name: "Légende", Icon: "🏆", Description: "Atteindre 5000 points",
		Requirement: Requirement{Type: RequirementPoints, Value: 5000, Description: "5000 points"}},
	{ID: BadgeActiveCamper, Name: "Campeur actif", Icon: "🏕️", Description: "Terminer 10 activités",
		Requirement: Requirement{Type: RequirementActivities, Value: 10, Description: "10 activities"}},
	{ID: BadgeMarathoner, Name: "Marathonien", Icon: "🏃", Description: "Terminer 50 activités",
		Requirement: Requirement{Type: RequirementActivities, Value: 50, Description: "50 activities"}},
	{ID: BadgeWeekStreak, Name: "Semaine de feu", Icon: "🔥", Description: "7 jours d'activité consécutifs",
		Requirement: Requirement{Type: RequirementStreak, Value: 7, Description: "7-day streak"}},
	{ID: BadgeMonthStreak, Name: "Inarrêtable", Icon: "🌋", Description: "30 jours d'activité consécutifs",
		Requirement: Requirement{Type: RequirementStreak, Value: 30, Description: "30-day streak"}},
	{ID: BadgePhotographer, Name: "Photographe", Icon: "📸", Description: "Partager 20 photos",
		Requirement: Requirement{Type: RequirementCustom, Value: 20, Description: "20 photos shared"}},
	{ID: BadgeSocialite, Name: "Âme du groupe", Icon: "💬", Description: "50 interactions avec le groupe",
		Requirement: Requirement{Type: RequirementCustom, Value: 50, Description: "50 interactions"}},
	{ID: BadgeGoodSamaritan, Name: "Bon samaritain", Icon: "🤝", Description: "Aider 10 fois un autre campeur",
		Requirement: Requirement{Type: RequirementCustom, Value: 10, Description: "10 helps"}},
	{ID: BadgeEcoWarrior, Name: "Éco-guerrier", Icon: "🌱", Description: "10 gestes écologiques",
		Requirement: Requirement{Type: RequirementCustom, Value: 10, Description: "10 eco actions"}},
	{ID: BadgeEarlyBird, Name: "Lève-tôt", Icon: "🌅", Description: "5 activités au lever du soleil",
		Requirement: Requirement{Type: RequirementCustom, Value: 5, Description: "5 early activities"}},
	{ID: BadgeNightOwl, Name: "Oiseau de nuit", Icon: "🦉", Description: "5 activités nocturnes",
		Requirement: Requirement{Type: RequirementCustom, Value: 5, Description: "5 night activities"}},
	{ID: BadgeSurvivor, Name: "Survivant", Icon: "🪓", Description: "Réussir un défi de survie",
		Requirement: Requirement{Type: RequirementCustom, Value: 1, Description: "survival challenge"}},
	{ID: BadgeLightning, Name: "Éclair", Icon: "⚡", Description: "Défi parfait avec bonus de temps",
		Requirement: Requirement{Type: RequirementCustom, Value: 1, Description: "perfect timed challenge"}},
}

var catalogIndex = func() map[BadgeID]int {
	m := make(map[BadgeID]int, len(catalog))
	for i, b := range catalog {
		m[b.ID] = i
	}
	return m
}()

// Catalog returns a copy of the badge catalog in evaluation order.
func Catalog() []Badge {
	out := make([]Badge, len(catalog))
	copy(out, catalog)
	return out
}

// LookupBadge finds a catalog badge by id.
func LookupBadge(id BadgeID) (Badge, bool) {
	i, ok := catalogIndex[id]
	if !ok {
		return Badge{}, false
	}
	return catalog[i], true
}

// ValidateBadgeID ensures a non-empty, charset-safe id that exists in the catalog.
func ValidateBadgeID(b BadgeID) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return errors.New("empty badge id")
	}
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return errors.New("invalid badge id")
	}
	if _, ok := catalogIndex[BadgeID(s)]; !ok {
		return ErrUnknownBadge
	}
	return nil
}
