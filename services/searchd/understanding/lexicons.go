// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package understanding turns an utterance into a ParsedQuery: intent
// classification (LLM primary, pattern fallback) plus layered entity
// extraction over regexes, lexicons, synonyms, and fuzzy matching.
package understanding

import (
	"github.com/mollie-ward/vehiclesearch/services/searchd/datatypes"
)

// =============================================================================
// Dictionaries
// =============================================================================

// canonicalMakes is the closed make lexicon. Fuzzy matching resolves
// misspellings against these canonical spellings.
var canonicalMakes = []string{
	"Audi", "BMW", "Citroen", "Fiat", "Ford", "Honda", "Hyundai",
	"Jaguar", "Kia", "Land Rover", "Lexus", "Mazda", "Mercedes-Benz",
	"Mini", "Nissan", "Peugeot", "Porsche", "Renault", "SEAT", "Skoda",
	"Tesla", "Toyota", "Vauxhall", "Volkswagen", "Volvo",
}

// knownModels are dictionary-matched model names. Matching is substring
// with word boundaries, so "320d" in "BMW 320d m sport" still hits.
var knownModels = []string{
	"1 Series", "3 Series", "5 Series", "320d", "330e",
	"A1", "A3", "A4", "A6", "Q5",
	"C-Class", "E-Class", "A-Class", "GLC",
	"Golf", "Polo", "Passat", "Tiguan",
	"Fiesta", "Focus", "Puma", "Kuga",
	"Corolla", "Yaris", "RAV4",
	"Civic", "CR-V", "Jazz",
	"Qashqai", "Juke", "Leaf",
	"Corsa", "Astra", "Mokka",
	"Sportage", "Ceed", "Niro",
	"Tucson", "i10", "i30",
	"Octavia", "Fabia", "Kodiaq",
	"XC40", "XC60", "XC90",
	"CX-5", "MX-5",
	"F-Pace", "XE",
	"Discovery", "Defender", "Evoque",
	"Model 3", "Model Y",
	"911", "Cayenne", "Macan",
	"Cooper", "Countryman",
}

var fuelTypes = []string{"Petrol", "Diesel", "Electric", "Hybrid", "Plug-in Hybrid"}

var transmissions = []string{"Manual", "Automatic"}

var bodyTypes = []string{
	"Hatchback", "Saloon", "Estate", "SUV", "Coupe", "Convertible", "MPV", "Pickup",
}

var colours = []string{
	"Black", "White", "Silver", "Grey", "Blue", "Red", "Green",
	"Yellow", "Orange", "Brown", "Purple",
}

var locations = []string{
	"London", "Manchester", "Birmingham", "Leeds", "Glasgow", "Edinburgh",
	"Bristol", "Liverpool", "Newcastle", "Sheffield", "Nottingham", "Cardiff",
}

var knownFeatures = []string{
	"sat nav", "navigation", "leather", "heated seats", "sunroof",
	"panoramic roof", "parking sensors", "rear camera", "cruise control",
	"bluetooth", "apple carplay", "android auto", "alloy wheels", "isofix",
	"sports seats",
}

// synonym maps a colloquial spelling to its canonical value plus the
// entity type the canonical value belongs to. Synonym hits pay a
// confidence penalty relative to a direct dictionary hit.
type synonym struct {
	canonical string
	entity    datatypes.EntityType
}

var synonyms = map[string]synonym{
	"beamer":         {"BMW", datatypes.EntityMake},
	"beemer":         {"BMW", datatypes.EntityMake},
	"bimmer":         {"BMW", datatypes.EntityMake},
	"merc":           {"Mercedes-Benz", datatypes.EntityMake},
	"vw":             {"Volkswagen", datatypes.EntityMake},
	"landy":          {"Land Rover", datatypes.EntityMake},
	"auto":           {"Automatic", datatypes.EntityTransmission},
	"ev":             {"Electric", datatypes.EntityFuelType},
	"plug-in":        {"Plug-in Hybrid", datatypes.EntityFuelType},
	"soft top":       {"Convertible", datatypes.EntityBodyType},
	"4x4":            {"SUV", datatypes.EntityBodyType},
	"people carrier": {"MPV", datatypes.EntityBodyType},
}

// vehicleLexemes signal that an utterance is on-topic. Used by the
// intent fallback to default to Search rather than OffTopic.
var vehicleLexemes = []string{
	"car", "cars", "vehicle", "vehicles", "van", "suv", "hatchback",
	"saloon", "estate", "coupe", "convertible", "mpv",
	"mileage", "miles", "mot", "petrol", "diesel", "electric", "hybrid",
	"automatic", "manual", "engine", "doors", "boot",
	"drive", "driving", "motor", "dealer", "test drive",
}
