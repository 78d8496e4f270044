// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/weaviate/weaviate/entities/models"
)

// =============================================================================
// Generic GraphQL Response Parser
// =============================================================================

// ParseGraphQLResponse parses a Weaviate GraphQL response into the target type.
//
// # Description
//
// Encapsulates the marshal/unmarshal pattern required to convert Weaviate's
// dynamic response (map[string]models.JSONObject) into a strongly-typed Go
// struct. The target type T must have json tags matching the response shape.
//
// # Inputs
//
//   - resp: The GraphQL response from the Weaviate client's Do() method.
//
// # Outputs
//
//   - *T: Pointer to the parsed struct.
//   - error: Non-nil if the response is nil, carries GraphQL errors, or
//     fails to unmarshal.
//
// # Limitations
//
//   - Type mismatches produce zero values, not errors.
func ParseGraphQLResponse[T any](resp *models.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("GraphQL error: %s", resp.Errors[0].Message)
	}

	respBytes, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}

	var result T
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal into target type: %w", err)
	}

	return &result, nil
}

// =============================================================================
// Vehicle Class Responses
// =============================================================================

// VehicleQueryResponse is the typed shape of a Vehicle class query.
type VehicleQueryResponse struct {
	Get struct {
		Vehicle []VehicleHit `json:"Vehicle"`
	} `json:"Get"`
}

// VehicleHit is a single Vehicle document plus the additional metadata the
// query asked for. Certainty is present on vector queries, Score on hybrid
// queries (Weaviate returns it as a string).
type VehicleHit struct {
	VehicleID        string   `json:"vehicleId"`
	Make             string   `json:"make"`
	Model            string   `json:"model"`
	Derivative       string   `json:"derivative"`
	Price            float64  `json:"price"`
	Mileage          int      `json:"mileage"`
	BodyType         string   `json:"bodyType"`
	FuelType         string   `json:"fuelType"`
	TransmissionType string   `json:"transmissionType"`
	Colour           string   `json:"colour"`
	EngineSize       float64  `json:"engineSize"`
	NumberOfDoors    *int     `json:"numberOfDoors"`
	RegistrationDate string   `json:"registrationDate"`
	MOTExpiryDate    string   `json:"motExpiryDate"`
	LastServiceDate  string   `json:"lastServiceDate"`
	SaleLocation     string   `json:"saleLocation"`
	Channel          string   `json:"channel"`
	Features         []string `json:"features"`
	Declarations     []string `json:"declarations"`
	ServiceHistory   bool     `json:"serviceHistoryPresent"`
	NumberOfServices *int     `json:"numberOfServices"`
	PreviousOwners   *int     `json:"previousOwners"`
	Description      string   `json:"description"`
	Additional       struct {
		ID        string   `json:"id"`
		Certainty *float32 `json:"certainty"`
		Distance  *float32 `json:"distance"`
		Score     *string  `json:"score"`
	} `json:"_additional"`
}

// ToVehicle converts an index hit into the core Vehicle record.
func (h VehicleHit) ToVehicle() Vehicle {
	v := Vehicle{
		ID:                    h.VehicleID,
		Make:                  h.Make,
		Model:                 h.Model,
		Derivative:            h.Derivative,
		Price:                 h.Price,
		Mileage:               h.Mileage,
		BodyType:              h.BodyType,
		FuelType:              h.FuelType,
		TransmissionType:      h.TransmissionType,
		Colour:                h.Colour,
		EngineSize:            h.EngineSize,
		SaleLocation:          h.SaleLocation,
		Channel:               h.Channel,
		Features:              h.Features,
		Declarations:          h.Declarations,
		ServiceHistoryPresent: h.ServiceHistory,
		Description:           h.Description,
	}
	if h.NumberOfDoors != nil {
		v.NumberOfDoors = *h.NumberOfDoors
	}
	if h.NumberOfServices != nil {
		v.NumberOfServices = *h.NumberOfServices
	}
	if h.PreviousOwners != nil {
		v.PreviousOwners = *h.PreviousOwners
	}
	v.RegistrationDate = parseIndexDate(h.RegistrationDate)
	v.MOTExpiryDate = parseIndexDate(h.MOTExpiryDate)
	v.LastServiceDate = parseIndexDate(h.LastServiceDate)
	return v
}

// SemanticScore returns the vector similarity for the hit. Certainty is
// preferred (always [0, 1]); hybrid string scores are parsed as a fallback.
func (h VehicleHit) SemanticScore() float64 {
	if h.Additional.Certainty != nil {
		return float64(*h.Additional.Certainty)
	}
	if h.Additional.Score != nil {
		if s, err := strconv.ParseFloat(*h.Additional.Score, 64); err == nil {
			return s
		}
	}
	return 0
}

// parseIndexDate parses the RFC3339 date strings Weaviate stores.
// Returns nil for empty or malformed values rather than failing the hit.
func parseIndexDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

// =============================================================================
// Vehicle Document Properties
// =============================================================================

// VehicleProperties is the property payload for creating a Vehicle
// document in the index. Used by ingestion tooling and tests.
type VehicleProperties struct {
	VehicleID        string   `json:"vehicleId"`
	Make             string   `json:"make"`
	Model            string   `json:"model"`
	Derivative       string   `json:"derivative"`
	Price            float64  `json:"price"`
	Mileage          int      `json:"mileage"`
	BodyType         string   `json:"bodyType"`
	FuelType         string   `json:"fuelType"`
	TransmissionType string   `json:"transmissionType"`
	Colour           string   `json:"colour"`
	EngineSize       float64  `json:"engineSize"`
	RegistrationDate string   `json:"registrationDate"`
	Features         []string `json:"features"`
	Description      string   `json:"description"`
}

// ToMap converts the properties to the map format the Weaviate client's
// WithProperties() expects.
func (p *VehicleProperties) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"vehicleId":        p.VehicleID,
		"make":             p.Make,
		"model":            p.Model,
		"derivative":       p.Derivative,
		"price":            p.Price,
		"mileage":          p.Mileage,
		"bodyType":         p.BodyType,
		"fuelType":         p.FuelType,
		"transmissionType": p.TransmissionType,
		"colour":           p.Colour,
		"engineSize":       p.EngineSize,
		"registrationDate": p.RegistrationDate,
		"features":         p.Features,
		"description":      p.Description,
	}
}
