// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "strings"

// =============================================================================
// Index Field Names
// =============================================================================

// Canonical field names shared by the mapper, composer, executors, and
// ranker. These match the index document schema exactly; the filter
// translator rejects anything outside FilterableFields.
const (
	FieldMake             = "make"
	FieldModel            = "model"
	FieldDerivative       = "derivative"
	FieldPrice            = "price"
	FieldMileage          = "mileage"
	FieldBodyType         = "bodyType"
	FieldFuelType         = "fuelType"
	FieldTransmission     = "transmissionType"
	FieldColour           = "colour"
	FieldEngineSize       = "engineSize"
	FieldNumberOfDoors    = "numberOfDoors"
	FieldRegistrationDate = "registrationDate"
	FieldMOTExpiryDate    = "motExpiryDate"
	FieldLastServiceDate  = "lastServiceDate"
	FieldSaleLocation     = "saleLocation"
	FieldChannel          = "channel"
	FieldFeatures         = "features"
	FieldDeclarations     = "declarations"
	FieldServiceHistory   = "serviceHistoryPresent"
	FieldNumberOfServices = "numberOfServices"
	FieldPreviousOwners   = "previousOwners"
	FieldDescription      = "description"
)

// filterableFields is the closed whitelist of fields the translator will
// emit into a filter expression.
var filterableFields = map[string]bool{
	FieldMake:             true,
	FieldModel:            true,
	FieldDerivative:       true,
	FieldPrice:            true,
	FieldMileage:          true,
	FieldBodyType:         true,
	FieldFuelType:         true,
	FieldTransmission:     true,
	FieldColour:           true,
	FieldEngineSize:       true,
	FieldNumberOfDoors:    true,
	FieldRegistrationDate: true,
	FieldMOTExpiryDate:    true,
	FieldSaleLocation:     true,
	FieldChannel:          true,
	FieldFeatures:         true,
	FieldServiceHistory:   true,
}

// IsFilterableField reports whether the field may appear in a filter
// expression sent to the index.
func IsFilterableField(name string) bool {
	return filterableFields[name]
}

// CollectionFields are string-set fields that need the lambda/any filter
// primitive instead of a plain comparison.
var collectionFields = map[string]bool{
	FieldFeatures:     true,
	FieldDeclarations: true,
}

// IsCollectionField reports whether the field holds a set of strings.
func IsCollectionField(name string) bool {
	return collectionFields[name]
}

// foldContains reports whether s contains substr, case-insensitively.
func foldContains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
