// Copyright (C) 2026 Mollie Ward
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package enforcement embeds the guardrail policy definitions into the
// binary so the engine needs no filesystem access at startup.
package enforcement

import _ "embed"

// GuardrailPatterns is the raw YAML rule file compiled by the guardrail
// engine at startup.
//
//go:embed guardrail_patterns.yaml
var GuardrailPatterns []byte
