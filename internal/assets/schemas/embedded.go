// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time so validation works regardless of the
// working directory or installation location.
package schemasassets

import _ "embed"

// HoldRulesSchemaURL is the schema identifier for hold-rule files.
const HoldRulesSchemaURL = "https://schemas.kbase.us/jobwatch/v1/hold-rules.schema.json"

// HoldRulesSchema is the embedded hold-rules JSON schema.
//
//go:embed hold-rules.schema.json
var HoldRulesSchema []byte
