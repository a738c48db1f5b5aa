package walletbridge

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// requirementSchema validates one entry of a 402 body's accepts array.
// Unknown fields are allowed; the schema pins only the fields the flow
// depends on.
const requirementSchema = `{
	"type": "object",
	"required": ["scheme", "network", "asset", "payTo", "maxAmountRequired"],
	"properties": {
		"scheme": {"type": "string", "minLength": 1},
		"network": {"type": "string", "minLength": 1},
		"asset": {"type": "string", "minLength": 1},
		"payTo": {"type": "string", "minLength": 1},
		"maxAmountRequired": {"type": "string", "pattern": "^[0-9]+$"},
		"maxTimeoutSeconds": {"type": "integer", "minimum": 0},
		"resource": {"type": "string"},
		"description": {"type": "string"},
		"mimeType": {"type": "string"}
	}
}`

var requirementSchemaLoader = gojsonschema.NewStringLoader(requirementSchema)

// ValidateRequirementDocument checks one raw accepts entry against the
// requirement schema.
func ValidateRequirementDocument(raw json.RawMessage) error {
	result, err := gojsonschema.Validate(requirementSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("invalid payment requirement: %s", errs[0].String())
		}
		return fmt.Errorf("invalid payment requirement")
	}
	return nil
}

// ParsePaymentRequired parses and validates a 402 response body of the form
// {x402Version, accepts: [...]}. Each accepts entry is validated against the
// requirement schema before unmarshaling; the first invalid entry fails the
// whole parse with its index.
func ParsePaymentRequired(body []byte) (PaymentRequired, error) {
	var envelope struct {
		X402Version int               `json:"x402Version"`
		Error       string            `json:"error"`
		Accepts     []json.RawMessage `json:"accepts"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return PaymentRequired{}, fmt.Errorf("malformed 402 body: %w", err)
	}

	required := PaymentRequired{
		X402Version: envelope.X402Version,
		Error:       envelope.Error,
		Accepts:     make([]PaymentRequirement, 0, len(envelope.Accepts)),
	}
	if required.X402Version == 0 {
		required.X402Version = ProtocolVersion
	}

	for i, raw := range envelope.Accepts {
		if err := ValidateRequirementDocument(raw); err != nil {
			return PaymentRequired{}, &ValidationError{Index: i, Cause: err}
		}
		var req PaymentRequirement
		if err := json.Unmarshal(raw, &req); err != nil {
			return PaymentRequired{}, &ValidationError{Index: i, Cause: err}
		}
		required.Accepts = append(required.Accepts, req)
	}

	return required, nil
}
