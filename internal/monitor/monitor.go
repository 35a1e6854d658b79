// Package monitor validates inbound authorization callbacks against a
// JSON schema before any classification runs. A payload that does not
// even carry the contract's required fields is rejected at the edge
// instead of being classified as Unknown deeper in.
package monitor

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// AuthorizationSchema is the contract for the authorization callback
// payload delivered by the checkout return flow.
const AuthorizationSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "KlarnaAuthorizationCallback",
	"type": "object",
	"properties": {
		"fraud_status": { "type": "string" },
		"order_id": { "type": "string" },
		"authorized_payment_method": {
			"type": "object",
			"properties": {
				"type": { "type": "string" }
			}
		}
	},
	"required": ["fraud_status", "order_id"]
}`

// ContractMonitor validates callback payloads against a JSON schema.
type ContractMonitor struct {
	schema *gojsonschema.Schema
}

// NewContractMonitor compiles the given schema document.
func NewContractMonitor(schemaJSON string) (*ContractMonitor, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("monitor: error compiling schema: %w", err)
	}
	return &ContractMonitor{schema: schema}, nil
}

// NewAuthorizationMonitor compiles the built-in authorization callback
// schema.
func NewAuthorizationMonitor() (*ContractMonitor, error) {
	return NewContractMonitor(AuthorizationSchema)
}

// Validate checks payload against the schema. It returns true when the
// payload conforms, or false plus the individual violation messages.
func (cm *ContractMonitor) Validate(payload []byte) (bool, []string, error) {
	result, err := cm.schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return false, nil, fmt.Errorf("monitor: error during validation: %w", err)
	}
	if result.Valid() {
		return true, nil, nil
	}
	var violations []string
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return false, violations, nil
}

// FormatErrors joins violation messages into a single user-facing line.
func FormatErrors(violations []string) string {
	if len(violations) == 0 {
		return ""
	}
	return "Validation errors: " + strings.Join(violations, "; ")
}
