// Package schema publishes JSON Schemas for the bridge's request and result
// documents and validates documents against them.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/invopop/jsonschema"
	jsv "github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/wondertwin-ai/healthbridge/internal/bridge"
)

// ErrUnknownSchema is returned for a name not in Names.
var ErrUnknownSchema = errors.New("unknown schema")

var documents = map[string]any{
	"envelope":      &bridge.Envelope{},
	"read-request":  &bridge.ReadOptions{},
	"read-result":   &bridge.ReadResult{},
	"app-status":    &bridge.AppStatus{},
	"authorization": &AuthorizationRequest{},
}

// AuthorizationRequest is the body of an authorization call.
type AuthorizationRequest struct {
	Permissions []string `json:"permissions,omitempty"`
}

// Names lists the published schemas.
func Names() []string {
	names := make([]string, 0, len(documents))
	for n := range documents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Generate returns the indented JSON Schema for name.
func Generate(name string) ([]byte, error) {
	v, ok := documents[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownSchema)
	}
	reflector := jsonschema.Reflector{
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
	}
	s := reflector.Reflect(v)

	out, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return out, nil
}

// Validate checks doc against the schema for name.
func Validate(name string, doc []byte) error {
	raw, err := Generate(name)
	if err != nil {
		return err
	}
	compiled, err := jsv.CompileString(name+".json", string(raw))
	if err != nil {
		return fmt.Errorf("compiling %s schema: %w", name, err)
	}

	var v any
	if err := json.Unmarshal(doc, &v); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	if err := compiled.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
