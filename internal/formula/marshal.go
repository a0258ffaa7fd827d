package formula

import (
	"encoding/json"
	"fmt"
)

// itemEnvelope is the tagged JSON form of an Item.
type itemEnvelope struct {
	Type ItemKind        `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalJSON encodes the list as tagged envelopes so the variant survives
// a round trip.
func (items Items) MarshalJSON() ([]byte, error) {
	envs := make([]itemEnvelope, 0, len(items))
	for i, it := range items {
		data, err := json.Marshal(it)
		if err != nil {
			return nil, fmt.Errorf("items[%d]: %w", i, err)
		}
		envs = append(envs, itemEnvelope{Type: it.Kind(), Data: data})
	}
	return json.Marshal(envs)
}

// UnmarshalJSON decodes tagged envelopes produced by MarshalJSON.
//
// Decoded lines carry their own copy of the ingredient; callers that need
// shared catalog references relink them (see engine.Restore).
func (items *Items) UnmarshalJSON(data []byte) error {
	var envs []itemEnvelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return err
	}
	out := make(Items, 0, len(envs))
	for i, env := range envs {
		switch env.Type {
		case KindIngredient:
			var f FormulaIngredient
			if err := json.Unmarshal(env.Data, &f); err != nil {
				return fmt.Errorf("items[%d]: %w", i, err)
			}
			out = append(out, f)
		case KindGroup:
			var g FormulaGroup
			if err := json.Unmarshal(env.Data, &g); err != nil {
				return fmt.Errorf("items[%d]: %w", i, err)
			}
			out = append(out, g)
		default:
			return fmt.Errorf("items[%d]: unknown item type %q", i, env.Type)
		}
	}
	*items = out
	return nil
}
