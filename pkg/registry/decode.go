package registry

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// decode turns one raw definition map (from a YAML document or a JSONB
// column) into a typed definition struct. Duration strings like "5s" and
// parameter type names are handled by decode hooks; unknown keys are
// rejected so typos surface at load time instead of silently defaulting.
func decode(raw map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      out,
		ErrorUnused: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.TextUnmarshallerHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func decodeDatabase(name string, raw map[string]any) (DatabaseDefinition, error) {
	var def DatabaseDefinition
	if err := decode(raw, &def); err != nil {
		return def, fmt.Errorf("database %q: %w", name, err)
	}
	def.Name = name
	return def, nil
}

func decodeQuery(name string, raw map[string]any) (QueryDefinition, error) {
	var def QueryDefinition
	if err := decode(raw, &def); err != nil {
		return def, fmt.Errorf("query %q: %w", name, err)
	}
	def.Name = name
	return def, nil
}

func decodeEndpoint(name string, raw map[string]any) (EndpointDefinition, error) {
	var def EndpointDefinition
	if err := decode(raw, &def); err != nil {
		return def, fmt.Errorf("endpoint %q: %w", name, err)
	}
	def.Name = name
	return def, nil
}
