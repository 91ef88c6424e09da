package config

import (
	"fmt"
	"sort"

	"github.com/spf13/viper"

	"github.com/AleksandrNi/token-agent/internal/model"
)

// decode walks viper's generic settings/sources/sinks tree into the typed
// Config. Value is a tagged union with no single natural YAML shape, so it
// is decoded by hand rather than through mapstructure tags.
func decode(v *viper.Viper) (model.Config, error) {
	settings, err := decodeSettings(v)
	if err != nil {
		return model.Config{}, err
	}

	sources, err := decodeSources(v.Get("sources"))
	if err != nil {
		return model.Config{}, err
	}

	sinks, err := decodeSinks(v.Get("sinks"))
	if err != nil {
		return model.Config{}, err
	}

	return model.Config{Settings: settings, Sources: sources, Sinks: sinks}, nil
}

func decodeSettings(v *viper.Viper) (model.Settings, error) {
	return model.Settings{
		SafetyMarginSeconds: v.GetInt64("settings.safety_margin_seconds"),
		Retry: model.RetrySettings{
			Attempts:    v.GetInt("settings.retry.attempts"),
			BaseDelayMS: v.GetInt64("settings.retry.base_delay_ms"),
			MaxDelayMS:  v.GetInt64("settings.retry.max_delay_ms"),
		},
		Metrics: model.MetricsSettings{
			Path:      v.GetString("settings.metrics.path"),
			IsEnabled: v.GetBool("settings.metrics.is_enabled"),
		},
		Server: model.ServerSettings{
			Host: v.GetString("settings.server.host"),
			Port: v.GetInt("settings.server.port"),
		},
		Logging: model.LoggingSettings{
			Level:  v.GetString("settings.logging.level"),
			Format: v.GetString("settings.logging.format"),
		},
	}, nil
}

func decodeSources(raw interface{}) (map[string]model.SourceSpec, error) {
	m, ok := asMap(raw)
	if !ok {
		return map[string]model.SourceSpec{}, nil
	}

	out := make(map[string]model.SourceSpec, len(m))
	for id, v := range m {
		spec, err := decodeSource(id, v)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", id, err)
		}
		out[id] = spec
	}
	return out, nil
}

func decodeSource(id string, raw interface{}) (model.SourceSpec, error) {
	m, ok := asMap(raw)
	if !ok {
		return model.SourceSpec{}, fmt.Errorf("expected a mapping")
	}

	spec := model.SourceSpec{
		ID:     id,
		Kind:   model.SourceKind(asString(m["kind"])),
		Inputs: asStringSlice(m["inputs"]),
	}

	if margin, ok := m["safety_margin"]; ok {
		v := asInt64(margin)
		spec.SafetyMargin = &v
	}

	reqMap, _ := asMap(m["request"])
	headers, err := decodeValueMap(reqMap["headers"])
	if err != nil {
		return model.SourceSpec{}, fmt.Errorf("request.headers: %w", err)
	}
	body, err := decodeValueMap(reqMap["body"])
	if err != nil {
		return model.SourceSpec{}, fmt.Errorf("request.body: %w", err)
	}
	form, err := decodeValueMap(reqMap["form"])
	if err != nil {
		return model.SourceSpec{}, fmt.Errorf("request.form: %w", err)
	}
	spec.Request = model.RequestSpec{
		URL:     asString(reqMap["url"]),
		Method:  model.HTTPMethod(asString(reqMap["method"])),
		Headers: headers,
		Body:    body,
		Form:    form,
	}

	parseMap, _ := asMap(m["parse"])
	tokens, err := decodeTokenFields(parseMap["tokens"])
	if err != nil {
		return model.SourceSpec{}, fmt.Errorf("parse.tokens: %w", err)
	}
	spec.Parse = model.ParseSpec{Tokens: tokens}

	return spec, nil
}

func decodeTokenFields(raw interface{}) ([]model.TokenFieldSpec, error) {
	items := asSlice(raw)
	out := make([]model.TokenFieldSpec, 0, len(items))

	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			return nil, fmt.Errorf("expected a mapping")
		}

		field := model.TokenFieldSpec{
			ID:        asString(m["id"]),
			Parent:    model.ParentKind(asString(m["parent"])),
			Pointer:   asString(m["pointer"]),
			TokenType: model.TokenType(asString(m["token_type"])),
		}

		if expRaw, ok := m["expiration"]; ok {
			expMap, _ := asMap(expRaw)
			field.Expiration = &model.ExpirationSpec{
				Source:           model.ExpirationSource(asString(expMap["source"])),
				Format:           model.ExpirationFormat(asString(expMap["format"])),
				Pointer:          asString(expMap["pointer"]),
				ManualTTLSeconds: asInt64(expMap["manual_ttl_seconds"]),
			}
		}

		out = append(out, field)
	}
	return out, nil
}

func decodeValueMap(raw interface{}) (map[string]model.Value, error) {
	m, ok := asMap(raw)
	if !ok {
		return nil, nil
	}

	out := make(map[string]model.Value, len(m))
	for key, v := range m {
		val, err := decodeValue(v)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", key, err)
		}
		out[key] = val
	}
	return out, nil
}

// decodeValue parses one Value tagged union. A bare scalar is shorthand
// for Literal; otherwise exactly one of literal/from_env/from_file/ref/
// template is expected.
func decodeValue(raw interface{}) (model.Value, error) {
	if s, ok := raw.(string); ok {
		return model.Value{Kind: model.ValueLiteral, Literal: s}, nil
	}

	m, ok := asMap(raw)
	if !ok {
		return model.Value{}, fmt.Errorf("expected a string or a mapping")
	}

	switch {
	case has(m, "literal"):
		return model.Value{Kind: model.ValueLiteral, Literal: asString(m["literal"])}, nil

	case has(m, "from_env"):
		return model.Value{Kind: model.ValueFromEnv, FromEnv: asString(m["from_env"])}, nil

	case has(m, "from_file"):
		return model.Value{Kind: model.ValueFromFile, FromFile: asString(m["from_file"])}, nil

	case has(m, "ref"):
		refMap, _ := asMap(m["ref"])
		return model.Value{
			Kind:      model.ValueRef,
			RefSource: asString(refMap["source"]),
			RefToken:  asString(refMap["token"]),
			RefPrefix: asString(refMap["prefix"]),
		}, nil

	case has(m, "template"):
		tplMap, _ := asMap(m["template"])
		return model.Value{
			Kind:             model.ValueTemplate,
			Template:         asString(tplMap["value"]),
			TemplateRequired: asBool(tplMap["required"]),
		}, nil

	default:
		return model.Value{}, fmt.Errorf("expected one of literal/from_env/from_file/ref/template")
	}
}

func decodeSinks(raw interface{}) ([]model.SinkSpec, error) {
	items := asSlice(raw)
	out := make([]model.SinkSpec, 0, len(items))

	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			return nil, fmt.Errorf("expected a mapping")
		}

		sink := model.SinkSpec{
			ID:       asString(m["id"]),
			Kind:     model.SinkKind(asString(m["kind"])),
			SourceID: asString(m["source_id"]),
			TokenID:  asString(m["token_id"]),
			Path:     asString(m["path"]),
		}

		if respRaw, ok := m["response"]; ok {
			respMap, _ := asMap(respRaw)
			headers, err := decodeResponseFieldMap(respMap["headers"])
			if err != nil {
				return nil, fmt.Errorf("sink %q response.headers: %w", sink.ID, err)
			}
			body, err := decodeResponseFieldMap(respMap["body"])
			if err != nil {
				return nil, fmt.Errorf("sink %q response.body: %w", sink.ID, err)
			}
			sink.Response = &model.HTTPResponseSpec{Headers: headers, Body: body}
		}

		out = append(out, sink)
	}

	// Sort by ID for deterministic route registration order.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func decodeResponseFieldMap(raw interface{}) (map[string]model.ResponseField, error) {
	m, ok := asMap(raw)
	if !ok {
		return nil, nil
	}

	out := make(map[string]model.ResponseField, len(m))
	for key, v := range m {
		fieldMap, ok := asMap(v)
		if !ok {
			return nil, fmt.Errorf("%q: expected a mapping", key)
		}

		switch {
		case has(fieldMap, "token"):
			out[key] = model.ResponseField{Kind: model.ResponseFieldToken, TokenID: asString(fieldMap["token"])}

		case has(fieldMap, "expiration"):
			expMap, _ := asMap(fieldMap["expiration"])
			out[key] = model.ResponseField{
				Kind:    model.ResponseFieldExpiration,
				TokenID: asString(expMap["token_id"]),
				Format:  model.ResponseFormat(asString(expMap["format"])),
			}

		case has(fieldMap, "literal"):
			out[key] = model.ResponseField{Kind: model.ResponseFieldLiteral, Literal: asString(fieldMap["literal"])}

		default:
			return nil, fmt.Errorf("%q: expected one of token/expiration/literal", key)
		}
	}
	return out, nil
}
