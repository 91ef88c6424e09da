package config

import (
	"fmt"
	"strings"

	"github.com/AleksandrNi/token-agent/internal/logging"
	"github.com/AleksandrNi/token-agent/internal/model"
	"github.com/AleksandrNi/token-agent/internal/valueref"
	"github.com/AleksandrNi/token-agent/pkg/metrics"
)

const maxSafetyMarginSeconds = 365 * 24 * 60 * 60 // one year

// Validate runs every startup check against cfg and accumulates every
// failure rather than stopping at the first one, per the config
// validator's contract. A nil return means the config is safe to build
// runtime state from. collector may be nil (no metrics recorded); when
// set, every accumulated message increments the config validation error
// counter under the field it failed on.
func Validate(cfg model.Config, collector *metrics.Collector) error {
	var errs []string

	errs = append(errs, validateSettings(cfg.Settings)...)
	errs = append(errs, validateSources(cfg.Sources)...)
	errs = append(errs, validateSinks(cfg.Sinks, cfg.Sources)...)

	if collector != nil {
		for _, msg := range errs {
			collector.RecordConfigValidationError(validationField(msg))
		}
	}

	if len(errs) > 0 {
		return &model.ConfigInvalidError{Messages: errs}
	}
	return nil
}

// validationField extracts the leading component a validation message
// failed on (e.g. "source \"a\"" from "source \"a\": ..." or
// "settings.retry.attempts" from "settings.retry.attempts must be > 0")
// for the config_validation_errors_total metric's field label.
func validationField(msg string) string {
	if idx := strings.Index(msg, ":"); idx != -1 {
		return msg[:idx]
	}
	if idx := strings.Index(msg, " "); idx != -1 {
		return msg[:idx]
	}
	return msg
}

func validateSettings(s model.Settings) []string {
	var errs []string

	if s.Retry.Attempts <= 0 {
		errs = append(errs, "settings.retry.attempts must be > 0")
	}
	if s.Retry.MaxDelayMS < s.Retry.BaseDelayMS {
		errs = append(errs, "settings.retry.max_delay_ms must be >= base_delay_ms")
	}
	if !logging.IsValidLevel(s.Logging.Level) {
		errs = append(errs, fmt.Sprintf("settings.logging.level %q is not one of trace/debug/info/warn/error", s.Logging.Level))
	}
	if s.SafetyMarginSeconds < 0 || s.SafetyMarginSeconds > maxSafetyMarginSeconds {
		errs = append(errs, "settings.safety_margin_seconds must be within one year")
	}

	return errs
}

func validateSources(sources map[string]model.SourceSpec) []string {
	var errs []string

	if len(sources) == 0 {
		errs = append(errs, "sources must not be empty")
		return errs
	}

	for id, spec := range sources {
		errs = append(errs, validateSource(id, spec, sources)...)
	}
	return errs
}

func validateSource(id string, spec model.SourceSpec, all map[string]model.SourceSpec) []string {
	var errs []string
	prefix := fmt.Sprintf("source %q", id)

	switch spec.Kind {
	case model.SourceHTTP, model.SourceMetadata, model.SourceOAuth2:
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown kind %q", prefix, spec.Kind))
	}

	if spec.Request.URL == "" {
		errs = append(errs, fmt.Sprintf("%s: request.url must not be empty", prefix))
	}

	switch spec.Request.Method {
	case model.MethodGET, model.MethodPOST:
	default:
		errs = append(errs, fmt.Sprintf("%s: request.method must be GET or POST", prefix))
	}

	for _, dep := range spec.Inputs {
		if dep == id {
			errs = append(errs, fmt.Sprintf("%s: inputs must not reference itself", prefix))
			continue
		}
		if _, ok := all[dep]; !ok {
			errs = append(errs, fmt.Sprintf("%s: inputs references unknown source %q", prefix, dep))
		}
	}

	inputSet := make(map[string]bool, len(spec.Inputs))
	for _, dep := range spec.Inputs {
		inputSet[dep] = true
	}
	for _, v := range allValues(spec.Request) {
		errs = append(errs, validateValueRefs(prefix, v, id, inputSet, all)...)
	}

	seenTokenIDs := make(map[string]bool, len(spec.Parse.Tokens))
	for _, field := range spec.Parse.Tokens {
		errs = append(errs, validateTokenField(prefix, field, seenTokenIDs)...)
	}

	return errs
}

// validateValueRefs checks that a Ref names a declared-input source and an
// existing token on it, and that every {{source.token}} placeholder inside
// a Template names an existing source and an existing token on it — the
// same two lookups Resolve performs at fetch time, done here so a dangling
// reference fails config loading instead of surfacing as a retried
// ref-missing fetch failure.
func validateValueRefs(sourcePrefix string, v model.Value, ownID string, inputSet map[string]bool, all map[string]model.SourceSpec) []string {
	var errs []string

	switch v.Kind {
	case model.ValueRef:
		if !inputSet[v.RefSource] {
			errs = append(errs, fmt.Sprintf("%s: ref to source %q is not declared in inputs", sourcePrefix, v.RefSource))
			return errs
		}
		refSpec, ok := all[v.RefSource]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: ref references unknown source %q", sourcePrefix, v.RefSource))
			return errs
		}
		if !tokenExists(refSpec, v.RefToken) {
			errs = append(errs, fmt.Sprintf("%s: ref references unknown token %q on source %q", sourcePrefix, v.RefToken, v.RefSource))
		}

	case model.ValueTemplate:
		for _, match := range valueref.TemplatePlaceholder.FindAllStringSubmatch(v.Template, -1) {
			placeholderSource, placeholderToken := match[1], match[2]
			refSpec, ok := all[placeholderSource]
			if !ok {
				errs = append(errs, fmt.Sprintf("%s: template placeholder references unknown source %q", sourcePrefix, placeholderSource))
				continue
			}
			if !tokenExists(refSpec, placeholderToken) {
				errs = append(errs, fmt.Sprintf("%s: template placeholder references unknown token %q on source %q", sourcePrefix, placeholderToken, placeholderSource))
			}
		}
	}

	return errs
}

func allValues(req model.RequestSpec) []model.Value {
	out := make([]model.Value, 0, len(req.Headers)+len(req.Body)+len(req.Form))
	for _, v := range req.Headers {
		out = append(out, v)
	}
	for _, v := range req.Body {
		out = append(out, v)
	}
	for _, v := range req.Form {
		out = append(out, v)
	}
	return out
}

func validateTokenField(sourcePrefix string, field model.TokenFieldSpec, seen map[string]bool) []string {
	var errs []string
	prefix := fmt.Sprintf("%s token %q", sourcePrefix, field.ID)

	if field.ID == "" {
		errs = append(errs, fmt.Sprintf("%s: token id must not be empty", sourcePrefix))
	} else if seen[field.ID] {
		errs = append(errs, fmt.Sprintf("%s: duplicate token id", prefix))
	} else {
		seen[field.ID] = true
	}

	switch field.Parent {
	case model.ParentBody, model.ParentHeader:
	default:
		errs = append(errs, fmt.Sprintf("%s: parent must be body or header", prefix))
	}

	switch field.TokenType {
	case model.TokenJWT:
		if field.Expiration != nil {
			errs = append(errs, fmt.Sprintf("%s: jwt tokens must not declare an expiration block", prefix))
		}
	case model.TokenPlainText:
		if field.Expiration == nil {
			errs = append(errs, fmt.Sprintf("%s: plain_text tokens must declare an expiration block", prefix))
			break
		}
		errs = append(errs, validateExpiration(prefix, *field.Expiration)...)
	default:
		errs = append(errs, fmt.Sprintf("%s: token_type must be jwt or plain_text", prefix))
	}

	return errs
}

func validateExpiration(prefix string, spec model.ExpirationSpec) []string {
	var errs []string

	switch spec.Source {
	case model.ExpirationJSONBodyField, model.ExpirationHeaderField:
		if spec.Pointer == "" {
			errs = append(errs, fmt.Sprintf("%s: expiration.pointer is required for field-sourced expiry", prefix))
		}
	case model.ExpirationManual:
		if spec.ManualTTLSeconds <= 0 {
			errs = append(errs, fmt.Sprintf("%s: expiration.manual_ttl_seconds must be > 0", prefix))
		}
	case model.ExpirationSelf:
		errs = append(errs, fmt.Sprintf("%s: expiration.source=self is only valid for jwt tokens", prefix))
	default:
		errs = append(errs, fmt.Sprintf("%s: expiration.source is invalid", prefix))
	}

	switch spec.Format {
	case model.ExpirationFormatSeconds, model.ExpirationFormatUnix:
	default:
		errs = append(errs, fmt.Sprintf("%s: expiration.format must be seconds or unix", prefix))
	}

	return errs
}

func validateSinks(sinks []model.SinkSpec, sources map[string]model.SourceSpec) []string {
	var errs []string
	httpPaths := make(map[string]bool, len(sinks))

	for _, sink := range sinks {
		prefix := fmt.Sprintf("sink %q", sink.ID)

		spec, ok := sources[sink.SourceID]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: source %q does not exist", prefix, sink.SourceID))
		} else if !tokenExists(spec, sink.TokenID) {
			errs = append(errs, fmt.Sprintf("%s: token %q does not exist on source %q", prefix, sink.TokenID, sink.SourceID))
		}

		switch sink.Kind {
		case model.SinkFile, model.SinkUDS:
			if !isAbsolutePath(sink.Path) {
				errs = append(errs, fmt.Sprintf("%s: path must be absolute", prefix))
			}
		case model.SinkHTTP:
			if len(sink.Path) == 0 || sink.Path[0] != '/' {
				errs = append(errs, fmt.Sprintf("%s: http sink path must start with /", prefix))
			} else if httpPaths[sink.Path] {
				errs = append(errs, fmt.Sprintf("%s: http path %q is not globally unique", prefix, sink.Path))
			} else {
				httpPaths[sink.Path] = true
			}
		default:
			errs = append(errs, fmt.Sprintf("%s: unknown kind %q", prefix, sink.Kind))
		}
	}

	return errs
}

func tokenExists(spec model.SourceSpec, tokenID string) bool {
	for _, f := range spec.Parse.Tokens {
		if f.ID == tokenID {
			return true
		}
	}
	return false
}

func isAbsolutePath(p string) bool {
	return len(p) > 0 && p[0] == '/'
}
