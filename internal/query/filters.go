package query

import (
	"strings"

	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
)

// ContentFilter is a default predicate injected from preferences unless the
// caller sets its parameter explicitly.
type ContentFilter struct {
	Param string
	Types []domain.EntityType
}

func (cf ContentFilter) appliesTo(t domain.EntityType) bool {
	for _, candidate := range cf.Types {
		if candidate == t {
			return true
		}
	}
	return false
}

func (cf ContentFilter) check(registry *schema.Registry) error {
	for _, t := range cf.Types {
		s, ok := registry.Schema(t)
		if !ok {
			return schema.ConfigErrorf("content filter %s names unregistered type %s", cf.Param, t)
		}
		decl, ok := s.Lookup(cf.Param)
		if !ok {
			return schema.ConfigErrorf("content filter %s is not declared on %s", cf.Param, t)
		}
		if decl.Shape.Kind != schema.KindBoolean && decl.Shape.Kind != schema.KindString {
			return schema.ConfigErrorf("content filter %s on %s must be boolean or string, got %s", cf.Param, t, decl.Shape)
		}
		if _, ok := s.Lookup(PreferenceParam); !ok {
			return schema.ConfigErrorf("%s declares content filters but not %s", t, PreferenceParam)
		}
	}
	return nil
}

// Filters returns the configured content filters.
func (f *Factory) Filters() []ContentFilter {
	return append([]ContentFilter(nil), f.opts.Filters...)
}

// ApplyDefaults injects the content filters that prefs turns on or off and
// that spec does not set explicitly. The result is a new specification
// tagged with preference_filter, or spec itself when nothing was injected, so
// applying it twice is the same as applying it once.
func (f *Factory) ApplyDefaults(spec *Spec, prefs domain.Preferences) *Spec {
	merged := spec.Raw()
	injected := false

	for _, cf := range f.opts.Filters {
		if !cf.appliesTo(spec.EntityType()) {
			continue
		}
		decl, ok := spec.Schema().Lookup(cf.Param)
		if !ok || explicitlySet(merged, cf.Param) {
			continue
		}
		setting, ok := prefs[cf.Param]
		if !ok {
			continue
		}
		value, ok := filterValue(decl.Shape.Kind, setting)
		if !ok {
			continue
		}
		merged[cf.Param] = value
		injected = true
	}

	if !injected {
		return spec
	}
	merged[PreferenceParam] = true
	filtered := newSpec(f, spec.Schema(), merged, spec.Depth())
	filtered.tagged = true
	return filtered
}

func explicitlySet(raw map[string]any, param string) bool {
	v, ok := raw[param]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

func filterValue(kind schema.Kind, setting domain.FilterSetting) (any, bool) {
	switch setting.State {
	case domain.FilterOn:
		if kind == schema.KindBoolean {
			return true, true
		}
		if setting.Value == nil {
			return nil, false
		}
		return setting.Value, true
	case domain.FilterOff:
		if kind == schema.KindBoolean {
			return false, true
		}
	}
	return nil, false
}

// MergePreferences overlays user settings on site-wide defaults.
func MergePreferences(site, user domain.Preferences) domain.Preferences {
	out := make(domain.Preferences, len(site)+len(user))
	for k, v := range site {
		out[k] = v
	}
	for k, v := range user {
		out[k] = v
	}
	return out
}
