package validator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
)

// DefaultMaxArrayLength bounds sequence parameters when Options leaves it unset.
const DefaultMaxArrayLength = 10000

// ErrLookupUnsupported is returned by a LookupFunc for entity types that only
// accept numeric identifiers.
var ErrLookupUnsupported = errors.New("entity type does not support lookup")

// LookupFunc resolves a free-text reference to matching identifiers. An empty
// result is a normal outcome, not an error.
type LookupFunc func(ctx context.Context, entityType domain.EntityType, value string) ([]int64, error)

// SubqueryFunc validates a nested specification of target declared as param
// on parent. depth is the nesting level of the nested specification.
type SubqueryFunc func(ctx context.Context, parent domain.EntityType, param string, target domain.EntityType, raw map[string]any, depth int) (map[string]any, []domain.ValidationError, error)

// DepthError reports a subquery chain nested past the configured limit. It
// travels up as an error and becomes a field error on the outermost
// subquery parameter.
type DepthError struct {
	Max int
}

func (e *DepthError) Error() string {
	return fmt.Sprintf("subqueries nested more than %d deep", e.Max)
}

// Options configure a Validator.
type Options struct {
	MaxArrayLength  int
	Lookup          LookupFunc
	ResolveSubquery SubqueryFunc
}

// Result is the outcome of validating one raw parameter mapping.
type Result struct {
	Params map[string]any
	Errors []domain.ValidationError
}

// IsValid reports whether no field errors were recorded.
func (r Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator coerces raw parameter mappings against a schema. Malformed input
// never produces an error return; it is recorded in Result.Errors. The error
// return carries infrastructure and configuration failures only.
type Validator struct {
	opts Options
}

// New creates a Validator.
func New(opts Options) *Validator {
	if opts.MaxArrayLength <= 0 {
		opts.MaxArrayLength = DefaultMaxArrayLength
	}
	return &Validator{opts: opts}
}

// MaxArrayLength returns the configured sequence bound.
func (v *Validator) MaxArrayLength() int {
	return v.opts.MaxArrayLength
}

// dropped signals a value that is silently omitted (blank input, or an enum
// value outside its allow-list).
var dropped = errors.New("dropped")

type fieldError struct {
	msg   string
	value any
}

func (e *fieldError) Error() string { return e.msg }

func invalid(value any, format string, args ...any) error {
	return &fieldError{msg: fmt.Sprintf(format, args...), value: value}
}

// Validate coerces raw against s. Keys s does not declare are dropped.
func (v *Validator) Validate(ctx context.Context, s *schema.Schema, raw map[string]any, depth int) (Result, error) {
	result := Result{Params: make(map[string]any)}

	for _, decl := range s.Declarations() {
		value, exists := raw[decl.Name]
		if !exists || isBlank(value) {
			if decl.Required {
				result.Errors = append(result.Errors, domain.ValidationError{
					Field:   decl.Name,
					Message: "is required",
				})
			}
			continue
		}

		if decl.Shape.Kind == schema.KindSubquery {
			nested, errs, err := v.subquery(ctx, s.Type, decl, value, depth)
			var deep *DepthError
			if depth == 0 && errors.As(err, &deep) {
				result.Errors = append(result.Errors, domain.ValidationError{Field: decl.Name, Message: deep.Error()})
				continue
			}
			if err != nil {
				return Result{}, err
			}
			if len(errs) > 0 {
				for _, e := range errs {
					result.Errors = append(result.Errors, e.Nested(decl.Name))
				}
				continue
			}
			result.Params[decl.Name] = nested
			continue
		}

		coerced, errs, err := v.coerce(ctx, decl.Name, decl.Shape, value)
		if err != nil {
			return Result{}, err
		}
		if len(errs) > 0 {
			result.Errors = append(result.Errors, errs...)
			continue
		}
		if coerced != nil {
			result.Params[decl.Name] = coerced
		}
	}

	return result, nil
}

func (v *Validator) subquery(ctx context.Context, parent domain.EntityType, decl schema.Declaration, value any, depth int) (map[string]any, []domain.ValidationError, error) {
	raw, ok := asMap(value)
	if !ok {
		// addressed by the caller under decl.Name
		return nil, []domain.ValidationError{{
			Message: "must be a mapping of parameters",
			Value:   value,
		}}, nil
	}
	if v.opts.ResolveSubquery == nil {
		return nil, nil, schema.ConfigErrorf("%s.%s: no subquery resolver configured", parent, decl.Name)
	}
	return v.opts.ResolveSubquery(ctx, parent, decl.Name, decl.Shape.Target, raw, depth+1)
}

// coerce returns (nil, nil, nil) when the value is dropped.
func (v *Validator) coerce(ctx context.Context, field string, shape schema.Shape, value any) (any, []domain.ValidationError, error) {
	switch shape.Kind {
	case schema.KindSeq:
		return v.coerceSeq(ctx, field, shape, value)
	case schema.KindRecord:
		return v.coerceRecord(ctx, field, shape, value)
	case schema.KindSubquery:
		return nil, nil, schema.ConfigErrorf("%s: subquery shapes are only valid at the top level", field)
	}

	coerced, err := v.coerceOne(ctx, shape, value)
	return fieldResult(field, coerced, err)
}

func fieldResult(field string, coerced any, err error) (any, []domain.ValidationError, error) {
	if err == nil {
		return coerced, nil, nil
	}
	if errors.Is(err, dropped) {
		return nil, nil, nil
	}
	var fe *fieldError
	if errors.As(err, &fe) {
		return nil, []domain.ValidationError{{Field: field, Message: fe.msg, Value: fe.value}}, nil
	}
	return nil, nil, err
}

func (v *Validator) coerceSeq(ctx context.Context, field string, shape schema.Shape, value any) (any, []domain.ValidationError, error) {
	items := asSlice(value)
	if len(items) > v.opts.MaxArrayLength {
		return nil, []domain.ValidationError{{
			Field:   field,
			Message: fmt.Sprintf("has too many values (%d, maximum is %d)", len(items), v.opts.MaxArrayLength),
			Value:   len(items),
		}}, nil
	}

	elem := *shape.Elem
	if len(items) == 0 && elem.Kind == schema.KindRef {
		return []int64{}, nil, nil
	}
	var out collector
	out.init(elem)
	var errs []domain.ValidationError
	for i, item := range items {
		if isBlank(item) {
			continue
		}
		if elem.Kind == schema.KindRecord {
			coerced, recErrs, err := v.coerceRecord(ctx, fmt.Sprintf("%s[%d]", field, i), elem, item)
			if err != nil {
				return nil, nil, err
			}
			errs = append(errs, recErrs...)
			if coerced != nil {
				out.add(coerced)
			}
			continue
		}
		coerced, err := v.coerceOne(ctx, elem, item)
		if err != nil {
			_, itemErrs, fatal := fieldResult(field, nil, err)
			if fatal != nil {
				return nil, nil, fatal
			}
			errs = append(errs, itemErrs...)
			continue
		}
		out.add(coerced)
	}
	if len(errs) > 0 {
		return nil, errs, nil
	}
	return out.result(), nil, nil
}

func (v *Validator) coerceRecord(ctx context.Context, field string, shape schema.Shape, value any) (any, []domain.ValidationError, error) {
	raw, ok := asMap(value)
	if !ok {
		return nil, []domain.ValidationError{{Field: field, Message: "must be a mapping", Value: value}}, nil
	}
	out := make(map[string]any)
	var errs []domain.ValidationError
	for _, f := range shape.Fields {
		sub, exists := raw[f.Name]
		if !exists || isBlank(sub) {
			continue
		}
		coerced, subErrs, err := v.coerce(ctx, field+"."+f.Name, f.Shape, sub)
		if err != nil {
			return nil, nil, err
		}
		errs = append(errs, subErrs...)
		if coerced != nil {
			out[f.Name] = coerced
		}
	}
	if len(errs) > 0 {
		return nil, errs, nil
	}
	if len(out) == 0 {
		return nil, nil, nil
	}
	return out, nil, nil
}

func (v *Validator) coerceOne(ctx context.Context, shape schema.Shape, value any) (any, error) {
	switch shape.Kind {
	case schema.KindString:
		return coerceString(value)
	case schema.KindInteger:
		return coerceInteger(value)
	case schema.KindFloat:
		return coerceFloat(value)
	case schema.KindBoolean:
		return coerceBoolean(value)
	case schema.KindDate:
		return coerceDate(value)
	case schema.KindTime:
		return coerceTime(value)
	case schema.KindEnum:
		return coerceEnum(shape, value)
	case schema.KindRef:
		return v.coerceRef(ctx, shape.Target, value)
	default:
		return nil, schema.ConfigErrorf("cannot coerce a single value to %s", shape)
	}
}

var (
	integerPattern = regexp.MustCompile(`^-?\d+$`)
	floatPattern   = regexp.MustCompile(`^-?(\d+(\.\d+)?|\.\d+)$`)
	idPattern      = regexp.MustCompile(`^\d+$`)
	datePattern    = regexp.MustCompile(`^\d{4}(-\d\d?){0,2}$`)
	monthPattern   = regexp.MustCompile(`^\d\d?(-\d\d?)?$`)
	timePattern    = regexp.MustCompile(`^\d{4}(-\d\d?){0,5}$`)
)

func coerceString(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return nil, invalid(value, "must be a string, got %T", value)
	}
}

func coerceInteger(value any) (any, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		if v == float64(int64(v)) {
			return int64(v), nil
		}
	case string:
		s := strings.TrimSpace(v)
		if integerPattern.MatchString(s) {
			if n, err := strconv.ParseInt(s, 10, 64); err == nil {
				return n, nil
			}
		}
	}
	return nil, invalid(value, "must be an integer")
}

func coerceFloat(value any) (any, error) {
	switch v := value.(type) {
	case float32:
		return finite(float64(v))
	case float64:
		return finite(v)
	case string:
		s := strings.TrimSpace(v)
		if floatPattern.MatchString(s) {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, nil
			}
		}
		return nil, invalid(value, "must be a number")
	}
	if n, err := coerceInteger(value); err == nil {
		return float64(n.(int64)), nil
	}
	return nil, invalid(value, "must be a number")
}

func finite(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, invalid(f, "must be a finite number")
	}
	return f, nil
}

func coerceBoolean(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		switch v {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	case int64:
		switch v {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	case float64:
		switch v {
		case 1:
			return true, nil
		case 0:
			return false, nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "on", "1":
			return true, nil
		case "false", "no", "off", "0":
			return false, nil
		}
	}
	return nil, invalid(value, "must be a boolean")
}

func coerceDate(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v.Format("2006-01-02"), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "0" {
			return nil, dropped
		}
		if datePattern.MatchString(s) || monthPattern.MatchString(s) {
			return s, nil
		}
	case int, int64:
		return coerceDate(fmt.Sprint(v))
	}
	return nil, invalid(value, "must be a date (YYYY-MM-DD, YYYY-MM, YYYY, MM or MM-DD)")
}

func coerceTime(value any) (any, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format("2006-01-02-15-04-05"), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "0" {
			return nil, dropped
		}
		if timePattern.MatchString(s) {
			return s, nil
		}
	case int, int64:
		return coerceTime(fmt.Sprint(v))
	}
	return nil, invalid(value, "must be a time (YYYY-MM-DD-HH-MM-SS or a prefix of it)")
}

func coerceEnum(shape schema.Shape, value any) (any, error) {
	var coerced any
	var err error
	if shape.Base == schema.KindBoolean {
		coerced, err = coerceBoolean(value)
	} else {
		coerced, err = coerceString(value)
	}
	if err != nil {
		return nil, dropped
	}
	for _, allowed := range shape.Allowed {
		if allowed == coerced {
			return coerced, nil
		}
	}
	return nil, dropped
}

// coerceRef always yields []int64. A lookup that matches nothing yields an
// empty slice so the specification matches nothing.
func (v *Validator) coerceRef(ctx context.Context, target domain.EntityType, value any) (any, error) {
	switch r := value.(type) {
	case domain.Record:
		if r.RecordType() != target {
			return nil, invalid(r.RecordID(), "must be a %s, got a %s", target, r.RecordType())
		}
		if r.RecordID() <= 0 {
			return nil, invalid(r.RecordID(), "must be a saved %s", target)
		}
		return []int64{r.RecordID()}, nil
	case string:
		s := strings.TrimSpace(r)
		if idPattern.MatchString(s) {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, invalid(value, "must be a %s id", target)
			}
			return []int64{id}, nil
		}
		if v.opts.Lookup == nil {
			return nil, invalid(value, "must be a %s id", target)
		}
		ids, err := v.opts.Lookup(ctx, target, s)
		if errors.Is(err, ErrLookupUnsupported) {
			return nil, invalid(value, "must be a %s id", target)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up %s %q: %w", target, s, err)
		}
		return dedupe(ids), nil
	}

	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Slice {
		return v.resolvedIDs(target, value)
	}

	n, err := coerceInteger(value)
	if err != nil {
		return nil, invalid(value, "must be a %s id or name", target)
	}
	if n.(int64) <= 0 {
		return nil, invalid(value, "must be a positive %s id", target)
	}
	return []int64{n.(int64)}, nil
}

// resolvedIDs accepts the []int64 a reference coerces to, as it comes back
// from a parsed description: a bounded list of positive integer ids. Names
// and records are not resolved here.
func (v *Validator) resolvedIDs(target domain.EntityType, value any) (any, error) {
	items := asSlice(value)
	if len(items) > v.opts.MaxArrayLength {
		return nil, invalid(len(items), "has too many values (%d, maximum is %d)", len(items), v.opts.MaxArrayLength)
	}
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		switch item.(type) {
		case string, domain.Record:
			return nil, invalid(item, "must be a list of %s ids", target)
		}
		if rv := reflect.ValueOf(item); rv.Kind() == reflect.Slice {
			return nil, invalid(item, "must be a list of %s ids", target)
		}
		n, err := coerceInteger(item)
		if err != nil || n.(int64) <= 0 {
			return nil, invalid(item, "must be a list of %s ids", target)
		}
		ids = append(ids, n.(int64))
	}
	return dedupe(ids), nil
}

func dedupe(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func isBlank(value any) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// asSlice wraps a scalar into a one-element list. Strings, records and
// mappings are scalars here.
func asSlice(value any) []any {
	switch v := value.(type) {
	case []any:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case string, domain.Record:
		return []any{v}
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return []any{value}
	}
	out := make([]any, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func asMap(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case map[string]string:
		out := make(map[string]any, len(v))
		for k, s := range v {
			out[k] = s
		}
		return out, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
