package schema

import (
	"fmt"
	"strings"

	"github.com/rpattn/obsquery/internal/domain"
)

// Kind is the tag of a Shape.
type Kind int

const (
	KindString Kind = iota + 1
	KindInteger
	KindFloat
	KindDate
	KindTime
	KindBoolean
	KindRef
	KindSeq
	KindEnum
	KindSubquery
	KindRecord
)

var kindNames = map[Kind]string{
	KindString:   "string",
	KindInteger:  "integer",
	KindFloat:    "float",
	KindDate:     "date",
	KindTime:     "time",
	KindBoolean:  "boolean",
	KindRef:      "ref",
	KindSeq:      "seq",
	KindEnum:     "enum",
	KindSubquery: "subquery",
	KindRecord:   "record",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Shape describes the accepted form of one parameter value. Shapes are
// recursive through Elem (sequences) and Fields (records).
type Shape struct {
	Kind Kind
	// Target is the referenced entity type for KindRef and KindSubquery.
	Target domain.EntityType
	// Elem is the element shape for KindSeq.
	Elem *Shape
	// Base is the scalar kind (KindString or KindBoolean) of a KindEnum.
	Base Kind
	// Allowed lists the values a KindEnum accepts.
	Allowed []any
	// Fields are the named sub-shapes of a KindRecord, in declaration order.
	Fields []Field
}

// Field is one named member of a record shape.
type Field struct {
	Name  string
	Shape Shape
}

func String() Shape  { return Shape{Kind: KindString} }
func Integer() Shape { return Shape{Kind: KindInteger} }
func Float() Shape   { return Shape{Kind: KindFloat} }
func Date() Shape    { return Shape{Kind: KindDate} }
func Time() Shape    { return Shape{Kind: KindTime} }
func Boolean() Shape { return Shape{Kind: KindBoolean} }

// Ref accepts an identifier, a domain.Record of the target type, or a string
// resolved through the target's lookup.
func Ref(target domain.EntityType) Shape {
	return Shape{Kind: KindRef, Target: target}
}

// SeqOf accepts one value or many of elem.
func SeqOf(elem Shape) Shape {
	return Shape{Kind: KindSeq, Elem: &elem}
}

// StringEnum accepts one of the given strings.
func StringEnum(values ...string) Shape {
	allowed := make([]any, len(values))
	for i, v := range values {
		allowed[i] = v
	}
	return Shape{Kind: KindEnum, Base: KindString, Allowed: allowed}
}

// BooleanEnum accepts one of the given booleans. BooleanEnum(true) is a way of
// saying "ignore false".
func BooleanEnum(values ...bool) Shape {
	allowed := make([]any, len(values))
	for i, v := range values {
		allowed[i] = v
	}
	return Shape{Kind: KindEnum, Base: KindBoolean, Allowed: allowed}
}

// Subquery accepts a nested parameter mapping validated as a full
// specification of the target entity type.
func Subquery(target domain.EntityType) Shape {
	return Shape{Kind: KindSubquery, Target: target}
}

// Record accepts a fixed mapping of named sub-shapes.
func Record(fields ...Field) Shape {
	return Shape{Kind: KindRecord, Fields: fields}
}

// F is shorthand for a record Field.
func F(name string, shape Shape) Field {
	return Field{Name: name, Shape: shape}
}

// BoundingBox is the shared in_box record shape.
func BoundingBox() Shape {
	return Record(F("north", Float()), F("south", Float()), F("east", Float()), F("west", Float()))
}

// String renders the shape in a compact, human readable form.
func (s Shape) String() string {
	switch s.Kind {
	case KindRef:
		return "ref(" + string(s.Target) + ")"
	case KindSubquery:
		return "subquery(" + string(s.Target) + ")"
	case KindSeq:
		if s.Elem == nil {
			return "seq(?)"
		}
		return "seq(" + s.Elem.String() + ")"
	case KindEnum:
		parts := make([]string, len(s.Allowed))
		for i, v := range s.Allowed {
			parts[i] = fmt.Sprint(v)
		}
		return s.Base.String() + "{" + strings.Join(parts, ",") + "}"
	case KindRecord:
		parts := make([]string, len(s.Fields))
		for i, f := range s.Fields {
			parts[i] = f.Name + ":" + f.Shape.String()
		}
		return "{" + strings.Join(parts, ",") + "}"
	default:
		return s.Kind.String()
	}
}

// check reports declaration mistakes in the shape tree.
func (s Shape) check(path string) error {
	switch s.Kind {
	case KindString, KindInteger, KindFloat, KindDate, KindTime, KindBoolean:
		return nil
	case KindRef, KindSubquery:
		if s.Target == "" {
			return configErrorf("%s: %s declares no target entity type", path, s.Kind)
		}
	case KindSeq:
		if s.Elem == nil {
			return configErrorf("%s: sequence declares no element shape", path)
		}
		if s.Elem.Kind == KindSeq || s.Elem.Kind == KindSubquery {
			return configErrorf("%s: sequence of %s is not supported", path, s.Elem.Kind)
		}
		return s.Elem.check(path)
	case KindEnum:
		if s.Base != KindString && s.Base != KindBoolean {
			return configErrorf("%s: enum base must be string or boolean, got %s", path, s.Base)
		}
		if len(s.Allowed) == 0 {
			return configErrorf("%s: enum declares no allowed values", path)
		}
	case KindRecord:
		if len(s.Fields) == 0 {
			return configErrorf("%s: record declares no fields", path)
		}
		seen := make(map[string]struct{}, len(s.Fields))
		for _, f := range s.Fields {
			if _, dup := seen[f.Name]; dup {
				return configErrorf("%s: duplicate record field %s", path, f.Name)
			}
			seen[f.Name] = struct{}{}
			if f.Shape.Kind == KindSubquery {
				return configErrorf("%s.%s: subqueries cannot be nested in records", path, f.Name)
			}
			if err := f.Shape.check(path + "." + f.Name); err != nil {
				return err
			}
		}
	default:
		return configErrorf("%s: invalid shape kind %d", path, int(s.Kind))
	}
	return nil
}

// Targets returns every entity type the shape references.
func (s Shape) Targets() []domain.EntityType {
	switch s.Kind {
	case KindRef, KindSubquery:
		return []domain.EntityType{s.Target}
	case KindSeq:
		if s.Elem != nil {
			return s.Elem.Targets()
		}
	case KindRecord:
		var out []domain.EntityType
		for _, f := range s.Fields {
			out = append(out, f.Shape.Targets()...)
		}
		return out
	}
	return nil
}
