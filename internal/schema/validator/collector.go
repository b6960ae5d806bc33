package validator

import "github.com/rpattn/obsquery/internal/schema"

// collector accumulates coerced sequence elements into a typed slice so
// predicate builders can type-assert without re-walking []any.
type collector struct {
	kind    schema.Kind
	added   bool
	strs    []string
	ints    []int64
	floats  []float64
	bools   []bool
	records []map[string]any
	seen    map[int64]struct{}
}

func (c *collector) init(elem schema.Shape) {
	c.kind = elem.Kind
	if elem.Kind == schema.KindEnum {
		c.kind = elem.Base
	}
	if c.kind == schema.KindRef {
		c.seen = make(map[int64]struct{})
		c.ints = []int64{}
	}
}

func (c *collector) add(v any) {
	if v == nil {
		return
	}
	c.added = true
	switch c.kind {
	case schema.KindRef:
		for _, id := range v.([]int64) {
			if _, dup := c.seen[id]; dup {
				continue
			}
			c.seen[id] = struct{}{}
			c.ints = append(c.ints, id)
		}
	case schema.KindInteger:
		c.ints = append(c.ints, v.(int64))
	case schema.KindFloat:
		c.floats = append(c.floats, v.(float64))
	case schema.KindBoolean:
		c.bools = append(c.bools, v.(bool))
	case schema.KindRecord:
		c.records = append(c.records, v.(map[string]any))
	default:
		c.strs = append(c.strs, v.(string))
	}
}

// result returns nil when nothing was added, dropping the parameter.
func (c *collector) result() any {
	if !c.added {
		return nil
	}
	switch c.kind {
	case schema.KindRef, schema.KindInteger:
		return c.ints
	case schema.KindFloat:
		return c.floats
	case schema.KindBoolean:
		return c.bools
	case schema.KindRecord:
		return c.records
	default:
		return c.strs
	}
}
