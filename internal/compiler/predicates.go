package compiler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
)

// Builders for the parameter shapes every entity type shares. Each returns
// a PredicateFunc over the coerced value its shape produces.

// IDsIn matches column against a []int64. An empty set matches nothing.
func IDsIn(column string) PredicateFunc {
	return func(value any) (squirrel.Sqlizer, error) {
		ids, ok := value.([]int64)
		if !ok {
			return nil, typeError(column, "[]int64", value)
		}
		return squirrel.Eq{column: ids}, nil
	}
}

// Boolean tests a boolean column.
func Boolean(column string) PredicateFunc {
	return Switch(column+" IS TRUE", column+" IS FALSE")
}

// NotNull is true when column is set.
func NotNull(column string) PredicateFunc {
	return Switch(column+" IS NOT NULL", column+" IS NULL")
}

// Switch picks one of two fixed conditions for a boolean value.
func Switch(whenTrue, whenFalse string) PredicateFunc {
	return func(value any) (squirrel.Sqlizer, error) {
		b, ok := value.(bool)
		if !ok {
			return nil, typeError(whenTrue, "bool", value)
		}
		if b {
			return squirrel.Expr(whenTrue), nil
		}
		if whenFalse == "" {
			return nil, nil
		}
		return squirrel.Expr(whenFalse), nil
	}
}

// SearchIn applies the search syntax to the given columns.
func SearchIn(columns ...string) PredicateFunc {
	return func(value any) (squirrel.Sqlizer, error) {
		s, ok := value.(string)
		if !ok {
			return nil, typeError(strings.Join(columns, ","), "string", value)
		}
		search := ParseSearch(s)
		if search.Blank() {
			return nil, nil
		}
		return search.Condition(columns...), nil
	}
}

// Suffix matches rows whose column ends with the value, ignoring case.
func Suffix(column string) PredicateFunc {
	return func(value any) (squirrel.Sqlizer, error) {
		s, ok := value.(string)
		if !ok {
			return nil, typeError(column, "string", value)
		}
		return squirrel.Expr("LOWER("+column+") LIKE ? ESCAPE '\\'", EndsWith(s)), nil
	}
}

// FloatRange applies [min, max] bounds from a []float64; a single value is a
// minimum.
func FloatRange(column string) PredicateFunc {
	return func(value any) (squirrel.Sqlizer, error) {
		vals, ok := value.([]float64)
		if !ok {
			return nil, typeError(column, "[]float64", value)
		}
		and := squirrel.And{}
		if len(vals) > 0 {
			and = append(and, squirrel.GtOrEq{column: vals[0]})
		}
		if len(vals) > 1 {
			and = append(and, squirrel.LtOrEq{column: vals[1]})
		}
		return and, nil
	}
}

// DateRange applies [min, max] bounds from a []string of YYYY[-MM[-DD]],
// MM or MM-DD values to a YYYY-MM-DD text column. A single value is a
// minimum. Month-day ranges wrap around the new year when min > max.
func DateRange(column string) PredicateFunc {
	return func(value any) (squirrel.Sqlizer, error) {
		vals, ok := value.([]string)
		if !ok {
			return nil, typeError(column, "[]string", value)
		}
		if len(vals) > 1 && isMonthDay(vals[0]) && isMonthDay(vals[1]) && monthDayAfter(vals[0], vals[1]) {
			m1, d1 := splitMonthDay(vals[0])
			m2, d2 := splitMonthDay(vals[1])
			month, day := monthExpr(column), dayExpr(column)
			return squirrel.Or{
				squirrel.Expr(month+" > ?", m1),
				squirrel.Expr(month+" < ?", m2),
				squirrel.Expr("("+month+" = ? AND "+day+" >= ?)", m1, d1),
				squirrel.Expr("("+month+" = ? AND "+day+" <= ?)", m2, d2),
			}, nil
		}
		and := squirrel.And{}
		if len(vals) > 0 {
			and = append(and, halfDate(column, vals[0], true))
		}
		if len(vals) > 1 {
			and = append(and, halfDate(column, vals[1], false))
		}
		return and, nil
	}
}

func monthExpr(column string) string {
	return "CAST(SUBSTR(" + column + ", 6, 2) AS INTEGER)"
}

func dayExpr(column string) string {
	return "CAST(SUBSTR(" + column + ", 9, 2) AS INTEGER)"
}

func isMonthDay(s string) bool {
	parts := strings.Split(s, "-")
	return len(parts) == 2 && len(parts[0]) <= 2
}

func splitMonthDay(s string) (int, int) {
	parts := strings.SplitN(s, "-", 2)
	m, _ := strconv.Atoi(parts[0])
	d := 0
	if len(parts) > 1 {
		d, _ = strconv.Atoi(parts[1])
	}
	return m, d
}

func monthDayAfter(a, b string) bool {
	m1, d1 := splitMonthDay(a)
	m2, d2 := splitMonthDay(b)
	return m1 > m2 || (m1 == m2 && d1 > d2)
}

func halfDate(column, val string, min bool) squirrel.Sqlizer {
	op := "<"
	if min {
		op = ">"
	}
	parts := strings.Split(val, "-")
	if len(parts[0]) == 4 {
		y, _ := strconv.Atoi(parts[0])
		m, d := 12, 31
		if min {
			m, d = 1, 1
		}
		if len(parts) > 1 {
			m, _ = strconv.Atoi(parts[1])
		}
		if len(parts) > 2 {
			d, _ = strconv.Atoi(parts[2])
		}
		return squirrel.Expr(column+" "+op+"= ?", fmt.Sprintf("%04d-%02d-%02d", y, m, d))
	}
	month := monthExpr(column)
	m, d := splitMonthDay(val)
	if len(parts) > 1 {
		return squirrel.Or{
			squirrel.Expr(month+" "+op+" ?", m),
			squirrel.Expr("("+month+" = ? AND "+dayExpr(column)+" "+op+"= ?)", m, d),
		}
	}
	return squirrel.Expr(month+" "+op+"= ?", m)
}

// TimeRange applies [min, max] bounds from a []string of
// YYYY[-MM[-DD[-HH[-MM[-SS]]]]] values to a unix-seconds column. Partial
// values cover their whole period: a minimum starts it, a maximum ends it.
func TimeRange(column string) PredicateFunc {
	return func(value any) (squirrel.Sqlizer, error) {
		vals, ok := value.([]string)
		if !ok {
			return nil, typeError(column, "[]string", value)
		}
		and := squirrel.And{}
		if len(vals) > 0 {
			if start, _, err := timePeriod(vals[0]); err == nil {
				and = append(and, squirrel.GtOrEq{column: start.Unix()})
			}
		}
		if len(vals) > 1 {
			if _, end, err := timePeriod(vals[1]); err == nil {
				and = append(and, squirrel.LtOrEq{column: end.Unix()})
			}
		}
		return and, nil
	}
}

// timePeriod returns the first and last second covered by a partial time.
func timePeriod(val string) (time.Time, time.Time, error) {
	parts := strings.Split(val, "-")
	nums := []int{0, 1, 1, 0, 0, 0}
	for i, p := range parts {
		if i >= len(nums) {
			break
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		nums[i] = n
	}
	start := time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], 0, time.UTC)
	var next time.Time
	switch len(parts) {
	case 1:
		next = start.AddDate(1, 0, 0)
	case 2:
		next = start.AddDate(0, 1, 0)
	case 3:
		next = start.AddDate(0, 0, 1)
	case 4:
		next = start.Add(time.Hour)
	case 5:
		next = start.Add(time.Minute)
	default:
		next = start.Add(time.Second)
	}
	return start, next.Add(-time.Second), nil
}

// StringIn matches column against a []string case-insensitively.
func StringIn(column string) PredicateFunc {
	return func(value any) (squirrel.Sqlizer, error) {
		vals, ok := value.([]string)
		if !ok {
			return nil, typeError(column, "[]string", value)
		}
		lowered := make([]string, len(vals))
		for i, v := range vals {
			lowered[i] = strings.ToLower(v)
		}
		return squirrel.Eq{"LOWER(" + column + ")": lowered}, nil
	}
}

func typeError(target, want string, got any) error {
	return fmt.Errorf("%s expects %s, got %T", target, want, got)
}
