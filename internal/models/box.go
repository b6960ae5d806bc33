package models

import "github.com/Masterminds/squirrel"

type box struct {
	north, south, east, west float64
}

// parseBox reads a coerced bounding box. All four edges are required.
func parseBox(value any) (box, bool) {
	m, ok := value.(map[string]any)
	if !ok {
		return box{}, false
	}
	var b box
	for name, dst := range map[string]*float64{
		"north": &b.north, "south": &b.south, "east": &b.east, "west": &b.west,
	} {
		f, ok := m[name].(float64)
		if !ok {
			return box{}, false
		}
		*dst = f
	}
	return b, true
}

// straddles reports whether the box crosses the date line.
func (b box) straddles() bool {
	return b.west > b.east
}

// spans matches a longitude column against the box.
func (b box) spans(column string) squirrel.Sqlizer {
	if b.straddles() {
		return squirrel.Expr("("+column+" >= ? OR "+column+" <= ?)", b.west, b.east)
	}
	return squirrel.Expr(column+" >= ? AND "+column+" <= ?", b.west, b.east)
}

// contains matches rows of a table with north/south/east/west columns that
// lie wholly inside the box.
func (b box) contains(table string) squirrel.Sqlizer {
	and := squirrel.And{
		squirrel.Expr(table+".south >= ? AND "+table+".north <= ?", b.south, b.north),
	}
	if b.straddles() {
		and = append(and, squirrel.Expr(
			"(("+table+".west >= ? OR "+table+".west <= ?) AND ("+table+".east >= ? OR "+table+".east <= ?))",
			b.west, b.east, b.west, b.east,
		))
		return and
	}
	return append(and, squirrel.Expr(
		table+".west >= ? AND "+table+".east <= ? AND "+table+".west <= "+table+".east",
		b.west, b.east,
	))
}
