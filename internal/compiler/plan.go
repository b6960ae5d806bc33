package compiler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/rpattn/obsquery/internal/domain"
	"github.com/rpattn/obsquery/internal/schema"
)

// Plan is a compiled specification. Counting, paging and listing ids are
// independent single-statement executions.
type Plan struct {
	compiler   *Compiler
	entityType domain.EntityType
	table      string
	where      squirrel.And
	order      Order

	alphabet    Alphabet
	hasAlphabet bool
}

// EntityType returns the type of record the plan selects.
func (p *Plan) EntityType() domain.EntityType {
	return p.entityType
}

func (p *Plan) base(columns ...string) squirrel.SelectBuilder {
	b := squirrel.Select(columns...).
		From(p.table).
		PlaceholderFormat(p.compiler.db.Dialect().Placeholder())
	if len(p.where) > 0 {
		b = b.Where(p.where)
	}
	return b
}

func (p *Plan) ordered() squirrel.SelectBuilder {
	b := p.base(p.table + ".id")
	for _, join := range p.order.Joins {
		b = b.LeftJoin(join)
	}
	return b.OrderBy(p.order.Columns...)
}

// SQL renders the ordered id query.
func (p *Plan) SQL() (string, []any, error) {
	return p.ordered().ToSql()
}

// Each streams ids in order until fn returns false.
func (p *Plan) Each(ctx context.Context, fn func(id int64) bool) (err error) {
	start := time.Now()
	defer func() { p.compiler.record(p.entityType, "ids", start, err) }()

	return p.each(ctx, p.ordered(), fn)
}

func (p *Plan) each(ctx context.Context, b squirrel.SelectBuilder, fn func(id int64) bool) error {
	sql, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := p.compiler.db.Query(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to query %s ids: %w", p.entityType, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan %s id: %w", p.entityType, err)
		}
		if !fn(id) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to read %s ids: %w", p.entityType, err)
	}
	return nil
}

// IDs returns the ordering, bounded by max when max > 0. truncated reports
// that more ids matched than were returned.
func (p *Plan) IDs(ctx context.Context, max int) (ids []int64, truncated bool, err error) {
	start := time.Now()
	defer func() { p.compiler.record(p.entityType, "ids", start, err) }()

	b := p.ordered()
	if max > 0 {
		b = b.Limit(uint64(max) + 1)
	}
	ids = []int64{}
	err = p.each(ctx, b, func(id int64) bool {
		if max > 0 && len(ids) == max {
			truncated = true
			return false
		}
		ids = append(ids, id)
		return true
	})
	if err != nil {
		return nil, false, err
	}
	return ids, truncated, nil
}

// Page returns the ids of one page, numbered from 1.
func (p *Plan) Page(ctx context.Context, page, perPage int) (ids []int64, err error) {
	start := time.Now()
	defer func() { p.compiler.record(p.entityType, "page", start, err) }()

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		return []int64{}, nil
	}
	b := p.ordered().Limit(uint64(perPage)).Offset(uint64((page - 1) * perPage))
	ids = []int64{}
	err = p.each(ctx, b, func(id int64) bool {
		ids = append(ids, id)
		return true
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Count returns the number of matches without materializing them.
func (p *Plan) Count(ctx context.Context) (count int64, err error) {
	start := time.Now()
	defer func() { p.compiler.record(p.entityType, "count", start, err) }()

	sql, args, err := p.base("COUNT(*)").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}
	if err := p.compiler.db.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", p.entityType, err)
	}
	return count, nil
}

func (p *Plan) letterExpr() string {
	return "UPPER(SUBSTR(COALESCE(" + p.alphabet.Title + ", ''), 1, 1))"
}

// titles selects from the table with the title joins applied.
func (p *Plan) titles(columns ...string) squirrel.SelectBuilder {
	b := squirrel.Select(columns...).From(p.table)
	for _, join := range p.alphabet.Joins {
		b = b.LeftJoin(join)
	}
	return b
}

// Letters returns the distinct first letters (A to Z) of the titles of all
// matches, sorted.
func (p *Plan) Letters(ctx context.Context) (letters []string, err error) {
	start := time.Now()
	defer func() { p.compiler.record(p.entityType, "letters", start, err) }()

	if !p.hasAlphabet {
		return nil, schema.ConfigErrorf("no letter index for %s", p.entityType)
	}
	matches := squirrel.Select(p.table + ".id").From(p.table)
	if len(p.where) > 0 {
		matches = matches.Where(p.where)
	}
	sql, args, err := p.titles("DISTINCT "+p.letterExpr()).
		Where(squirrel.Expr(p.table+".id IN (?)", matches)).
		PlaceholderFormat(p.compiler.db.Dialect().Placeholder()).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build letters query: %w", err)
	}

	rows, err := p.compiler.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s letters: %w", p.entityType, err)
	}
	defer rows.Close()

	letters = []string{}
	for rows.Next() {
		var letter string
		if err := rows.Scan(&letter); err != nil {
			return nil, fmt.Errorf("failed to scan %s letter: %w", p.entityType, err)
		}
		if len(letter) == 1 && letter[0] >= 'A' && letter[0] <= 'Z' {
			letters = append(letters, letter)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s letters: %w", p.entityType, err)
	}
	sort.Strings(letters)
	return letters, nil
}

// ForLetter narrows the plan to matches whose title starts with letter,
// case-insensitively. Ordering is unchanged.
func (p *Plan) ForLetter(letter string) (*Plan, error) {
	if !p.hasAlphabet {
		return nil, schema.ConfigErrorf("no letter index for %s", p.entityType)
	}
	letter = strings.ToUpper(strings.TrimSpace(letter))
	starting := p.titles(p.table + ".id").Where(squirrel.Eq{p.letterExpr(): letter})

	narrowed := *p
	narrowed.where = append(append(squirrel.And{}, p.where...), squirrel.Expr(p.table+".id IN (?)", starting))
	return &narrowed, nil
}
