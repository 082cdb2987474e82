package store

import (
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/kubev2v/vsphere-machinery/internal/models"
)

type OperationFilterFunc func(sq.SelectBuilder) sq.SelectBuilder

// OperationQueryFilter narrows an operations query. Conditions and paging
// are kept apart so Count can reuse the conditions alone.
type OperationQueryFilter struct {
	conditions []OperationFilterFunc
	paging     []OperationFilterFunc
}

func NewOperationQueryFilter() *OperationQueryFilter {
	return &OperationQueryFilter{
		conditions: make([]OperationFilterFunc, 0),
		paging:     make([]OperationFilterFunc, 0),
	}
}

func (f *OperationQueryFilter) Add(filter OperationFilterFunc) *OperationQueryFilter {
	f.conditions = append(f.conditions, filter)
	return f
}

func (f *OperationQueryFilter) ByLabels(labels ...string) *OperationQueryFilter {
	if len(labels) == 0 {
		return f
	}
	return f.Add(func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Eq{opColLabel: labels})
	})
}

func (f *OperationQueryFilter) ByKinds(kinds ...models.OperationKind) *OperationQueryFilter {
	if len(kinds) == 0 {
		return f
	}
	values := make([]string, len(kinds))
	for i, k := range kinds {
		values[i] = k.Value()
	}
	return f.Add(func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Eq{opColKind: values})
	})
}

func (f *OperationQueryFilter) ByStates(states ...models.OperationState) *OperationQueryFilter {
	if len(states) == 0 {
		return f
	}
	values := make([]string, len(states))
	for i, s := range states {
		values[i] = s.Value()
	}
	return f.Add(func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.Eq{opColState: values})
	})
}

// Since keeps operations created at or after t.
func (f *OperationQueryFilter) Since(t time.Time) *OperationQueryFilter {
	if t.IsZero() {
		return f
	}
	return f.Add(func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(sq.GtOrEq{opColCreatedAt: t.UTC()})
	})
}

// ByExpression adds a condition over the "o" alias, as produced by
// filter.Compile.
func (f *OperationQueryFilter) ByExpression(cond sq.Sqlizer) *OperationQueryFilter {
	if cond == nil {
		return f
	}
	return f.Add(func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Where(cond)
	})
}

func (f *OperationQueryFilter) Limit(limit int) *OperationQueryFilter {
	if limit <= 0 {
		return f
	}
	f.paging = append(f.paging, func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Limit(uint64(limit))
	})
	return f
}

func (f *OperationQueryFilter) Offset(offset int) *OperationQueryFilter {
	if offset <= 0 {
		return f
	}
	f.paging = append(f.paging, func(b sq.SelectBuilder) sq.SelectBuilder {
		return b.Offset(uint64(offset))
	})
	return f
}

// ApplyConditions applies the WHERE clauses only.
func (f *OperationQueryFilter) ApplyConditions(builder sq.SelectBuilder) sq.SelectBuilder {
	for _, filter := range f.conditions {
		builder = filter(builder)
	}
	return builder
}

func (f *OperationQueryFilter) Apply(builder sq.SelectBuilder) sq.SelectBuilder {
	builder = f.ApplyConditions(builder)
	for _, filter := range f.paging {
		builder = filter(builder)
	}
	return builder
}
