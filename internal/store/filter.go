package store

import (
	"fmt"
	"strings"

	"github.com/Harshitk-cp/healthmem/internal/domain"
)

// whereBuilder accumulates AND-ed conditions with positional arguments.
type whereBuilder struct {
	conds []string
	args  []any
}

func (b *whereBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *whereBuilder) add(cond string) {
	b.conds = append(b.conds, cond)
}

func (b *whereBuilder) sql() string {
	if len(b.conds) == 0 {
		return "TRUE"
	}
	return strings.Join(b.conds, " AND ")
}

// addFilters translates metadata filters into conditions over the
// conversation_turns category column and metadata jsonb. Field names are
// always bound as arguments.
func (b *whereBuilder) addFilters(filters []domain.Filter) error {
	for _, f := range filters {
		if f.Field == "" {
			return fmt.Errorf("filter field is empty")
		}

		if f.Kind == domain.FilterRange {
			if f.Field == domain.FieldCategory {
				return fmt.Errorf("range filter on %q is not supported", f.Field)
			}
			field := b.arg(f.Field) + "::text"
			num := fmt.Sprintf("(CASE WHEN jsonb_typeof(metadata->%s) = 'number' THEN (metadata->>%s)::double precision END)", field, field)
			if f.Min == nil && f.Max == nil {
				b.add(num + " IS NOT NULL")
			}
			if f.Min != nil {
				b.add(fmt.Sprintf("%s >= %s", num, b.arg(*f.Min)))
			}
			if f.Max != nil {
				b.add(fmt.Sprintf("%s <= %s", num, b.arg(*f.Max)))
			}
			continue
		}

		target := "category"
		if f.Field != domain.FieldCategory {
			target = fmt.Sprintf("metadata->>%s::text", b.arg(f.Field))
		}

		switch f.Kind {
		case domain.FilterEq:
			b.add(fmt.Sprintf("%s = %s", target, b.arg(f.Value)))
		case domain.FilterIn:
			values := f.Values
			if values == nil {
				values = []string{}
			}
			b.add(fmt.Sprintf("%s = ANY(%s)", target, b.arg(values)))
		default:
			return fmt.Errorf("unknown filter kind %q", f.Kind)
		}
	}
	return nil
}
