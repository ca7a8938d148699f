package postgres

import (
	"reflect"
	"slices"
	"sync"
)

// column maps a db tag to the index path of its field, embedded structs
// included.
type column struct {
	name string
	path []int
}

// plans caches the flattened column list per struct type.
var plans sync.Map // reflect.Type -> []column

func planFor(t reflect.Type) []column {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := plans.Load(t); ok {
		return cached.([]column)
	}
	var cols []column
	if t.Kind() == reflect.Struct {
		cols = appendColumns(nil, t, nil)
	}
	actual, _ := plans.LoadOrStore(t, cols)
	return actual.([]column)
}

func appendColumns(cols []column, t reflect.Type, prefix []int) []column {
	for i := range t.NumField() {
		f := t.Field(i)
		path := append(slices.Clip(prefix), i)

		if f.Anonymous {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				cols = appendColumns(cols, ft, path)
			}
			continue
		}

		switch name := f.Tag.Get("db"); name {
		case "", "-":
		default:
			cols = append(cols, column{name: name, path: path})
		}
	}
	return cols
}

// ExtractDBColumns lists the db-tagged columns of T in field order, with
// embedded struct columns inlined where the embedding appears. Repositories
// call it once into a package variable.
func ExtractDBColumns[T any]() []string {
	plan := planFor(reflect.TypeFor[T]())
	names := make([]string, len(plan))
	for i, c := range plan {
		names[i] = c.name
	}
	return names
}

// StructToMap returns the db-tagged fields of v keyed by column name, ready
// for squirrel's SetMap. Columns behind a nil embedded pointer are left out.
// It returns nil when v is not a struct or a pointer to one.
func StructToMap(v any) map[string]any {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	plan := planFor(rv.Type())
	out := make(map[string]any, len(plan))
	for _, c := range plan {
		fv, err := rv.FieldByIndexErr(c.path)
		if err != nil {
			continue
		}
		out[c.name] = fv.Interface()
	}
	return out
}

// OmitColumns returns cols without the named columns, preserving order.
func OmitColumns(cols []string, omit ...string) []string {
	return slices.DeleteFunc(slices.Clone(cols), func(c string) bool {
		return slices.Contains(omit, c)
	})
}
