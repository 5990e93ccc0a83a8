package metadata

import (
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
)

// Inspect derives an EntityDef from the "db" and "rel" tags of struct T.
//
//	type Comment struct {
//		ID        id.ID      `db:"id"`
//		PostID    id.ID      `db:"post_id"`
//		DeletedAt *time.Time `db:"deleted_at"`
//		Post      *Post      `db:"-" rel:"belongs_to,foreign_key:post_id,target:post"`
//	}
//
// Pointer and sql.Null* fields are nullable. A rel tag without target uses the
// lower-cased type name of the field; without name it uses the snake-cased field name.
func Inspect[T any](name, table string) (EntityDef, error) {
	var zero T
	return InspectType(reflect.TypeOf(zero), name, table)
}

// InspectType is Inspect for a reflect.Type.
func InspectType(t reflect.Type, name, table string) (EntityDef, error) {
	t = indirect(t)
	if t == nil || t.Kind() != reflect.Struct {
		return EntityDef{}, fmt.Errorf("inspect %v: not a struct", t)
	}

	if name == "" {
		name = snakeCase(t.Name())
	}
	def := EntityDef{
		Name:  name,
		Table: table,
	}
	if err := inspectStruct(t, &def); err != nil {
		return EntityDef{}, err
	}
	return def, def.Validate()
}

func inspectStruct(t reflect.Type, def *EntityDef) error {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		// Embedded structs are flattened even when their type is unexported.
		if field.Anonymous && indirect(field.Type).Kind() == reflect.Struct {
			if _, tagged := field.Tag.Lookup("db"); !tagged {
				if err := inspectStruct(indirect(field.Type), def); err != nil {
					return err
				}
				continue
			}
		}

		if !field.IsExported() {
			continue
		}

		if tag, ok := field.Tag.Lookup("rel"); ok {
			rel, err := parseRelTag(field, tag)
			if err != nil {
				return fmt.Errorf("field %s: %w", field.Name, err)
			}
			def.Relations = append(def.Relations, rel)
		}

		col := dbName(field)
		if col == "" {
			continue
		}
		def.Columns = append(def.Columns, ColumnDef{
			Name:     col,
			Nullable: isNullable(field.Type),
		})
	}
	return nil
}

func parseRelTag(field reflect.StructField, tag string) (RelationDef, error) {
	parts := strings.Split(tag, ",")
	rel := RelationDef{
		Name: snakeCase(field.Name),
		Kind: RelationKind(strings.TrimSpace(parts[0])),
	}
	for _, opt := range parts[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(opt), ":")
		if !ok {
			return rel, fmt.Errorf("malformed rel option %q", opt)
		}
		switch key {
		case "name":
			rel.Name = value
		case "foreign_key":
			rel.ForeignKey = value
		case "target":
			rel.Target = value
		case "through":
			rel.Through = value
		default:
			return rel, fmt.Errorf("unknown rel option %q", key)
		}
	}
	if !rel.Kind.Valid() {
		return rel, fmt.Errorf("unknown relationship kind %q", rel.Kind)
	}
	if rel.Target == "" {
		elem := field.Type
		for elem.Kind() == reflect.Ptr || elem.Kind() == reflect.Slice {
			elem = elem.Elem()
		}
		rel.Target = strings.ToLower(elem.Name())
	}
	return rel, nil
}

// DBColumns returns the column names carried by "db" tags of t, embedded structs
// flattened. Results are cached per type.
func DBColumns(t reflect.Type) []string {
	t = indirect(t)
	if cached, ok := columnCache.Load(t); ok {
		return cached.([]string)
	}

	var cols []string
	if t != nil && t.Kind() == reflect.Struct {
		cols = extractColumns(t)
	}
	columnCache.Store(t, cols)
	return cols
}

var columnCache sync.Map // map[reflect.Type][]string

func extractColumns(t reflect.Type) []string {
	var cols []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && indirect(field.Type).Kind() == reflect.Struct {
			if _, tagged := field.Tag.Lookup("db"); !tagged {
				cols = append(cols, extractColumns(indirect(field.Type))...)
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		if col := dbName(field); col != "" {
			cols = append(cols, col)
		}
	}
	return cols
}

func dbName(field reflect.StructField) string {
	tag, ok := field.Tag.Lookup("db")
	if !ok {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}

var nullTypes = map[reflect.Type]bool{
	reflect.TypeOf(sql.NullString{}):  true,
	reflect.TypeOf(sql.NullTime{}):    true,
	reflect.TypeOf(sql.NullInt64{}):   true,
	reflect.TypeOf(sql.NullInt32{}):   true,
	reflect.TypeOf(sql.NullBool{}):    true,
	reflect.TypeOf(sql.NullFloat64{}): true,
}

func isNullable(t reflect.Type) bool {
	if t.Kind() == reflect.Ptr {
		return true
	}
	return nullTypes[t]
}

func indirect(t reflect.Type) reflect.Type {
	if t != nil && t.Kind() == reflect.Ptr {
		return t.Elem()
	}
	return t
}

// snakeCase converts "PostID" to "post_id".
func snakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
