package metadata

import (
	"veil/internal/core/apperror"
)

// Resolve finds relationship name on def and checks it can be walked from a
// child row to exactly one parent row through a foreign key stored on the child.
// Any other shape cannot be expressed as a scalar membership test and is rejected.
func Resolve(def EntityDef, name string) (RelationDef, error) {
	rel, ok := def.Relation(name)
	if !ok {
		return RelationDef{}, apperror.NewRelationshipNotFound(def.Name, name)
	}

	if rel.Kind != BelongsTo {
		return RelationDef{}, apperror.NewInvalidRelationshipShape(def.Name, name, string(rel.Kind))
	}

	if rel.ForeignKey == "" {
		return RelationDef{}, apperror.NewInvalidRelationshipShape(def.Name, name, "belongs_to without foreign key")
	}
	if _, ok := def.Column(rel.ForeignKey); !ok {
		return RelationDef{}, apperror.NewInvalidRelationshipShape(def.Name, name, "belongs_to with foreign key outside "+def.Table).
			WithDetail("foreignKey", rel.ForeignKey)
	}

	return rel, nil
}
