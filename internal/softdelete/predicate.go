package softdelete

import (
	"github.com/Masterminds/squirrel"
)

// visible builds "own marker IS NULL" intersected, per dependent, with a
// membership test of the foreign key against the parent's rows: the parent's own
// visible rows when it is soft-deletable, otherwise any existing row.
// Caller holds the registry read lock.
func (n *node) visible() squirrel.Sqlizer {
	own := squirrel.Eq{n.def.Qualified(n.marker): nil}
	if len(n.deps) == 0 {
		return own
	}

	pred := squirrel.And{own}
	for _, d := range n.deps {
		parents := squirrel.
			Select(d.parent.Qualified(d.parent.PrimaryKey())).
			From(d.parent.Table)
		if d.soft != nil {
			parents = parents.Where(d.soft.visible())
		}
		pred = append(pred, squirrel.Expr(n.def.Qualified(d.relation.ForeignKey)+" IN (?)", parents))
	}
	return pred
}

// hiddenOnly is every existing row minus the visible ones, so rows hidden
// directly and rows hidden through an ancestor are both captured.
func (n *node) hiddenOnly() squirrel.Sqlizer {
	pk := n.def.Qualified(n.def.PrimaryKey())
	visibleIDs := squirrel.
		Select(pk).
		From(n.def.Table).
		Where(n.visible())
	return squirrel.Expr(pk+" NOT IN (?)", visibleIDs)
}
