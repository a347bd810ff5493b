package auditsession

import (
	"github.com/iota-uz/backoffice/modules/audit/domain/value_objects/fieldvalue"
)

// AlwaysExcluded keys never appear in a diff.
var AlwaysExcluded = []string{"updated_at"}

// DefaultExcluded are the record bookkeeping keys hidden by DefaultOptions.
var DefaultExcluded = []string{"id", "agent_id", "created_at"}

// ItemExcluded are ignored when comparing items of nested lists.
var ItemExcluded = []string{"id", "created_at", "updated_at"}

type Options struct {
	// Exclude lists keys to skip in addition to AlwaysExcluded.
	Exclude []string
	// FieldOrder puts these keys first, in this order. Other keys follow in record order.
	FieldOrder []string
	// ItemExclude is applied inside nested list items. Nil means ItemExcluded.
	ItemExclude []string
}

func DefaultOptions() Options {
	return Options{Exclude: DefaultExcluded}
}

func (o Options) WithFieldOrder(order []string) Options {
	o.FieldOrder = order
	return o
}

type ItemChangeKind string

const (
	ItemAdded    ItemChangeKind = "added"
	ItemRemoved  ItemChangeKind = "removed"
	ItemModified ItemChangeKind = "modified"
)

// ItemChange describes one position of a nested list of records.
type ItemChange struct {
	Index  int
	Kind   ItemChangeKind
	Old    fieldvalue.Value
	New    fieldvalue.Value
	Fields []Change
}

// Change is one changed key. Items is set when the key holds a list of records.
type Change struct {
	Key   string
	Old   fieldvalue.Value
	New   fieldvalue.Value
	Items []ItemChange
}

// Diff compares the keys of newValues against oldValues.
func Diff(oldValues, newValues *fieldvalue.Object, opts Options) []Change {
	skip := excludeSet(opts.Exclude)
	changed := map[string]Change{}
	var natural []string
	newValues.Range(func(key string, nv fieldvalue.Value) bool {
		if _, ok := skip[key]; ok {
			return true
		}
		if c, ok := compare(key, oldValues.Lookup(key), nv, opts); ok {
			changed[key] = c
			natural = append(natural, key)
		}
		return true
	})
	return ordered(changed, natural, opts.FieldOrder)
}

// Removed reports every key of oldValues as changed to null.
func Removed(oldValues *fieldvalue.Object, opts Options) []Change {
	skip := excludeSet(opts.Exclude)
	changed := map[string]Change{}
	var natural []string
	oldValues.Range(func(key string, ov fieldvalue.Value) bool {
		if _, ok := skip[key]; ok {
			return true
		}
		if fieldvalue.Normalize(ov).IsNull() {
			return true
		}
		changed[key] = Change{Key: key, Old: ov, New: fieldvalue.Null()}
		natural = append(natural, key)
		return true
	})
	return ordered(changed, natural, opts.FieldOrder)
}

func compare(key string, ov, nv fieldvalue.Value, opts Options) (Change, bool) {
	if oldItems, newItems, ok := recordLists(ov, nv); ok {
		items := reconcile(oldItems, newItems, opts)
		if len(items) == 0 {
			return Change{}, false
		}
		return Change{Key: key, Old: ov, New: nv, Items: items}, true
	}
	if fieldvalue.Equal(ov, nv) {
		return Change{}, false
	}
	return Change{Key: key, Old: ov, New: nv}, true
}

// reconcile pairs items positionally.
func reconcile(oldItems, newItems []fieldvalue.Value, opts Options) []ItemChange {
	itemOpts := Options{Exclude: opts.ItemExclude, ItemExclude: opts.ItemExclude}
	if itemOpts.Exclude == nil {
		itemOpts.Exclude = ItemExcluded
		itemOpts.ItemExclude = ItemExcluded
	}
	n := max(len(oldItems), len(newItems))
	var out []ItemChange
	for i := 0; i < n; i++ {
		switch {
		case i >= len(oldItems):
			out = append(out, ItemChange{Index: i, Kind: ItemAdded, Old: fieldvalue.Null(), New: newItems[i]})
		case i >= len(newItems):
			out = append(out, ItemChange{Index: i, Kind: ItemRemoved, Old: oldItems[i], New: fieldvalue.Null()})
		default:
			oldObj, _ := oldItems[i].Object()
			newObj, _ := newItems[i].Object()
			if fields := itemDiff(oldObj, newObj, itemOpts); len(fields) > 0 {
				out = append(out, ItemChange{Index: i, Kind: ItemModified, Old: oldItems[i], New: newItems[i], Fields: fields})
			}
		}
	}
	return out
}

// itemDiff compares the union of both items' keys; a sub-field dropped from the
// new item is reported as changed to null.
func itemDiff(oldObj, newObj *fieldvalue.Object, opts Options) []Change {
	changes := Diff(oldObj, newObj, opts)
	skip := excludeSet(opts.Exclude)
	oldObj.Range(func(key string, ov fieldvalue.Value) bool {
		if _, ok := skip[key]; ok || newObj.Has(key) {
			return true
		}
		if c, ok := compare(key, ov, fieldvalue.Null(), opts); ok {
			changes = append(changes, c)
		}
		return true
	})
	return changes
}

// recordLists reports whether both sides are lists of objects (a null side counts as empty)
// and at least one side is non-empty.
func recordLists(ov, nv fieldvalue.Value) ([]fieldvalue.Value, []fieldvalue.Value, bool) {
	oldItems, okOld := objectItems(ov)
	newItems, okNew := objectItems(nv)
	if !okOld || !okNew || len(oldItems)+len(newItems) == 0 {
		return nil, nil, false
	}
	return oldItems, newItems, true
}

func objectItems(v fieldvalue.Value) ([]fieldvalue.Value, bool) {
	if v.IsNull() {
		return nil, true
	}
	items, ok := v.Items()
	if !ok {
		return nil, false
	}
	for _, item := range items {
		if item.Kind() != fieldvalue.KindObject {
			return nil, false
		}
	}
	return items, true
}

func excludeSet(extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(AlwaysExcluded)+len(extra))
	for _, k := range AlwaysExcluded {
		set[k] = struct{}{}
	}
	for _, k := range extra {
		set[k] = struct{}{}
	}
	return set
}

func ordered(changed map[string]Change, natural, fieldOrder []string) []Change {
	out := make([]Change, 0, len(changed))
	for _, k := range fieldOrder {
		if c, ok := changed[k]; ok {
			out = append(out, c)
			delete(changed, k)
		}
	}
	for _, k := range natural {
		if c, ok := changed[k]; ok {
			out = append(out, c)
		}
	}
	return out
}
