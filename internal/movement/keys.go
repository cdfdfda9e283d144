package movement

import (
	"strconv"
	"strings"
)

// KeyResolver maps the identifiers movements are recorded under (a catalog id
// or a free-text item name) to one entity key, so sales recorded by name and
// receipts recorded by id land on the same row.
type KeyResolver struct {
	byName map[string]int64
	names  map[int64]string
}

// NewKeyResolver indexes a catalog of id to display name.
func NewKeyResolver(catalog map[int64]string) *KeyResolver {
	r := &KeyResolver{
		byName: make(map[string]int64, len(catalog)),
		names:  make(map[int64]string, len(catalog)),
	}
	for id, name := range catalog {
		r.names[id] = name
		norm := normalizeName(name)
		if norm == "" {
			continue
		}
		// lowest id wins on duplicate names so resolution is deterministic
		if existing, ok := r.byName[norm]; !ok || id < existing {
			r.byName[norm] = id
		}
	}
	return r
}

func normalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// IDKey is the entity key for a catalog id.
func IDKey(id int64) string {
	return "id:" + strconv.FormatInt(id, 10)
}

// NameKey is the entity key for a name that is not in the catalog.
func NameKey(name string) string {
	return "name:" + normalizeName(name)
}

// Key resolves an id (when valid) or a name to an entity key.
func (r *KeyResolver) Key(id int64, hasID bool, name string) string {
	if hasID && id > 0 {
		return IDKey(id)
	}
	if catalogID, ok := r.byName[normalizeName(name)]; ok {
		return IDKey(catalogID)
	}
	return NameKey(name)
}

// Name returns the display name for an entity key.
func (r *KeyResolver) Name(key string) string {
	if rest, ok := strings.CutPrefix(key, "id:"); ok {
		id, err := strconv.ParseInt(rest, 10, 64)
		if err == nil {
			if name, ok := r.names[id]; ok {
				return name
			}
		}
		return key
	}
	return strings.TrimPrefix(key, "name:")
}

// Add accumulates qty into m under the resolved key.
func (r *KeyResolver) Add(m map[string]int64, id int64, hasID bool, name string, qty int64) {
	m[r.Key(id, hasID, name)] += qty
}

// Label fills in display names on rows.
func (r *KeyResolver) Label(rows []Row) []Row {
	for i := range rows {
		rows[i].Name = r.Name(rows[i].EntityKey)
	}
	return rows
}
