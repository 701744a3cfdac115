package scene

import "sort"

// Store holds one room's objects and owns its id allocation. It is not
// internally synchronized: the owning room serializes all access behind
// a single mutex, together with the room's lock table and member set.
type Store struct {
	nextID  int64
	objects map[int64]*Object
}

// NewStore returns an empty store with the id counter at 1.
func NewStore() *Store {
	return &Store{nextID: 1, objects: map[int64]*Object{}}
}

// NextID returns the current counter value and advances it. Ids are never
// reused, even after deletion, so a broadcast referencing an id names
// exactly one creation event for the room's lifetime.
func (s *Store) NextID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

// Create allocates an id and inserts a record built from in. Optional
// fields are copied only when supplied; color is dropped for model assets
// and modelName for primitives.
func (s *Store) Create(in NewObject) Object {
	o := &Object{
		ID:       s.NextID(),
		Type:     in.Type,
		Position: append([]float64(nil), in.Position...),
	}
	if in.Rotation != nil {
		o.Rotation = append([]float64(nil), in.Rotation...)
	}
	if in.Scale != nil {
		o.Scale = append([]float64(nil), in.Scale...)
	}
	if in.Type == KindModel {
		o.ModelName = in.ModelName
	} else {
		o.Color = in.Color
	}
	s.objects[o.ID] = o
	return o.clone()
}

// Get returns a copy of the object and whether it exists.
func (s *Store) Get(id int64) (Object, bool) {
	o, ok := s.objects[id]
	if !ok {
		return Object{}, false
	}
	return o.clone(), true
}

// Update merges the patch into an existing record and returns the merged
// result. Unknown ids are a no-op; callers must not broadcast then.
func (s *Store) Update(id int64, p Patch) (Object, bool) {
	o, ok := s.objects[id]
	if !ok {
		return Object{}, false
	}
	if p.Position != nil {
		o.Position = append([]float64(nil), p.Position...)
	}
	if p.Rotation != nil {
		o.Rotation = append([]float64(nil), p.Rotation...)
	}
	if p.Scale != nil {
		o.Scale = append([]float64(nil), p.Scale...)
	}
	return o.clone(), true
}

// Delete removes the object, reporting whether it was present.
func (s *Store) Delete(id int64) bool {
	if _, ok := s.objects[id]; !ok {
		return false
	}
	delete(s.objects, id)
	return true
}

// Len returns the number of live objects.
func (s *Store) Len() int { return len(s.objects) }

// Snapshot returns copies of all objects ordered by id, for the initial
// full-state sync to a newly joined connection. Never nil, so an empty
// room encodes as [] rather than null.
func (s *Store) Snapshot() []Object {
	out := make([]Object, 0, len(s.objects))
	for _, o := range s.objects {
		out = append(out, o.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
