package scene

// KindModel is the object type for externally-resolved model assets.
// Every other type value is treated as a generic primitive.
const KindModel = "glb"

// Object is one placed entity in a room's scene. Optional attributes are
// present on the wire only when a create or update explicitly set them;
// the server never fabricates geometry beyond position.
type Object struct {
	ID       int64     `json:"id"`
	Type     string    `json:"type"`
	Position []float64 `json:"position"`
	Rotation []float64 `json:"rotation,omitempty"`
	Scale    []float64 `json:"scale,omitempty"`

	// Color applies to primitives only.
	Color string `json:"color,omitempty"`
	// ModelName applies to the model-asset variant only.
	ModelName string `json:"modelName,omitempty"`
}

// NewObject carries the creator-supplied fields for Store.Create.
// Nil/empty optional fields are omitted from the stored record.
type NewObject struct {
	Type      string
	Position  []float64
	Rotation  []float64
	Scale     []float64
	Color     string
	ModelName string
}

// Patch carries a partial update for Store.Update. Only non-nil fields
// are merged; unrelated attributes on the stored record are untouched.
type Patch struct {
	Position []float64
	Rotation []float64
	Scale    []float64
}

// clone returns a copy safe to hand to encoders outside the room lock.
func (o *Object) clone() Object {
	c := *o
	c.Position = append([]float64(nil), o.Position...)
	if o.Rotation != nil {
		c.Rotation = append([]float64(nil), o.Rotation...)
	}
	if o.Scale != nil {
		c.Scale = append([]float64(nil), o.Scale...)
	}
	return c
}
