package chm

// Point3 is a location in the mesh's projected reference frame, with Z
// as elevation in metres above the mesh's vertical datum.
type Point3 struct {
	X, Y, Z float64
}

// VegAttributes holds the vegetation properties of a face, when present.
type VegAttributes struct {
	CanopyHeight float64 // m
	LAI          float64 // leaf area index
}

// Face is a single triangular cell of the mesh. Its topology (id,
// neighbours, geometry) is immutable once the mesh is loaded; its
// variables live in a Store, not on the Face itself.
type Face struct {
	id int

	Centroid Point3
	Area     float64 // m^2
	Slope    float64 // radians
	Azimuth  float64 // radians, clockwise from north
	Normal   Point3  // unit outward normal

	neighbors [3]*Face // nil entry => domain edge
	Ghost     bool     // read-only halo face; never mutated by a domain module

	Vegetation *VegAttributes // nil if the face carries no vegetation data
}

// ID is the face's stable index into the owning Mesh.
func (f *Face) ID() int { return f.id }

// Neighbor returns the i'th neighbour (0, 1 or 2) of f, or nil if that
// side of the triangle is a domain edge.
func (f *Face) Neighbor(i int) *Face {
	if i < 0 || i > 2 {
		return nil
	}
	return f.neighbors[i]
}

// Neighbors returns all three neighbour slots, any of which may be nil.
func (f *Face) Neighbors() [3]*Face { return f.neighbors }

// Mesh is the read-only topological and geometric view the core
// consumes. The core never constructs a Mesh; a loader external to
// this package builds one and hands it to the Driver.
type Mesh interface {
	// NumFaces returns the number of faces in the mesh.
	NumFaces() int
	// Face returns the face at index i. Face(i) always returns the
	// same handle for the lifetime of a run.
	Face(i int) *Face
}

// StaticMesh is a Mesh backed by a plain slice, sufficient for meshes
// built in memory (tests, checkpoint replays, or a loader that has
// already resolved geometry and connectivity).
type StaticMesh struct {
	faces []*Face
}

// NewStaticMesh builds a Mesh from faces already carrying resolved
// neighbour pointers. Face ids must equal their index in faces.
func NewStaticMesh(faces []*Face) *StaticMesh {
	return &StaticMesh{faces: faces}
}

// NumFaces implements Mesh.
func (m *StaticMesh) NumFaces() int { return len(m.faces) }

// Face implements Mesh.
func (m *StaticMesh) Face(i int) *Face { return m.faces[i] }

// MeshBuilder assembles a StaticMesh face by face, linking neighbours
// by index the way the domain stack's own boundary-linking pass does
// (see framework.go's Cell.setup): geometry and neighbour indices are
// collected first, then resolved into pointers in one pass so that
// forward references (a face referring to a neighbour not yet added)
// are allowed.
type MeshBuilder struct {
	faces     []*Face
	neighborI [][3]int // -1 => domain edge
}

// NewMeshBuilder returns an empty builder.
func NewMeshBuilder() *MeshBuilder {
	return &MeshBuilder{}
}

// AddFace appends a face with the given geometry and neighbour indices
// (-1 for a domain edge) and returns its assigned id.
func (b *MeshBuilder) AddFace(centroid Point3, area, slope, azimuth float64, normal Point3, ghost bool, veg *VegAttributes, neighborIdx [3]int) int {
	id := len(b.faces)
	b.faces = append(b.faces, &Face{
		id:         id,
		Centroid:   centroid,
		Area:       area,
		Slope:      slope,
		Azimuth:    azimuth,
		Normal:     normal,
		Ghost:      ghost,
		Vegetation: veg,
	})
	b.neighborI = append(b.neighborI, neighborIdx)
	return id
}

// Build resolves neighbour indices into pointers and returns the
// finished mesh. Neighbour symmetry is not checked (a mesh loader may
// legitimately produce asymmetric adjacency at refinement boundaries);
// asymmetry is preserved as given.
func (b *MeshBuilder) Build() *StaticMesh {
	for i, f := range b.faces {
		for side := 0; side < 3; side++ {
			ni := b.neighborI[i][side]
			if ni < 0 {
				continue
			}
			f.neighbors[side] = b.faces[ni]
		}
	}
	return NewStaticMesh(b.faces)
}
