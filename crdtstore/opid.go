package crdtstore

// OpID identifies one operation: a Lamport timestamp plus the issuing
// actor. An actor never reuses a Lamport value, so OpIDs are unique;
// they order by (Lamport, Actor). The zero OpID is the list head anchor
// and the unset register stamp.
type OpID struct {
	Lamport uint64 `json:"l"`
	Actor   string `json:"a"`
}

// IsZero reports whether id is the zero OpID.
func (id OpID) IsZero() bool {
	return id.Lamport == 0 && id.Actor == ""
}

// Less reports whether id orders before o.
func (id OpID) Less(o OpID) bool {
	if id.Lamport != o.Lamport {
		return id.Lamport < o.Lamport
	}
	return id.Actor < o.Actor
}

// VersionVector maps actor ids to the highest update sequence applied
// from that actor. It is the frontier handed to ExportUpdates to fetch
// what a peer has not seen yet.
type VersionVector map[string]uint64

// Clone returns a copy of vv.
func (vv VersionVector) Clone() VersionVector {
	c := make(VersionVector, len(vv))
	for a, s := range vv {
		c[a] = s
	}
	return c
}

// Includes reports whether vv covers seq from actor.
func (vv VersionVector) Includes(actor string, seq uint64) bool {
	return vv[actor] >= seq
}
