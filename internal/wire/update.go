package wire

// Opcodes for the three client-to-server message kinds defined on the wire
// once a session is connected.
const (
	OpTerminate       uint8 = 0x00
	OpLocationRequest uint8 = 0x01
	OpStateChanges    uint8 = 0x02
)

// Handshake-level constants shared by both protocol roles.
const (
	// VersionBit is the sole version this client supports.
	VersionBit uint8 = 0x80

	// FeatureSupports3D and FeatureSupportsAddRemove are the only feature
	// bits the protocol defines; any other bit set by the client is an
	// argument-validation error.
	FeatureSupports3D         uint32 = 0x80000000
	FeatureSupportsAddRemove  uint32 = 0x40000000
	FeatureKnownMask          uint32 = FeatureSupports3D | FeatureSupportsAddRemove
)

// RoleTagUAMP and RoleTagMVISP are the 4-byte ASCII role tags exchanged as
// the first part of the handshake.
const (
	RoleTagUAMP  = "UAMP"
	RoleTagMVISP = "MVIS"
)

// Update is a single decoded point for one agent: a timestamp in
// milliseconds, a position in millimetres, and a presence flag. Z is forced
// to 0 and Present is forced to true when the session did not negotiate 3D
// or add/remove support, respectively — the forcing happens at decode time
// so every subsequent byte-exact comparison sees the same forced values.
type Update struct {
	Time    uint32
	X, Y, Z uint32
	Present bool
}

// Equal reports whether two updates are byte-for-byte identical, the
// comparison the final-update invariant requires.
func (u Update) Equal(o Update) bool {
	return u == o
}
