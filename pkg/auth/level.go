package auth

// AccessLevel is an ordered permission value granted at some scope.
// None < ReadOnly < ReadWrite.
type AccessLevel int

const (
	// None grants no access
	None AccessLevel = iota
	// ReadOnly grants read access
	ReadOnly
	// ReadWrite grants read and write access
	ReadWrite
)

// Wildcard is the reserved database or collection name meaning "default
// applied when no more specific entry exists". Granting ("*", "*")
// ReadWrite is the convention for blanket root-level access.
const Wildcard = "*"

// Merge returns the higher of two access levels
func Merge(a, b AccessLevel) AccessLevel {
	if b > a {
		return b
	}
	return a
}

// String returns the wire representation of the level
func (l AccessLevel) String() string {
	switch l {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	default:
		return "none"
	}
}

// ParseAccessLevel converts a wire representation back to a level.
// Unknown strings parse to None.
func ParseAccessLevel(s string) AccessLevel {
	switch s {
	case "ro":
		return ReadOnly
	case "rw":
		return ReadWrite
	default:
		return None
	}
}

// Source tags where an account's truth lives
type Source int

const (
	// SourceCollection marks accounts stored in the internal user collection
	SourceCollection Source = iota
	// SourceExternal marks accounts confirmed by an external directory
	SourceExternal
)

// String returns the wire representation of the source
func (s Source) String() string {
	if s == SourceExternal {
		return "EXTERNAL"
	}
	return "COLLECTION"
}

// ParseSource converts a wire representation back to a source.
// Unknown strings parse to SourceCollection.
func ParseSource(s string) Source {
	if s == "EXTERNAL" {
		return SourceExternal
	}
	return SourceCollection
}
