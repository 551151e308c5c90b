package internal

// IFD group names, matching the layout written to metadata backups.
const (
	GroupRoot    = "0th"
	GroupExif    = "Exif"
	GroupGPS     = "GPS"
	GroupInterop = "Interop"
	GroupThumb   = "1st"
)

// TagKind identifies which variant a TagValue holds.
type TagKind int

const (
	KindBinary TagKind = iota // raw bytes (ASCII-with-junk, undefined, maker notes)
	KindText                  // decoded string
	KindInteger               // single integral value
	KindRational              // numerator/denominator pair
	KindSequence              // multi-valued entry (e.g. BitsPerSample); never re-embedded
)

// TagValue is a tagged union over the value kinds an EXIF entry can carry.
// Exactly one of the payload fields is meaningful, selected by Kind.
type TagValue struct {
	Kind     TagKind
	Bytes    []byte
	Text     string
	Int      int64
	Num, Den int64
	Seq      []TagValue
}

// BinaryValue returns a TagValue holding raw bytes.
func BinaryValue(b []byte) TagValue { return TagValue{Kind: KindBinary, Bytes: b} }

// TextValue returns a TagValue holding a string.
func TextValue(s string) TagValue { return TagValue{Kind: KindText, Text: s} }

// IntegerValue returns a TagValue holding a single integer.
func IntegerValue(n int64) TagValue { return TagValue{Kind: KindInteger, Int: n} }

// RationalValue returns a TagValue holding a numerator/denominator pair.
func RationalValue(num, den int64) TagValue {
	return TagValue{Kind: KindRational, Num: num, Den: den}
}

// SequenceValue returns a TagValue holding multiple sub-values.
func SequenceValue(vals []TagValue) TagValue { return TagValue{Kind: KindSequence, Seq: vals} }

// IfdTags maps numeric tag ids to their values within one IFD group.
type IfdTags map[uint16]TagValue

// ExifTree is the raw EXIF structure: IFD group name -> tag id -> value,
// plus the handful of top-level entries that are not IFDs themselves
// (the embedded thumbnail image, mainly).
type ExifTree struct {
	Ifds  map[string]IfdTags
	Extra map[string]TagValue
}

// NewExifTree returns an empty tree with both maps allocated.
func NewExifTree() ExifTree {
	return ExifTree{Ifds: make(map[string]IfdTags), Extra: make(map[string]TagValue)}
}

// Group returns the named IFD group, allocating it on first use.
func (t ExifTree) Group(name string) IfdTags {
	ifd, ok := t.Ifds[name]
	if !ok {
		ifd = make(IfdTags)
		t.Ifds[name] = ifd
	}
	return ifd
}

// Empty reports whether the tree has no tags at all.
func (t ExifTree) Empty() bool {
	for _, ifd := range t.Ifds {
		if len(ifd) > 0 {
			return false
		}
	}
	return len(t.Extra) == 0
}

// RawMetadataBundle holds everything the extractor pulled out of one source
// image. Fields are nil when the source carries no such block or the block
// could not be read. The bundle is created once per file and never mutated
// after extraction.
type RawMetadataBundle struct {
	Exif       *ExifTree      // parsed EXIF, nil if absent or unreadable
	ICCProfile []byte         // raw ICC color profile
	XMP        []byte         // raw XMP packet
	OtherInfo  map[string]any // anything else the container surfaced
}

// HasExif reports whether usable EXIF data was extracted.
func (b *RawMetadataBundle) HasExif() bool {
	return b != nil && b.Exif != nil && !b.Exif.Empty()
}

// ExifFieldCount counts the tags across all groups, for display purposes.
func (b *RawMetadataBundle) ExifFieldCount() int {
	if b == nil || b.Exif == nil {
		return 0
	}
	n := len(b.Exif.Extra)
	for _, ifd := range b.Exif.Ifds {
		n += len(ifd)
	}
	return n
}

// ConversionResult is the per-file outcome used for reporting.
type ConversionResult struct {
	Source       string
	Output       string
	OriginalSize int64
	OutputSize   int64
	Timestamp    string // resolved EXIF timestamp, empty if none
	Err          error
}

// Reduction returns the size reduction as a percentage of the original size.
func (r ConversionResult) Reduction() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return float64(r.OriginalSize-r.OutputSize) / float64(r.OriginalSize) * 100
}
