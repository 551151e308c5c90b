package internal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
	"go.uber.org/zap"
)

// Child IFD pointer tags. The pointed-to groups are walked separately, so the
// pointers themselves never enter the tree.
const (
	tagPointerExif    = 0x8769
	tagPointerGPS     = 0x8825
	tagPointerInterop = 0xa005
)

// ifdGroups maps our group names onto the standard IFD identities.
var ifdGroups = []struct {
	name     string
	identity *exifcommon.IfdIdentity
}{
	{GroupRoot, exifcommon.IfdStandardIfdIdentity},
	{GroupExif, exifcommon.IfdExifStandardIfdIdentity},
	{GroupGPS, exifcommon.IfdGpsInfoStandardIfdIdentity},
	{GroupInterop, exifcommon.IfdExifIopStandardIfdIdentity},
}

// ParseExif decodes a raw EXIF blob into an ExifTree. Returns nil with no
// error when the blob holds no usable IFDs; parsing problems on individual
// tags drop just that tag.
func ParseExif(raw []byte) (tree *ExifTree, err error) {
	// The underlying parser panics on some malformed inputs; treat those the
	// same as a parse error.
	defer func() {
		if r := recover(); r != nil {
			tree = nil
			err = fmt.Errorf("exif parse panic: %v", r)
		}
	}()

	if len(raw) == 0 {
		return nil, nil
	}

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("ifd mapping: %w", err)
	}
	ti := exif.NewTagIndex()

	_, index, err := exif.Collect(im, ti, raw)
	if err != nil {
		return nil, fmt.Errorf("collect ifds: %w", err)
	}

	t := NewExifTree()

	for _, group := range ifdGroups {
		ifd, ok := index.Lookup[group.identity.String()]
		if !ok {
			continue
		}
		collectIfdTags(t.Group(group.name), ifd)
	}

	// Thumbnail IFD hangs off the root as the "next" IFD.
	if next := index.RootIfd.NextIfd(); next != nil {
		collectIfdTags(t.Group(GroupThumb), next)
		if thumb, err := next.Thumbnail(); err == nil && len(thumb) > 0 {
			t.Extra["thumbnail"] = BinaryValue(thumb)
		}
	}

	if t.Empty() {
		return nil, nil
	}
	return &t, nil
}

func collectIfdTags(dst IfdTags, ifd *exif.Ifd) {
	for _, ite := range ifd.Entries() {
		id := ite.TagId()
		if id == tagPointerExif || id == tagPointerGPS || id == tagPointerInterop {
			continue
		}

		val, ok := tagValueFromEntry(ite)
		if !ok {
			Log.Debug("skipping undecodable exif entry", zap.Uint16("tag", id))
			continue
		}
		dst[id] = val
	}
}

// tagValueFromEntry converts one parsed IFD entry into the tagged union.
// Multi-valued numeric entries become sequences, which sanitization later
// drops, mirroring how single-value-only re-embedding behaves upstream.
func tagValueFromEntry(ite *exif.IfdTagEntry) (TagValue, bool) {
	switch ite.TagType() {
	case exifcommon.TypeAscii, exifcommon.TypeAsciiNoNul:
		v, err := ite.Value()
		if err != nil {
			return rawFallback(ite)
		}
		s, ok := v.(string)
		if !ok {
			return rawFallback(ite)
		}
		return TextValue(s), true

	case exifcommon.TypeByte, exifcommon.TypeUndefined:
		return rawFallback(ite)

	case exifcommon.TypeShort:
		v, err := ite.Value()
		if err != nil {
			return TagValue{}, false
		}
		if vals, ok := v.([]uint16); ok {
			ints := make([]int64, len(vals))
			for i, n := range vals {
				ints[i] = int64(n)
			}
			return integerOrSequence(ints), true
		}
		return TagValue{}, false

	case exifcommon.TypeLong:
		v, err := ite.Value()
		if err != nil {
			return TagValue{}, false
		}
		if vals, ok := v.([]uint32); ok {
			ints := make([]int64, len(vals))
			for i, n := range vals {
				ints[i] = int64(n)
			}
			return integerOrSequence(ints), true
		}
		return TagValue{}, false

	case exifcommon.TypeSignedLong:
		v, err := ite.Value()
		if err != nil {
			return TagValue{}, false
		}
		if vals, ok := v.([]int32); ok {
			ints := make([]int64, len(vals))
			for i, n := range vals {
				ints[i] = int64(n)
			}
			return integerOrSequence(ints), true
		}
		return TagValue{}, false

	case exifcommon.TypeRational:
		v, err := ite.Value()
		if err != nil {
			return TagValue{}, false
		}
		if vals, ok := v.([]exifcommon.Rational); ok {
			if len(vals) == 1 {
				return RationalValue(int64(vals[0].Numerator), int64(vals[0].Denominator)), true
			}
			seq := make([]TagValue, len(vals))
			for i, r := range vals {
				seq[i] = RationalValue(int64(r.Numerator), int64(r.Denominator))
			}
			return SequenceValue(seq), true
		}
		return TagValue{}, false

	case exifcommon.TypeSignedRational:
		v, err := ite.Value()
		if err != nil {
			return TagValue{}, false
		}
		if vals, ok := v.([]exifcommon.SignedRational); ok {
			if len(vals) == 1 {
				return RationalValue(int64(vals[0].Numerator), int64(vals[0].Denominator)), true
			}
			seq := make([]TagValue, len(vals))
			for i, r := range vals {
				seq[i] = RationalValue(int64(r.Numerator), int64(r.Denominator))
			}
			return SequenceValue(seq), true
		}
		return TagValue{}, false

	default:
		return TagValue{}, false
	}
}

func rawFallback(ite *exif.IfdTagEntry) (TagValue, bool) {
	raw, err := ite.GetRawBytes()
	if err != nil {
		return TagValue{}, false
	}
	// Copy: the slice aliases the decoder's buffer.
	return BinaryValue(bytes.Clone(raw)), true
}

func integerOrSequence(vals []int64) TagValue {
	if len(vals) == 1 {
		return IntegerValue(vals[0])
	}
	seq := make([]TagValue, len(vals))
	for i, n := range vals {
		seq[i] = IntegerValue(n)
	}
	return SequenceValue(seq)
}

// BuildExif serializes a sanitized tree back into a TIFF-structured EXIF
// blob, suitable for a WebP EXIF chunk. Only the four standard groups are
// re-embedded; thumbnail entries survive in the metadata backup instead.
func BuildExif(tree *ExifTree) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data = nil
			err = fmt.Errorf("exif build panic: %v", r)
		}
	}()

	if tree == nil || tree.Empty() {
		return nil, errors.New("no exif to build")
	}

	im, err := exifcommon.NewIfdMappingWithStandard()
	if err != nil {
		return nil, fmt.Errorf("ifd mapping: %w", err)
	}
	ti := exif.NewTagIndex()
	byteOrder := exifcommon.EncodeDefaultByteOrder

	rootIb := exif.NewIfdBuilder(im, ti, exifcommon.IfdStandardIfdIdentity, byteOrder)
	builders := map[string]*exif.IfdBuilder{GroupRoot: rootIb}

	if len(tree.Ifds[GroupExif]) > 0 || len(tree.Ifds[GroupInterop]) > 0 {
		exifIb := exif.NewIfdBuilder(im, ti, exifcommon.IfdExifStandardIfdIdentity, byteOrder)
		if err := rootIb.AddChildIb(exifIb); err != nil {
			return nil, fmt.Errorf("add exif ifd: %w", err)
		}
		builders[GroupExif] = exifIb

		if len(tree.Ifds[GroupInterop]) > 0 {
			iopIb := exif.NewIfdBuilder(im, ti, exifcommon.IfdExifIopStandardIfdIdentity, byteOrder)
			if err := exifIb.AddChildIb(iopIb); err != nil {
				return nil, fmt.Errorf("add interop ifd: %w", err)
			}
			builders[GroupInterop] = iopIb
		}
	}

	if len(tree.Ifds[GroupGPS]) > 0 {
		gpsIb := exif.NewIfdBuilder(im, ti, exifcommon.IfdGpsInfoStandardIfdIdentity, byteOrder)
		if err := rootIb.AddChildIb(gpsIb); err != nil {
			return nil, fmt.Errorf("add gps ifd: %w", err)
		}
		builders[GroupGPS] = gpsIb
	}

	added := 0
	for _, group := range ifdGroups {
		tags := tree.Ifds[group.name]
		ib := builders[group.name]
		if len(tags) == 0 || ib == nil {
			continue
		}

		for id, val := range tags {
			tagType, encoded, ok := encodeTagValue(ti, group.identity, id, val, byteOrder)
			if !ok {
				Log.Debug("cannot encode exif tag, dropping",
					zap.String("group", group.name), zap.Uint16("tag", id))
				continue
			}

			bt := exif.NewBuilderTag(
				group.identity.UnindexedString(), id, tagType,
				exif.NewIfdBuilderTagValueFromBytes(encoded), byteOrder)
			if err := ib.Add(bt); err != nil {
				Log.Debug("builder rejected exif tag",
					zap.String("group", group.name), zap.Uint16("tag", id), zap.Error(err))
				continue
			}
			added++
		}
	}

	if added == 0 {
		return nil, errors.New("no encodable exif tags")
	}

	ibe := exif.NewIfdByteEncoder()
	data, err = ibe.EncodeToExif(rootIb)
	if err != nil {
		return nil, fmt.Errorf("encode exif: %w", err)
	}
	return data, nil
}

// encodeTagValue renders one tag value into its on-wire bytes. The tag index
// decides between ASCII and opaque bytes, and between short and long integer
// widths, so readers that check declared types stay happy.
func encodeTagValue(ti *exif.TagIndex, ii *exifcommon.IfdIdentity, id uint16, val TagValue, byteOrder binary.ByteOrder) (exifcommon.TagTypePrimitive, []byte, bool) {
	indexed, err := ti.Get(ii, id)
	if err != nil {
		indexed = nil
	}

	supports := func(t exifcommon.TagTypePrimitive) bool {
		return indexed != nil && indexed.DoesSupportType(t)
	}

	switch val.Kind {
	case KindBinary:
		if supports(exifcommon.TypeAscii) {
			b := val.Bytes
			if len(b) == 0 || b[len(b)-1] != 0 {
				b = append(bytes.Clone(b), 0)
			}
			return exifcommon.TypeAscii, b, true
		}
		return exifcommon.TypeUndefined, val.Bytes, true

	case KindInteger:
		if val.Int >= 0 && val.Int <= 0xFFFF && supports(exifcommon.TypeShort) {
			b := make([]byte, 2)
			byteOrder.PutUint16(b, uint16(val.Int))
			return exifcommon.TypeShort, b, true
		}
		b := make([]byte, 4)
		if val.Int < 0 {
			byteOrder.PutUint32(b, uint32(int32(val.Int)))
			return exifcommon.TypeSignedLong, b, true
		}
		byteOrder.PutUint32(b, uint32(val.Int))
		return exifcommon.TypeLong, b, true

	case KindRational:
		b := make([]byte, 8)
		if val.Num < 0 || val.Den < 0 {
			byteOrder.PutUint32(b[:4], uint32(int32(val.Num)))
			byteOrder.PutUint32(b[4:], uint32(int32(val.Den)))
			return exifcommon.TypeSignedRational, b, true
		}
		byteOrder.PutUint32(b[:4], uint32(val.Num))
		byteOrder.PutUint32(b[4:], uint32(val.Den))
		return exifcommon.TypeRational, b, true

	default:
		// Text never reaches here (sanitization re-encodes it to binary) and
		// sequences are not re-embedded.
		return 0, nil, false
	}
}
