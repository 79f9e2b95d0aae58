package format

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat is returned for channel order / data type pairs
// that have no defined pixel layout.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ChannelOrder is the order and count of channels stored in a pixel
type ChannelOrder int

const (
	R ChannelOrder = iota + 1
	A
	RG
	RA
	RGB
	RGBA
	BGRA
	ARGB
	ABGR
	Intensity
	Luminance
	Rx
	RGx
	RGBx
	SRGBA
	Depth
)

// ChannelType is the data type of every channel in a pixel
type ChannelType int

const (
	SNormInt8 ChannelType = iota + 1
	SNormInt16
	UNormInt8
	UNormInt16
	UNormShort565
	UNormShort555
	UNormInt101010
	SignedInt8
	SignedInt16
	SignedInt32
	UnsignedInt8
	UnsignedInt16
	UnsignedInt32
	HalfFloat
	Float
)

var orderNames = map[ChannelOrder]string{
	R:         "CL_R",
	A:         "CL_A",
	RG:        "CL_RG",
	RA:        "CL_RA",
	RGB:       "CL_RGB",
	RGBA:      "CL_RGBA",
	BGRA:      "CL_BGRA",
	ARGB:      "CL_ARGB",
	ABGR:      "CL_ABGR",
	Intensity: "CL_INTENSITY",
	Luminance: "CL_LUMINANCE",
	Rx:        "CL_Rx",
	RGx:       "CL_RGx",
	RGBx:      "CL_RGBx",
	SRGBA:     "CL_sRGBA",
	Depth:     "CL_DEPTH",
}

var typeNames = map[ChannelType]string{
	SNormInt8:      "CL_SNORM_INT8",
	SNormInt16:     "CL_SNORM_INT16",
	UNormInt8:      "CL_UNORM_INT8",
	UNormInt16:     "CL_UNORM_INT16",
	UNormShort565:  "CL_UNORM_SHORT_565",
	UNormShort555:  "CL_UNORM_SHORT_555",
	UNormInt101010: "CL_UNORM_INT_101010",
	SignedInt8:     "CL_SIGNED_INT8",
	SignedInt16:    "CL_SIGNED_INT16",
	SignedInt32:    "CL_SIGNED_INT32",
	UnsignedInt8:   "CL_UNSIGNED_INT8",
	UnsignedInt16:  "CL_UNSIGNED_INT16",
	UnsignedInt32:  "CL_UNSIGNED_INT32",
	HalfFloat:      "CL_HALF_FLOAT",
	Float:          "CL_FLOAT",
}

func (o ChannelOrder) String() string {
	if name, ok := orderNames[o]; ok {
		return name
	}
	return fmt.Sprintf("ChannelOrder(%d)", int(o))
}

func (t ChannelType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ChannelType(%d)", int(t))
}

// Format is a (channel order, channel data type) pair
type Format struct {
	Order ChannelOrder
	Type  ChannelType
}

func (f Format) String() string {
	return f.Order.String() + "/" + f.Type.String()
}

// ChannelCount returns the number of stored channels for an order.
// Padded orders (Rx, RGx, RGBx) count their padding channel: the x
// channel occupies storage but is never compared.
func ChannelCount(order ChannelOrder) int {
	switch order {
	case R, A, Intensity, Luminance, Depth:
		return 1
	case RG, RA, Rx:
		return 2
	case RGB, RGx:
		return 3
	case RGBA, BGRA, ARGB, ABGR, RGBx, SRGBA:
		return 4
	default:
		return 0
	}
}

// ChannelSize returns the bytes per channel; packed types return 0
func ChannelSize(t ChannelType) int {
	switch t {
	case SNormInt8, UNormInt8, SignedInt8, UnsignedInt8:
		return 1
	case SNormInt16, UNormInt16, SignedInt16, UnsignedInt16, HalfFloat:
		return 2
	case SignedInt32, UnsignedInt32, Float:
		return 4
	default:
		return 0
	}
}

// IsPacked reports whether all channels share a single machine word
func IsPacked(t ChannelType) bool {
	switch t {
	case UNormShort565, UNormShort555, UNormInt101010:
		return true
	}
	return false
}

// IsNormalized reports whether integer storage maps to [0,1] or [-1,1]
func IsNormalized(t ChannelType) bool {
	switch t {
	case SNormInt8, SNormInt16, UNormInt8, UNormInt16,
		UNormShort565, UNormShort555, UNormInt101010:
		return true
	}
	return false
}

// IsFloat reports whether the channel type is an IEEE-754 encoding
func IsFloat(t ChannelType) bool {
	return t == HalfFloat || t == Float
}

// IsExact reports whether values survive an encode/decode round trip
// bit-exactly, so buffers may be compared byte by byte.
func IsExact(t ChannelType) bool {
	switch t {
	case SignedInt8, SignedInt16, SignedInt32,
		UnsignedInt8, UnsignedInt16, UnsignedInt32, Float:
		return true
	}
	return false
}

// PixelSize returns the bytes per pixel for a format
func PixelSize(f Format) (uint64, error) {
	if _, ok := typeNames[f.Type]; !ok {
		return 0, fmt.Errorf("%w: unknown channel type %v", ErrUnsupportedFormat, f.Type)
	}
	n := ChannelCount(f.Order)
	if n == 0 {
		return 0, fmt.Errorf("%w: unknown channel order %v", ErrUnsupportedFormat, f.Order)
	}
	switch f.Type {
	case UNormShort565, UNormShort555:
		if f.Order != RGB && f.Order != RGBx {
			return 0, fmt.Errorf("%w: %v requires CL_RGB or CL_RGBx", ErrUnsupportedFormat, f)
		}
		return 2, nil
	case UNormInt101010:
		if f.Order != RGB && f.Order != RGBx {
			return 0, fmt.Errorf("%w: %v requires CL_RGB or CL_RGBx", ErrUnsupportedFormat, f)
		}
		return 4, nil
	}
	if f.Order == RGB || f.Order == RGBx {
		// Three-channel storage only exists in packed form
		return 0, fmt.Errorf("%w: %v requires a packed channel type", ErrUnsupportedFormat, f)
	}
	return uint64(n * ChannelSize(f.Type)), nil
}

// IsLegal reports whether the format is a standard, testable combination.
// Vendor extensions and undefined pairs return false and are skipped.
func IsLegal(f Format) bool {
	if _, err := PixelSize(f); err != nil {
		return false
	}
	switch f.Order {
	case Intensity, Luminance:
		return (IsNormalized(f.Type) && !IsPacked(f.Type)) || IsFloat(f.Type)
	case SRGBA:
		return f.Type == UNormInt8
	case Depth:
		return f.Type == UNormInt16 || f.Type == Float
	case BGRA:
		return f.Type == UNormInt8 || f.Type == SNormInt8 ||
			f.Type == SignedInt8 || f.Type == UnsignedInt8
	case ARGB, ABGR:
		return f.Type == UNormInt8 || f.Type == SNormInt8 ||
			f.Type == SignedInt8 || f.Type == UnsignedInt8
	}
	return true
}

var allOrders = []ChannelOrder{R, A, RG, RA, RGB, RGBA, BGRA, ARGB, ABGR,
	Intensity, Luminance, Rx, RGx, RGBx, SRGBA, Depth}

var allTypes = []ChannelType{SNormInt8, SNormInt16, UNormInt8, UNormInt16,
	UNormShort565, UNormShort555, UNormInt101010, SignedInt8, SignedInt16,
	SignedInt32, UnsignedInt8, UnsignedInt16, UnsignedInt32, HalfFloat, Float}

// StandardFormats lists every legal format in a fixed order
func StandardFormats() []Format {
	var formats []Format
	for _, o := range allOrders {
		for _, t := range allTypes {
			f := Format{Order: o, Type: t}
			if IsLegal(f) {
				formats = append(formats, f)
			}
		}
	}
	return formats
}

// Parse reads "ORDER/TYPE" with or without the CL_ prefix,
// e.g. "RGBA/UNORM_INT8" or "CL_BGRA/CL_UNORM_INT8".
func Parse(s string) (Format, error) {
	orderStr, typeStr, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Format{}, fmt.Errorf("%w: %q is not ORDER/TYPE", ErrUnsupportedFormat, s)
	}
	var f Format
	for o, name := range orderNames {
		if strings.EqualFold(name, orderStr) || strings.EqualFold(strings.TrimPrefix(name, "CL_"), orderStr) {
			f.Order = o
			break
		}
	}
	for t, name := range typeNames {
		if strings.EqualFold(name, typeStr) || strings.EqualFold(strings.TrimPrefix(name, "CL_"), typeStr) {
			f.Type = t
			break
		}
	}
	if f.Order == 0 || f.Type == 0 {
		return Format{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
	if _, err := PixelSize(f); err != nil {
		return Format{}, err
	}
	return f, nil
}
