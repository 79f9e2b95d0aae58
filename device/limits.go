package device

import (
	"errors"
	"fmt"
	"math"
)

// ErrQuery is wrapped by every failed limit query
var ErrQuery = errors.New("device limit query failed")

// LimitName identifies one device capability
type LimitName int

const (
	MaxImageWidth LimitName = iota
	MaxImageHeight
	MaxImageDepth
	MaxImageArraySize
	MaxMemAllocSize
	GlobalMemSize
	MaxImageBufferSize
)

var limitNames = map[LimitName]string{
	MaxImageWidth:      "max_image_width",
	MaxImageHeight:     "max_image_height",
	MaxImageDepth:      "max_image_depth",
	MaxImageArraySize:  "max_image_array_size",
	MaxMemAllocSize:    "max_mem_alloc_size",
	GlobalMemSize:      "global_mem_size",
	MaxImageBufferSize: "max_image_buffer_size",
}

func (n LimitName) String() string {
	if s, ok := limitNames[n]; ok {
		return s
	}
	return fmt.Sprintf("LimitName(%d)", int(n))
}

// AllLimits lists every limit Query reads, in query order
func AllLimits() []LimitName {
	return []LimitName{MaxImageWidth, MaxImageHeight, MaxImageDepth,
		MaxImageArraySize, MaxMemAllocSize, GlobalMemSize, MaxImageBufferSize}
}

// LimitQuerier reads a single capability from a device
type LimitQuerier interface {
	QueryLimit(name LimitName) (uint64, error)
}

// QueryError reports which limit could not be read
type QueryError struct {
	Limit LimitName
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query %s: %v", e.Limit, e.Err)
}

func (e *QueryError) Unwrap() []error {
	return []error{ErrQuery, e.Err}
}

// DeviceLimitSet is an immutable snapshot of the limits that bound
// randomized geometry. MaxAllocSize and MaxGlobalMemSize already carry
// the safety divisor and host cap.
type DeviceLimitSet struct {
	MaxWidth         uint64
	MaxHeight        uint64
	MaxDepth         uint64
	MaxArraySize     uint64
	MaxAllocSize     uint64
	MaxGlobalMemSize uint64
	MaxBufferSize    uint64
}

type queryOptions struct {
	safetyDivisor uint64
	hostCap       uint64
}

// Option adjusts the memory clamp applied by Query
type Option func(*queryOptions)

// WithSafetyDivisor divides the reported allocation and global memory
// sizes by n. Zero is treated as 1.
func WithSafetyDivisor(n uint64) Option {
	return func(o *queryOptions) {
		if n == 0 {
			n = 1
		}
		o.safetyDivisor = n
	}
}

// WithHostCap caps allocation and global memory sizes to max bytes
func WithHostCap(max uint64) Option {
	return func(o *queryOptions) { o.hostCap = max }
}

// Query reads every limit from q. The result is only returned when all
// queries succeed.
func Query(q LimitQuerier, opts ...Option) (DeviceLimitSet, error) {
	o := queryOptions{safetyDivisor: 2, hostCap: math.MaxInt}
	for _, opt := range opts {
		opt(&o)
	}

	values := make(map[LimitName]uint64, len(limitNames))
	for _, name := range AllLimits() {
		v, err := q.QueryLimit(name)
		if err != nil {
			return DeviceLimitSet{}, &QueryError{Limit: name, Err: err}
		}
		if v == 0 {
			return DeviceLimitSet{}, &QueryError{Limit: name, Err: errors.New("device reported zero")}
		}
		values[name] = v
	}

	clamp := func(v uint64) uint64 {
		v /= o.safetyDivisor
		if v > o.hostCap {
			v = o.hostCap
		}
		return v
	}
	return DeviceLimitSet{
		MaxWidth:         values[MaxImageWidth],
		MaxHeight:        values[MaxImageHeight],
		MaxDepth:         values[MaxImageDepth],
		MaxArraySize:     values[MaxImageArraySize],
		MaxAllocSize:     clamp(values[MaxMemAllocSize]),
		MaxGlobalMemSize: clamp(values[GlobalMemSize]),
		MaxBufferSize:    values[MaxImageBufferSize],
	}, nil
}

// Budget returns a copy with the memory sizes divided by divisor, the
// reduced budget used while iterating over random sizes.
func (l DeviceLimitSet) Budget(divisor uint64) DeviceLimitSet {
	if divisor <= 1 {
		return l
	}
	b := l
	b.MaxAllocSize /= divisor
	b.MaxGlobalMemSize /= divisor
	return b
}

// Axis returns the extent limit for logical axis 0..2 of an image type
// whose array layers sit on arrayAxis (-1 for none).
func (l DeviceLimitSet) Axis(axis int, arrayAxis int) uint64 {
	if axis == arrayAxis {
		return l.MaxArraySize
	}
	switch axis {
	case 0:
		return l.MaxWidth
	case 1:
		return l.MaxHeight
	default:
		return l.MaxDepth
	}
}

// StaticQuerier serves limits from a fixed table. Missing entries fail.
type StaticQuerier map[LimitName]uint64

func (s StaticQuerier) QueryLimit(name LimitName) (uint64, error) {
	v, ok := s[name]
	if !ok {
		return 0, fmt.Errorf("%s not available", name)
	}
	return v, nil
}

// FullProfile returns a querier reporting the minimum image limits every
// full-profile device must support, with the given memory sizes.
func FullProfile(globalMem, maxAlloc uint64) StaticQuerier {
	return StaticQuerier{
		MaxImageWidth:      8192,
		MaxImageHeight:     8192,
		MaxImageDepth:      2048,
		MaxImageArraySize:  2048,
		MaxMemAllocSize:    maxAlloc,
		GlobalMemSize:      globalMem,
		MaxImageBufferSize: 65536,
	}
}
