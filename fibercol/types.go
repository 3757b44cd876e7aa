// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package fibercol

import "github.com/cockroachdb/errors"

// DataType is the closed set of logical column types known to the fiber
// format. Only the fixed-width primitives and the two variable-length types
// can be decoded; the remaining members exist so that unsupported schemas
// are rejected at decoder construction rather than misread at first access.
type DataType uint8

const (
	BooleanType DataType = iota
	ByteType
	ShortType
	IntegerType
	LongType
	FloatType
	DoubleType
	// DateType is a 32-bit day ordinal, stored exactly like IntegerType.
	DateType
	// BinaryType is a variable-length byte sequence addressed through a
	// (length, offset) indirection table.
	BinaryType
	// StringType is BinaryType carrying UTF-8 text.
	StringType

	// The types below are not representable in the raw fiber format.
	DecimalType
	TimestampType
	IntervalType
	ArrayType
	MapType
	StructType

	numDataTypes
)

// String implements fmt.Stringer.
func (t DataType) String() string {
	switch t {
	case BooleanType:
		return "boolean"
	case ByteType:
		return "byte"
	case ShortType:
		return "short"
	case IntegerType:
		return "int"
	case LongType:
		return "long"
	case FloatType:
		return "float"
	case DoubleType:
		return "double"
	case DateType:
		return "date"
	case BinaryType:
		return "binary"
	case StringType:
		return "string"
	case DecimalType:
		return "decimal"
	case TimestampType:
		return "timestamp"
	case IntervalType:
		return "interval"
	case ArrayType:
		return "array"
	case MapType:
		return "map"
	case StructType:
		return "struct"
	default:
		return "unknown"
	}
}

// DataTypeFromString parses a type name as produced by String. Only the
// decodable types are accepted.
func DataTypeFromString(s string) (DataType, error) {
	for t := BooleanType; t < numDataTypes; t++ {
		if t.String() == s {
			if err := t.checkSupported(); err != nil {
				return 0, err
			}
			return t, nil
		}
	}
	return 0, errors.Newf("fibercol: unknown data type %q", s)
}

// FixedWidth returns the element width in bytes for fixed-width types and 0
// for variable-length types.
func (t DataType) FixedWidth() int {
	switch t {
	case BooleanType, ByteType:
		return 1
	case ShortType:
		return 2
	case IntegerType, FloatType, DateType:
		return 4
	case LongType, DoubleType:
		return 8
	default:
		return 0
	}
}

// VariableLength reports whether values of this type go through the
// (length, offset) indirection table.
func (t DataType) VariableLength() bool {
	return t == BinaryType || t == StringType
}

// checkSupported returns a not-implemented error for types outside the raw
// fiber format.
func (t DataType) checkSupported() error {
	if t.FixedWidth() == 0 && !t.VariableLength() {
		return errors.Newf("fibercol: decoding %s columns is not implemented", t)
	}
	return nil
}
