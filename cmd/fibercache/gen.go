// Copyright 2023 The FiberCache Authors. All rights reserved. Use of this
// source code is governed by a BSD-style license that can be found in the
// LICENSE file.

package main

import (
	"fmt"
	"strings"

	"github.com/fibercache/fibercache/fibercol"
	"github.com/fibercache/fibercache/fiberio"
	"github.com/spf13/cobra"
	"golang.org/x/exp/rand"
)

var (
	genRows   = 8192
	genGroups = 4
	genSchema = "long,double,string"
)

var genCmd = &cobra.Command{
	Use:   "gen <file>",
	Short: "generate a fiber file with synthetic data",
	Args:  cobra.ExactArgs(1),
	RunE:  runGen,
}

func parseSchema(s string) ([]fibercol.DataType, error) {
	parts := strings.Split(s, ",")
	schema := make([]fibercol.DataType, len(parts))
	for i, p := range parts {
		t, err := fibercol.DataTypeFromString(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		schema[i] = t
	}
	return schema, nil
}

// buildColumn fills one synthetic column. One row in sixteen is null.
func buildColumn(rng *rand.Rand, typ fibercol.DataType, rows int) ([]byte, error) {
	b, err := fibercol.NewColumnBuilder(typ, rows)
	if err != nil {
		return nil, err
	}
	for row := 0; row < rows; row++ {
		if rng.Intn(16) == 0 {
			continue
		}
		switch typ {
		case fibercol.BooleanType:
			b.PutBoolean(row, rng.Intn(2) == 1)
		case fibercol.ByteType:
			b.PutByte(row, int8(rng.Intn(256)))
		case fibercol.ShortType:
			b.PutShort(row, int16(rng.Intn(1<<16)))
		case fibercol.IntegerType, fibercol.DateType:
			b.PutInt(row, int32(rng.Uint32()))
		case fibercol.LongType:
			b.PutLong(row, int64(rng.Uint64()))
		case fibercol.FloatType:
			b.PutFloat(row, rng.Float32())
		case fibercol.DoubleType:
			b.PutDouble(row, rng.Float64())
		case fibercol.BinaryType, fibercol.StringType:
			v := make([]byte, 4+rng.Intn(60))
			for i := range v {
				v[i] = 'a' + byte(rng.Intn(26))
			}
			b.PutBytes(row, v)
		}
	}
	return b.Finish(), nil
}

func runGen(cmd *cobra.Command, args []string) error {
	schema, err := parseSchema(genSchema)
	if err != nil {
		return err
	}
	codec, err := fiberio.CodecFromString(codecName)
	if err != nil {
		return err
	}
	w, err := fiberio.NewWriter(args[0], schema, codec)
	if err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(uint64(genRows)*31 + uint64(genGroups)))
	for g := 0; g < genGroups; g++ {
		chunks := make([]fiberio.Chunk, len(schema))
		for i, typ := range schema {
			fiber, err := buildColumn(rng, typ, genRows)
			if err != nil {
				return err
			}
			chunks[i] = fiberio.Chunk{Fiber: fiber}
		}
		if err := w.WriteGroup(genRows, chunks); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %d columns, %d groups, %d rows, %s codec\n",
		args[0], len(schema), genGroups, genGroups*genRows, codec)
	return nil
}
