// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package main

import (
	"fmt"
	"strconv"

	"github.com/juju/errors"
)

type attrKind int

const (
	stringAttr attrKind = iota
	intAttr
	boolAttr
)

// attrValue is a gnuflag.Value that stores the flag in an attribute map
// under key, so only flags given on the command line override other
// configuration sources.
type attrValue struct {
	attrs map[string]interface{}
	key   string
	kind  attrKind
}

// Set implements gnuflag.Value.
func (v *attrValue) Set(s string) error {
	switch v.kind {
	case intAttr:
		n, err := strconv.Atoi(s)
		if err != nil {
			return errors.NotValidf("%s %q", v.key, s)
		}
		v.attrs[v.key] = n
	case boolAttr:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return errors.NotValidf("%s %q", v.key, s)
		}
		v.attrs[v.key] = b
	default:
		v.attrs[v.key] = s
	}
	return nil
}

// String implements gnuflag.Value.
func (v *attrValue) String() string {
	if value, ok := v.attrs[v.key]; ok {
		return fmt.Sprint(value)
	}
	return ""
}

// IsBoolFlag lets boolean flags be given without a value.
func (v *attrValue) IsBoolFlag() bool {
	return v.kind == boolAttr
}
