// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package event

// discriminated selects a variant of T by the string value of one
// field, or by whatever key derives from the object when key is set.
// Lookups miss when the field is absent, not a string, or holds a
// value that is not in the table; a miss always resolves to the
// fallback.
//
// When a known variant fails to decode, lenient tables degrade to the
// fallback as if the discriminator were unknown, while strict tables
// return the variant's error. Content tables are lenient: a malformed
// m.text body still reaches the bot as raw content. The event table is
// strict: a broken "content" object must surface as an error.
type discriminated[T any] struct {
	field    string
	key      func(fields Fields, field string) (string, bool)
	variants map[string]func(Fields) (T, error)
	fallback func(Fields) (T, error)
	strict   bool
}

func (d *discriminated[T]) decode(fields Fields) (T, error) {
	lookup := d.key
	if lookup == nil {
		lookup = Fields.stringKey
	}
	if key, ok := lookup(fields, d.field); ok {
		if build, known := d.variants[key]; known {
			value, err := build(fields)
			if err == nil || d.strict {
				return value, err
			}
		}
	}
	return d.fallback(fields)
}
