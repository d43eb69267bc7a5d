// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/matrixbot/lib/event"
	"github.com/bureau-foundation/matrixbot/lib/ref"
)

// decodeCommand prints what each event in the given files decodes to.
// A file holds one event object or an array of them, as JSON or JSON
// with comments and trailing commas.
func decodeCommand(args []string, stdout io.Writer) error {
	flagSet := newFlagSet("decode")
	contentType := flagSet.String("content", "", "decode each object as the content of this event type instead of as an event")
	jsonOutput := flagSet.Bool("json", false, "print only the re-encoded JSON, one line per object")
	if proceed, err := parseFlags(flagSet, args); !proceed {
		return err
	}
	if flagSet.NArg() == 0 {
		return usagef("decode needs at least one file (\"-\" for stdin)")
	}

	for _, path := range flagSet.Args() {
		objects, err := readFixture(path, os.Stdin)
		if err != nil {
			return err
		}
		for index, object := range objects {
			label := path
			if len(objects) > 1 {
				label = fmt.Sprintf("%s[%d]", path, index)
			}
			if *contentType != "" {
				err = describeContent(stdout, label, ref.EventType(*contentType), object, *jsonOutput)
			} else {
				err = describeEvent(stdout, label, object, *jsonOutput)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// readFixture reads path (stdin for "-"), strips comments, and splits
// a top-level array into its elements.
func readFixture(path string, stdin io.Reader) ([]json.RawMessage, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	stripped := bytes.TrimSpace(jsonc.ToJSON(data))
	if len(stripped) > 0 && stripped[0] == '[' {
		var objects []json.RawMessage
		if err := json.Unmarshal(stripped, &objects); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		return objects, nil
	}
	return []json.RawMessage{stripped}, nil
}

func describeEvent(w io.Writer, label string, data []byte, jsonOnly bool) error {
	decoded, err := event.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	encoded, err := json.Marshal(decoded)
	if err != nil {
		return fmt.Errorf("%s: re-encoding: %w", label, err)
	}
	if jsonOnly {
		fmt.Fprintf(w, "%s\n", encoded)
		return nil
	}

	header := decoded.EventHeader()
	fmt.Fprintf(w, "%s: %T\n", label, decoded)
	fmt.Fprintf(w, "  type: %s\n", header.Type)
	if !header.ID.IsZero() {
		fmt.Fprintf(w, "  event_id: %s\n", header.ID)
	}
	if !header.RoomID.IsZero() {
		fmt.Fprintf(w, "  room_id: %s\n", header.RoomID)
	}
	if !header.Sender.IsZero() {
		fmt.Fprintf(w, "  sender: %s\n", header.Sender)
	}
	if header.IsState() {
		fmt.Fprintf(w, "  state_key: %q\n", *header.StateKey)
	}
	fmt.Fprintf(w, "  content: %T\n", decoded.EventContent())
	if prev := decoded.EventPrevContent(); prev != nil {
		fmt.Fprintf(w, "  prev_content: %T\n", prev)
	}
	if len(header.Extra) > 0 {
		fmt.Fprintf(w, "  extra fields: %d\n", len(header.Extra))
	}
	fmt.Fprintf(w, "  json: %s\n", encoded)
	return nil
}

func describeContent(w io.Writer, label string, eventType ref.EventType, data []byte, jsonOnly bool) error {
	content, err := event.DecodeContent(eventType, data)
	if err != nil {
		return fmt.Errorf("%s: %w", label, err)
	}
	encoded, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("%s: re-encoding: %w", label, err)
	}
	if jsonOnly {
		fmt.Fprintf(w, "%s\n", encoded)
		return nil
	}
	fmt.Fprintf(w, "%s: %T\n", label, content)
	fmt.Fprintf(w, "  json: %s\n", encoded)
	return nil
}
