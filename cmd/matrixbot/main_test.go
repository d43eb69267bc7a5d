// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/matrixbot/lib/bot"
	"github.com/bureau-foundation/matrixbot/lib/botstore"
	"github.com/bureau-foundation/matrixbot/lib/ref"
)

func runCaptured(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var output bytes.Buffer
	err := run(args, &output)
	return output.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestUsageErrors(t *testing.T) {
	for _, args := range [][]string{
		{},
		{"frobnicate"},
		{"decode"},
		{"run", "--no-such-flag"},
		{"state", "set"},
		{"state", "set", "PAUSED"},
		{"state", "reset"},
	} {
		_, err := runCaptured(t, args...)
		var usage *usageError
		if !errors.As(err, &usage) {
			t.Errorf("run(%q) error = %v, want usage error", args, err)
		}
	}
}

func TestVersion(t *testing.T) {
	output, err := runCaptured(t, "--version")
	if err != nil {
		t.Fatalf("--version: %v", err)
	}
	if !strings.HasPrefix(output, "matrixbot ") {
		t.Errorf("version output = %q", output)
	}
}

const fixture = `[
	// A plain message.
	{
		"type": "m.room.message",
		"event_id": "$one:local",
		"room_id": "!room:local",
		"sender": "@alice:local",
		"content": {"msgtype": "m.text", "body": "hi"},
	},
	/* A rename with history. */
	{
		"type": "m.room.name",
		"state_key": "",
		"sender": "@alice:local",
		"content": {"name": "New"},
		"prev_content": {"name": "Old"},
		"unsigned": {"age": 5},
	},
]`

func TestDecodeFixture(t *testing.T) {
	path := writeFile(t, "events.jsonc", fixture)
	output, err := runCaptured(t, "decode", path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	for _, want := range []string{
		path + "[0]: *event.RoomMessage",
		"  event_id: $one:local",
		"  content: event.Text",
		path + "[1]: *event.RoomName",
		`  state_key: ""`,
		"  prev_content: event.RoomNameContent",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestDecodeJSONOutput(t *testing.T) {
	path := writeFile(t, "event.json", `{"type":"org.example.custom","content":{"b":1,"a":[true]}}`)
	output, err := runCaptured(t, "decode", "--json", path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], `"type":"org.example.custom"`) {
		t.Errorf("output = %q", output)
	}
}

func TestDecodeContent(t *testing.T) {
	path := writeFile(t, "content.json", `{"msgtype":"m.notice","body":"done"}`)
	output, err := runCaptured(t, "decode", "--content", "m.room.message", path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !strings.Contains(output, ": event.Notice") {
		t.Errorf("output = %q", output)
	}
}

func TestDecodeReportsFailures(t *testing.T) {
	path := writeFile(t, "broken.json", `{"content":{}}`)
	_, err := runCaptured(t, "decode", path)
	if err == nil || !strings.Contains(err.Error(), "type") {
		t.Fatalf("decode error = %v, want missing type", err)
	}
}

func writeBotConfig(t *testing.T) (configPath, databasePath string) {
	t.Helper()
	databasePath = filepath.Join(t.TempDir(), "state", "bot.db")
	configPath = writeFile(t, "matrixbot.yaml", fmt.Sprintf(`
matrix:
  homeserver_url: http://localhost:8008
  user_id: "@helper:local"
  access_token_file: /nonexistent/token
storage:
  database: %s
`, databasePath))
	return configPath, databasePath
}

func TestStateShowAndSet(t *testing.T) {
	configPath, _ := writeBotConfig(t)

	output, err := runCaptured(t, "state", "--config", configPath)
	if err != nil {
		t.Fatalf("state show: %v", err)
	}
	for _, want := range []string{"user_id:    @helper:local", "state:      NEW", "updated_at: (never)", "extra:      (none)"} {
		if !strings.Contains(output, want) {
			t.Errorf("fresh state output missing %q:\n%s", want, output)
		}
	}

	output, err = runCaptured(t, "state", "--config", configPath, "set", "DELETED")
	if err != nil {
		t.Fatalf("state set: %v", err)
	}
	if !strings.Contains(output, "state:      DELETED") {
		t.Errorf("state after set:\n%s", output)
	}
}

func TestStateShowsExtraData(t *testing.T) {
	configPath, databasePath := writeBotConfig(t)
	if err := os.MkdirAll(filepath.Dir(databasePath), 0o700); err != nil {
		t.Fatal(err)
	}
	store, err := botstore.Open(botstore.Config{Path: databasePath, UserID: ref.MustParseUserID("@helper:local")})
	if err != nil {
		t.Fatalf("botstore.Open: %v", err)
	}
	err = bot.SetExtraData(context.Background(), store, map[string]string{"greeting": "hello"})
	store.Close()
	if err != nil {
		t.Fatalf("SetExtraData: %v", err)
	}

	output, err := runCaptured(t, "state", "--config", configPath, "show")
	if err != nil {
		t.Fatalf("state show: %v", err)
	}
	if !strings.Contains(output, `"greeting"`) || !strings.Contains(output, `"hello"`) {
		t.Errorf("extra data not diagnosed:\n%s", output)
	}
}

func TestStateRequiresValidConfig(t *testing.T) {
	path := writeFile(t, "bad.yaml", "matrix:\n  homeserver_url: nope\n")
	_, err := runCaptured(t, "state", "--config", path)
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("state error = %v, want invalid config", err)
	}
}
