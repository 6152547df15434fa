package main

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func outboxStats(t *testing.T, env *cliTestEnv) map[string]int {
	t.Helper()
	out, _, err := runCLI(t, []string{"outbox", "stats", "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("outbox stats: %v", err)
	}
	var stats map[string]int
	if err := json.Unmarshal([]byte(out), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	return stats
}

func TestOutboxFlushAndPurge(t *testing.T) {
	env := setupCLITestEnv(t)
	for _, text := range []string{"one", "two"} {
		if _, _, err := runCLI(t, []string{"prompts", "--project", "film", "add", text}, env.configPath); err != nil {
			t.Fatal(err)
		}
	}

	if stats := outboxStats(t, env); stats["total"] != 2 || stats["pending"] != 2 {
		t.Fatalf("unexpected stats before flush %v", stats)
	}
	out, _, err := runCLI(t, []string{"outbox", "list", "--pending"}, env.configPath)
	if err != nil {
		t.Fatalf("outbox list: %v", err)
	}
	requireContains(t, out, "upsert")

	spool := filepath.Join(t.TempDir(), "spool", "outbox.jsonl")
	out, _, err = runCLI(t, []string{"outbox", "flush", "--to", spool}, env.configPath)
	if err != nil {
		t.Fatalf("outbox flush: %v", err)
	}
	requireContains(t, out, "Delivered 2 entries")

	file, err := os.Open(spool)
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	defer file.Close()
	lines := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry outboxEntryView
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("spool line is not an entry: %v", err)
		}
		if entry.ProjectID != "film" || entry.Payload == "" {
			t.Fatalf("unexpected spooled entry %+v", entry)
		}
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 spooled entries, got %d", lines)
	}

	if stats := outboxStats(t, env); stats["delivered"] != 2 || stats["pending"] != 0 {
		t.Fatalf("unexpected stats after flush %v", stats)
	}

	out, _, err = runCLI(t, []string{"outbox", "purge", "--older-than", "0s"}, env.configPath)
	if err != nil {
		t.Fatalf("outbox purge: %v", err)
	}
	requireContains(t, out, "Removed 2 delivered entries")
	out, _, _ = runCLI(t, []string{"outbox", "list"}, env.configPath)
	requireContains(t, out, "Outbox is empty")
}

func TestOutboxFlushRequiresTarget(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"outbox", "flush"}, env.configPath); err == nil {
		t.Fatal("expected --to to be required")
	}
}
