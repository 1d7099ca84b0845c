package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSentinelRulesDefaults(t *testing.T) {
	rules, err := LoadSentinelRules("")
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}
	if rules[0].Key != "name" || rules[0].Value != "ERP" || rules[0].Flag != "erp" {
		t.Errorf("unexpected default rule: %+v", rules[0])
	}
}

func TestLoadSentinelRulesFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "rules.yml")
	content := `
sentinels:
  - key: operator
    value: Acme Corp
    flag: acme
    label: Acme
  - key: name
    value: Depot
`
	if err := os.WriteFile(fname, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	rules, err := LoadSentinelRules(fname)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	if rules[0].Flag != "acme" || rules[0].Label != "Acme" {
		t.Errorf("unexpected rule: %+v", rules[0])
	}
	// flag and label default to the tag value
	if rules[1].Flag != "Depot" || rules[1].Label != "Depot" {
		t.Errorf("unexpected rule defaults: %+v", rules[1])
	}
}

func TestLoadSentinelRulesInvalid(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "rules.yml")
	if err := os.WriteFile(fname, []byte("sentinels:\n  - flag: nokey\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadSentinelRules(fname); err == nil {
		t.Fatal("expected error for rule without key/value")
	}
}
