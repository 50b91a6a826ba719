package sop

import (
	"encoding/json"
	"reflect"
	"testing"
)

const httpDescriptor = `
[package]
name = "http"
version = "1.0.0"
status = "stable"
description = "HTTP client for Soplang"
license = "MIT"
author = "Soplang"
repository = "https://github.com/soplang/http"
homepage = "https://soplang.org"
entry = "src/main.sop"
keywords = ["http", "net"]
categories = ["network"]

[dependencies]
json = "^1.0"
`

func TestParse(t *testing.T) {
	d, err := Parse([]byte(httpDescriptor))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if d.Name() != "http" {
		t.Errorf("Name() = %q, want %q", d.Name(), "http")
	}
	if d.Entry() != "src/main.sop" {
		t.Errorf("Entry() = %q, want %q", d.Entry(), "src/main.sop")
	}
	if got := d.Package()["keywords"]; !reflect.DeepEqual(got, []any{"http", "net"}) {
		t.Errorf("keywords = %#v", got)
	}
	if _, ok := d["dependencies"].(map[string]any); !ok {
		t.Errorf("dependencies = %#v, want table", d["dependencies"])
	}
}

func TestParse_Numbers(t *testing.T) {
	d, err := Parse([]byte("[package]\nversion = 2\nsizes = [1, 2.5]\nbuild = 9223372036854775807\n[package.meta]\nlevel = 3\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	pkg := d.Package()
	if pkg["version"] != json.Number("2") {
		t.Errorf("version = %#v, want json.Number(\"2\")", pkg["version"])
	}
	if !reflect.DeepEqual(pkg["sizes"], []any{json.Number("1"), json.Number("2.5")}) {
		t.Errorf("sizes = %#v", pkg["sizes"])
	}
	if pkg["build"] != json.Number("9223372036854775807") {
		t.Errorf("build = %#v, want exact integer", pkg["build"])
	}
	if meta := pkg["meta"].(map[string]any); meta["level"] != json.Number("3") {
		t.Errorf("meta.level = %#v", meta["level"])
	}
}

func TestParse_NoPackageSection(t *testing.T) {
	d, err := Parse([]byte("title = \"x\"\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if d.Package() != nil {
		t.Errorf("Package() = %v, want nil", d.Package())
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, input := range []string{
		"[package\nname = 1",
		"name = ",
		"[package]\nname = \"a\"\nname = \"b\"\n",
	} {
		if _, err := Parse([]byte(input)); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", input)
		}
	}
}
