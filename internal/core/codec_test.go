package core

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

const sampleRegistry = `{
  "name": "soplang-registry",
  "packages": [
    {
      "repository": "https://github.com/soplang/http",
      "name": "http",
      "version": "1.0.0",
      "keywords": ["http", "net"],
      "valid": true
    },
    {
      "repository": "https://github.com/soplang/json"
    }
  ],
  "updated": {"by": "bot", "count": 2}
}`

func TestDocument_UnmarshalKeepsOrder(t *testing.T) {
	var doc Document
	if err := json.Unmarshal([]byte(sampleRegistry), &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !doc.HasPackages() {
		t.Fatal("HasPackages() = false, want true")
	}
	if len(doc.Packages) != 2 {
		t.Fatalf("len(Packages) = %d, want 2", len(doc.Packages))
	}

	want := []string{FieldRepository, FieldName, FieldVersion, FieldKeywords, FieldValid}
	if got := doc.Packages[0].Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if v, _ := doc.Packages[0].Get(FieldKeywords); !reflect.DeepEqual(v, []any{"http", "net"}) {
		t.Errorf("keywords = %#v", v)
	}
	if v, _ := doc.Packages[0].Get(FieldValid); v != true {
		t.Errorf("valid = %#v, want true", v)
	}
}

func TestDocument_RoundTrip(t *testing.T) {
	var doc Document
	if err := json.Unmarshal([]byte(sampleRegistry), &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	out, err := Indent(&doc)
	if err != nil {
		t.Fatalf("Indent failed: %v", err)
	}

	s := string(out)
	if !strings.HasSuffix(s, "}\n") {
		t.Errorf("output should end with a newline, got %q", s[len(s)-3:])
	}
	nameAt := strings.Index(s, `"name": "soplang-registry"`)
	pkgAt := strings.Index(s, `"packages": [`)
	updAt := strings.Index(s, `"updated": {`)
	if nameAt < 0 || pkgAt < 0 || updAt < 0 || !(nameAt < pkgAt && pkgAt < updAt) {
		t.Errorf("top-level order not preserved:\n%s", s)
	}
	if !strings.Contains(s, "\n  \"packages\": [\n    {\n      \"repository\"") {
		t.Errorf("output is not two-space indented:\n%s", s)
	}

	var again Document
	if err := json.Unmarshal(out, &again); err != nil {
		t.Fatalf("re-Unmarshal failed: %v", err)
	}
	for i := range doc.Packages {
		if !doc.Packages[i].Equal(again.Packages[i]) {
			t.Errorf("package %d changed across round trip", i)
		}
	}
	second, _ := Indent(&again)
	if string(second) != s {
		t.Errorf("second round trip differs:\n%s\nvs\n%s", second, s)
	}
}

func TestDocument_WithoutPackages(t *testing.T) {
	var doc Document
	if err := json.Unmarshal([]byte(`{"name": "x"}`), &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if doc.HasPackages() {
		t.Error("HasPackages() = true, want false")
	}
	out, _ := doc.MarshalJSON()
	if string(out) != `{"name":"x"}` {
		t.Errorf("MarshalJSON = %s", out)
	}
}

func TestDocument_NullPackages(t *testing.T) {
	var doc Document
	if err := json.Unmarshal([]byte(`{"packages": null}`), &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !doc.HasPackages() {
		t.Error("HasPackages() = false, want true")
	}
	if len(doc.Packages) != 0 {
		t.Errorf("len(Packages) = %d, want 0", len(doc.Packages))
	}
}

func TestDocument_Invalid(t *testing.T) {
	for _, input := range []string{`[]`, `{"packages": [1]}`, `{"packages": [{"a": }]}`, `{`} {
		var doc Document
		if err := json.Unmarshal([]byte(input), &doc); err == nil {
			t.Errorf("Unmarshal(%q) succeeded, want error", input)
		}
	}
}

func TestRecord_MarshalNoHTMLEscape(t *testing.T) {
	r := NewRecord(FieldDescription, "a <b> & c")
	out, err := r.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	if string(out) != `{"description":"a <b> & c"}` {
		t.Errorf("MarshalJSON = %s", out)
	}
}

func TestNewDocument_Marshal(t *testing.T) {
	out, err := Indent(NewDocument(NewRecord(FieldRepository, "r1")))
	if err != nil {
		t.Fatalf("Indent failed: %v", err)
	}
	want := "{\n  \"packages\": [\n    {\n      \"repository\": \"r1\"\n    }\n  ]\n}\n"
	if string(out) != want {
		t.Errorf("Indent =\n%s\nwant\n%s", out, want)
	}
}

func TestRecord_RoundTripKeepsUntouchedValues(t *testing.T) {
	input := `{"packages":[{"repository":"r1","downloads":12345678901234567890,"ratio":1.0,` +
		`"meta":{"z":1,"a":[2,3.50]},"title":"caf\u00e9 <b>"}]}`
	var doc Document
	if err := json.Unmarshal([]byte(input), &doc); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	doc.Packages[0].Set(FieldValid, true)

	out, err := doc.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}
	want := `{"packages":[{"repository":"r1","downloads":12345678901234567890,"ratio":1.0,` +
		`"meta":{"z":1,"a":[2,3.50]},"title":"caf\u00e9 <b>","valid":true}]}`
	if string(out) != want {
		t.Errorf("MarshalJSON =\n%s\nwant\n%s", out, want)
	}

	indented, err := Indent(&doc)
	if err != nil {
		t.Fatalf("Indent failed: %v", err)
	}
	s := string(indented)
	for _, frag := range []string{`"downloads": 12345678901234567890,`, `"ratio": 1.0,`, `3.50`} {
		if !strings.Contains(s, frag) {
			t.Errorf("Indent output lost %s:\n%s", frag, s)
		}
	}
	if strings.Index(s, `"z": 1`) > strings.Index(s, `"a": [`) {
		t.Errorf("nested key order not preserved:\n%s", s)
	}
}

func TestRecord_DecodedValues(t *testing.T) {
	var r Record
	if err := json.Unmarshal([]byte(`{"n":12345678901234567890,"m":{"k":[1,"x",true,null]}}`), &r); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if v, _ := r.Get("n"); v != json.Number("12345678901234567890") {
		t.Errorf("n = %#v, want exact json.Number", v)
	}
	want := map[string]any{"k": []any{json.Number("1"), "x", true, nil}}
	if v, _ := r.Get("m"); !reflect.DeepEqual(v, want) {
		t.Errorf("m = %#v, want %#v", v, want)
	}

	// A value that is Set is encoded afresh.
	r.Set("n", "replaced")
	out, _ := r.MarshalJSON()
	if !strings.HasPrefix(string(out), `{"n":"replaced",`) {
		t.Errorf("MarshalJSON = %s", out)
	}
}

func TestRecord_EqualNumbersByValue(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{`{"n":1}`, `{"n":1.0}`, true},
		{`{"n":100}`, `{"n":1e2}`, true},
		{`{"n":12345678901234567890}`, `{"n":12345678901234567891}`, false},
		{`{"n":1}`, `{"n":"1"}`, false},
		{`{"n":[1,2]}`, `{"n":[1.0,2.0]}`, true},
	}
	for _, tt := range tests {
		var a, b Record
		if err := json.Unmarshal([]byte(tt.a), &a); err != nil {
			t.Fatal(err)
		}
		if err := json.Unmarshal([]byte(tt.b), &b); err != nil {
			t.Fatal(err)
		}
		if got := a.Equal(&b); got != tt.want {
			t.Errorf("Equal(%s, %s) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
