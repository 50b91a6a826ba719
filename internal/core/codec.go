package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
)

const packagesKey = "packages"

// MarshalJSON encodes the record with its fields in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	r.MarshalEasyJSON(&w)
	return w.BuildBytes()
}

// MarshalEasyJSON writes the record as a JSON object, keeping field order.
func (r *Record) MarshalEasyJSON(w *jwriter.Writer) {
	if r == nil {
		w.RawString("null")
		return
	}
	w.RawByte('{')
	for i, key := range r.keys {
		if i > 0 {
			w.RawByte(',')
		}
		w.Raw(encodeValue(key))
		w.RawByte(':')
		if raw, ok := r.raw[key]; ok {
			w.Raw(raw, nil)
			continue
		}
		w.Raw(encodeValue(r.values[key]))
	}
	w.RawByte('}')
}

// UnmarshalJSON decodes a JSON object, remembering the order of its fields.
func (r *Record) UnmarshalJSON(data []byte) error {
	l := jlexer.Lexer{Data: data}
	r.UnmarshalEasyJSON(&l)
	return l.Error()
}

// UnmarshalEasyJSON reads a JSON object into the record.
func (r *Record) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	*r = Record{}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.String()
		in.WantColon()
		raw := in.Raw()
		if !in.Ok() {
			return
		}
		value, compact, err := decodeValue(raw)
		if err != nil {
			in.AddError(fmt.Errorf("field %q: %w", key, err))
			return
		}
		r.setDecoded(key, value, compact)
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

// MarshalJSON encodes the document, keeping top-level field order.
func (d *Document) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	d.MarshalEasyJSON(&w)
	return w.BuildBytes()
}

// MarshalEasyJSON writes the document as a JSON object.
func (d *Document) MarshalEasyJSON(w *jwriter.Writer) {
	order := d.order
	if d.hasPackages && !containsString(order, packagesKey) {
		order = append(append([]string(nil), order...), packagesKey)
	}

	w.RawByte('{')
	for i, key := range order {
		if i > 0 {
			w.RawByte(',')
		}
		w.Raw(encodeValue(key))
		w.RawByte(':')
		if key == packagesKey {
			d.marshalPackages(w)
			continue
		}
		w.Raw(d.extra[key], nil)
	}
	w.RawByte('}')
}

func (d *Document) marshalPackages(w *jwriter.Writer) {
	if d.Packages == nil {
		w.RawString("[]")
		return
	}
	w.RawByte('[')
	for i, r := range d.Packages {
		if i > 0 {
			w.RawByte(',')
		}
		r.MarshalEasyJSON(w)
	}
	w.RawByte(']')
}

// UnmarshalJSON decodes a registry document.
func (d *Document) UnmarshalJSON(data []byte) error {
	l := jlexer.Lexer{Data: data}
	d.UnmarshalEasyJSON(&l)
	return l.Error()
}

// UnmarshalEasyJSON reads a registry document. Fields other than packages
// are kept as raw JSON.
func (d *Document) UnmarshalEasyJSON(in *jlexer.Lexer) {
	isTopLevel := in.IsStart()
	*d = Document{extra: make(map[string][]byte)}
	in.Delim('{')
	for !in.IsDelim('}') {
		key := in.String()
		in.WantColon()
		if !containsString(d.order, key) {
			d.order = append(d.order, key)
		}
		if key == packagesKey {
			d.hasPackages = true
			d.unmarshalPackages(in)
		} else {
			d.extra[key] = append([]byte(nil), in.Raw()...)
		}
		in.WantComma()
	}
	in.Delim('}')
	if isTopLevel {
		in.Consumed()
	}
}

func (d *Document) unmarshalPackages(in *jlexer.Lexer) {
	d.Packages = nil
	if in.IsNull() {
		in.Skip()
		return
	}
	d.Packages = []*Record{}
	in.Delim('[')
	for !in.IsDelim(']') {
		r := &Record{}
		r.UnmarshalEasyJSON(in)
		d.Packages = append(d.Packages, r)
		in.WantComma()
	}
	in.Delim(']')
}

// Indent renders v as two-space indented JSON followed by a newline.
func Indent(v json.Marshaler) ([]byte, error) {
	compact, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, compact, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// decodeValue decodes one JSON value and returns it with its compacted
// encoding. Numbers become json.Number so no precision is lost.
func decodeValue(raw []byte) (any, []byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, nil, err
	}
	compact := buf.Bytes()
	v, err := readValue(compact)
	if err != nil {
		return nil, nil, err
	}
	return v, compact, nil
}

// readValue decodes the single compact JSON value in data.
func readValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, errors.New("empty value")
	}
	in := jlexer.Lexer{Data: data}
	var v any
	switch data[0] {
	case '{':
		m := map[string]any{}
		in.Delim('{')
		for !in.IsDelim('}') {
			key := in.String()
			in.WantColon()
			inner, err := readValue(in.Raw())
			if err != nil {
				return nil, err
			}
			m[key] = inner
			in.WantComma()
		}
		in.Delim('}')
		v = m
	case '[':
		s := []any{}
		in.Delim('[')
		for !in.IsDelim(']') {
			inner, err := readValue(in.Raw())
			if err != nil {
				return nil, err
			}
			s = append(s, inner)
			in.WantComma()
		}
		in.Delim(']')
		v = s
	case '"':
		v = in.String()
	case 't', 'f':
		v = in.Bool()
	case 'n':
		in.Null()
	default:
		v = in.JsonNumber()
	}
	in.Consumed()
	if err := in.Error(); err != nil {
		return nil, err
	}
	return v, nil
}

// encodeValue encodes a decoded JSON value without HTML escaping.
func encodeValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
