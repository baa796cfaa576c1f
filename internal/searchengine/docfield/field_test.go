package docfield

import "testing"

func sampleDoc() any {
	var doc any = map[string]any{
		"title": "red fox",
		"price": 10.0,
		"meta": map[string]any{
			"active": true,
			"count":  3.0,
		},
		"tags":  []any{"new", "sale"},
		"empty": nil,
	}
	return doc
}

func TestGetFieldScalar(t *testing.T) {
	doc := sampleDoc()
	if v, ok := GetField(doc, "title"); !ok || v != "red fox" {
		t.Fatalf("GetField(title) = %v, %v", v, ok)
	}
	if v, ok := GetField(doc, "meta.count"); !ok || v != 3.0 {
		t.Fatalf("GetField(meta.count) = %v, %v", v, ok)
	}
}

func TestGetFieldNonScalarOrMissing(t *testing.T) {
	doc := sampleDoc()
	if _, ok := GetField(doc, "tags"); ok {
		t.Fatalf("GetField(tags) should not be scalar")
	}
	if _, ok := GetField(doc, "meta"); ok {
		t.Fatalf("GetField(meta) should not be scalar")
	}
	if _, ok := GetField(doc, "nope"); ok {
		t.Fatalf("GetField(nope) should be absent")
	}
	if _, ok := GetField(doc, "meta..count"); ok {
		t.Fatalf("empty path component must yield no field")
	}
	if _, ok := GetField(doc, "meta.bogus.deep"); ok {
		t.Fatalf("missing intermediate object must short-circuit")
	}
}

func TestHasField(t *testing.T) {
	doc := sampleDoc()
	if !HasField(doc, "empty") {
		t.Fatalf("explicit null should report present")
	}
	if HasField(doc, "nope") {
		t.Fatalf("missing field should report absent")
	}
}

func TestFieldType(t *testing.T) {
	doc := sampleDoc()
	cases := map[string]Type{
		"title":      TypeString,
		"price":      TypeInt64,
		"meta.count": TypeInt64,
		"meta":       TypeObject,
		"tags":       TypeArray,
		"empty":      TypeNull,
		"nope":       TypeNull,
	}
	for path, want := range cases {
		if got := FieldType(doc, path); got != want {
			t.Fatalf("FieldType(%s) = %v, want %v", path, got, want)
		}
	}
}
