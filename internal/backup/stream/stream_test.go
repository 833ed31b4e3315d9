package stream

import (
	"bytes"
	"strings"
	"testing"
)

type testEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func TestWriterReader_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	entities := []testEntity{
		{ID: "1", Name: "First"},
		{ID: "2", Name: "Second"},
		{ID: "3", Name: "Third"},
	}

	for _, e := range entities {
		if err := w.Write(e); err != nil {
			t.Fatal(err)
		}
	}

	if w.Count() != 3 {
		t.Errorf("Count() = %d, want 3", w.Count())
	}

	reader := NewReader[testEntity](&buf)

	var got []testEntity
	for entity, err := range reader.All() {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, entity)
	}

	if len(got) != len(entities) {
		t.Errorf("got %d entities, want %d", len(got), len(entities))
	}

	for i, e := range got {
		if e.ID != entities[i].ID || e.Name != entities[i].Name {
			t.Errorf("entity %d: got %+v, want %+v", i, e, entities[i])
		}
	}
}

func TestReader_SkipsEmptyLines(t *testing.T) {
	jsonl := "{\"id\":\"1\",\"name\":\"One\"}\n\n\n{\"id\":\"2\",\"name\":\"Two\"}\n"
	reader := NewReader[testEntity](strings.NewReader(jsonl))

	var got []testEntity
	for entity, err := range reader.All() {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, entity)
	}

	if len(got) != 2 {
		t.Errorf("got %d entities, want 2", len(got))
	}
}

func TestReader_ContinuesOnParseError(t *testing.T) {
	// Create JSONL with one bad line
	jsonl := `{"id":"1","name":"Good"}
{bad json}
{"id":"2","name":"Also Good"}
`
	reader := NewReader[testEntity](strings.NewReader(jsonl))

	var good []testEntity
	var errors int

	for entity, err := range reader.All() {
		if err != nil {
			errors++
			continue
		}
		good = append(good, entity)
	}

	if len(good) != 2 {
		t.Errorf("got %d good entities, want 2", len(good))
	}
	if errors != 1 {
		t.Errorf("got %d errors, want 1", errors)
	}
}

func TestReader_LongLines(t *testing.T) {
	// A chapter body dump easily exceeds bufio.Scanner's default token size.
	long := strings.Repeat("word ", 40_000)

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.Write(testEntity{ID: "1", Name: long}); err != nil {
		t.Fatal(err)
	}

	reader := NewReader[testEntity](&buf)
	var got []testEntity
	for entity, err := range reader.All() {
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, entity)
	}

	if len(got) != 1 {
		t.Fatalf("got %d entities, want 1", len(got))
	}
	if got[0].Name != long {
		t.Errorf("long field did not survive the round trip (len %d, want %d)", len(got[0].Name), len(long))
	}
}
