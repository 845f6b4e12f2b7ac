package mapping

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return v
}

func TestFromObject(t *testing.T) {
	t.Run("recognized_keys", func(t *testing.T) {
		m := FromObject(map[string]any{
			"artist_path": "artist",
			"title_path":  "title",
			"list_path":   "songs",
			"extra":       "ignored",
		})
		if m.ArtistPath != "artist" || m.TitlePath != "title" || m.ListPath != "songs" {
			t.Errorf("unexpected mapping: %+v", m)
		}
	})

	t.Run("nil_object", func(t *testing.T) {
		if FromObject(nil) != nil {
			t.Error("expected nil mapping for nil object")
		}
	})

	t.Run("non_string_values_ignored", func(t *testing.T) {
		m := FromObject(map[string]any{"artist_path": 42})
		if m.ArtistPath != "" {
			t.Errorf("expected empty artist path, got %q", m.ArtistPath)
		}
	})
}

func TestExtractMapped(t *testing.T) {
	m := &Mapping{ArtistPath: "artist", TitlePath: "title", AlbumPath: "album"}

	t.Run("flat_object", func(t *testing.T) {
		payload := decode(t, `{"artist":"Radiohead","title":"Weird Fishes","album":"In Rainbows"}`)
		f := Extract(payload, m, "http_json")
		if f.Artist == nil || *f.Artist != "Radiohead" {
			t.Errorf("artist = %v", f.Artist)
		}
		if f.Title == nil || *f.Title != "Weird Fishes" {
			t.Errorf("title = %v", f.Title)
		}
		if f.Album == nil || *f.Album != "In Rainbows" {
			t.Errorf("album = %v", f.Album)
		}
	})

	t.Run("dotted_paths", func(t *testing.T) {
		payload := decode(t, `{"now":{"song":{"artist":"Khruangbin","title":"Maria También"}}}`)
		nested := &Mapping{ArtistPath: "now.song.artist", TitlePath: "now.song.title"}
		f := Extract(payload, nested, "http_json")
		if f.Artist == nil || *f.Artist != "Khruangbin" {
			t.Errorf("artist = %v", f.Artist)
		}
	})

	t.Run("single_key_envelope_unwrap", func(t *testing.T) {
		// Mapping paths are relative to the inner object; the outer
		// single-key wrapper should be stepped through automatically.
		payload := decode(t, `{"data":{"artist":"Can","title":"Vitamin C"}}`)
		f := Extract(payload, m, "http_json")
		if f.Artist == nil || *f.Artist != "Can" {
			t.Errorf("artist = %v", f.Artist)
		}
	})

	t.Run("multi_key_root_not_unwrapped", func(t *testing.T) {
		payload := decode(t, `{"data":{"artist":"Can"},"meta":{"artist":"Wrong"}}`)
		f := Extract(payload, m, "http_json")
		if f.Artist != nil {
			t.Errorf("expected no artist, got %q", *f.Artist)
		}
	})

	t.Run("list_path_first_element", func(t *testing.T) {
		payload := decode(t, `{"recent":[{"artist":"Neu!","title":"Hallogallo"},{"artist":"Old","title":"Older"}]}`)
		withList := &Mapping{ListPath: "recent", ArtistPath: "artist", TitlePath: "title"}
		f := Extract(payload, withList, "http_json")
		if f.Artist == nil || *f.Artist != "Neu!" {
			t.Errorf("artist = %v", f.Artist)
		}
	})

	t.Run("list_path_empty_array", func(t *testing.T) {
		payload := decode(t, `{"recent":[]}`)
		withList := &Mapping{ListPath: "recent", ArtistPath: "artist"}
		f := Extract(payload, withList, "http_json")
		if f.Artist != nil {
			t.Errorf("expected empty fields, got %+v", f)
		}
	})

	t.Run("reported_at_and_duration", func(t *testing.T) {
		payload := decode(t, `{"artist":"Tortoise","title":"Djed","started":"2026-03-01T12:00:00Z","length":1261}`)
		full := &Mapping{ArtistPath: "artist", TitlePath: "title", ReportedAtPath: "started", DurationPath: "length"}
		f := Extract(payload, full, "http_json")
		if f.ReportedAt == nil {
			t.Fatal("expected reported_at")
		}
		if f.ReportedAt.UTC().Hour() != 12 {
			t.Errorf("reported_at = %v", f.ReportedAt)
		}
		if f.DurationSeconds == nil || *f.DurationSeconds != 1261 {
			t.Errorf("duration = %v", f.DurationSeconds)
		}
	})
}

func TestExtractBestEffort(t *testing.T) {
	t.Run("well_known_keys", func(t *testing.T) {
		payload := decode(t, `{"artist":"Broadcast","song":"Come On Let's Go","collectionName":"The Noise Made by People"}`)
		f := Extract(payload, nil, "http_json")
		if f.Artist == nil || *f.Artist != "Broadcast" {
			t.Errorf("artist = %v", f.Artist)
		}
		if f.Title == nil || *f.Title != "Come On Let's Go" {
			t.Errorf("title = %v", f.Title)
		}
		if f.Album == nil || *f.Album != "The Noise Made by People" {
			t.Errorf("album = %v", f.Album)
		}
	})

	t.Run("itunes_style_keys", func(t *testing.T) {
		payload := decode(t, `{"artistName":"Stereolab","trackName":"French Disko"}`)
		f := Extract(payload, nil, "http_json")
		if f.Artist == nil || *f.Artist != "Stereolab" {
			t.Errorf("artist = %v", f.Artist)
		}
		if f.Title == nil || *f.Title != "French Disko" {
			t.Errorf("title = %v", f.Title)
		}
	})

	t.Run("array_takes_first", func(t *testing.T) {
		payload := decode(t, `[{"artist":"A"},{"artist":"B"}]`)
		f := Extract(payload, nil, "http_json")
		if f.Artist == nil || *f.Artist != "A" {
			t.Errorf("artist = %v", f.Artist)
		}
	})

	t.Run("duration_key_variants", func(t *testing.T) {
		for _, key := range []string{"duration", "durationSeconds", "duration_seconds"} {
			payload := map[string]any{"artist": "X", key: float64(200)}
			f := Extract(payload, nil, "http_json")
			if f.DurationSeconds == nil || *f.DurationSeconds != 200 {
				t.Errorf("%s: duration = %v", key, f.DurationSeconds)
			}
		}
	})

	t.Run("scalar_payload", func(t *testing.T) {
		f := Extract("just a string", nil, "http_text")
		if f.Artist != nil || f.Title != nil {
			t.Errorf("expected empty fields, got %+v", f)
		}
	})
}

func TestConnectionTypePredicates(t *testing.T) {
	if !IsWSType("ws_json") || !IsWSType("WS_JSON") {
		t.Error("ws_json should match case-insensitively")
	}
	if IsWSType("http_json") {
		t.Error("http_json is not a ws type")
	}
	if !IsXMLType("http_xml") || !IsXMLType("rss") || !IsXMLType("RSS") {
		t.Error("http_xml and rss are xml types")
	}
	if IsXMLType("http_json") {
		t.Error("http_json is not an xml type")
	}
}
