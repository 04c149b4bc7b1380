package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "config.json"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	return s
}

func TestOpenCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	doc := s.Get()
	if len(doc.Fixtures) == 0 || len(doc.Looks) == 0 {
		t.Fatal("default document must come pre-patched")
	}
	if doc.Network.Protocol != ProtocolSACN {
		t.Errorf("default protocol = %q, want sacn", doc.Network.Protocol)
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("defaults were not written to disk: %v", err)
	}
}

func TestOpenUnparseableFileFallsBackToDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open must not fail on a corrupt file: %v", err)
	}
	if len(s.Get().Fixtures) == 0 {
		t.Error("corrupt file must yield the default document")
	}
}

func TestMutatePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	err = s.Mutate(func(doc *Document) {
		doc.Server.Port = 8080
		doc.ActiveLayoutID = "layout1"
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	if got := s.Get().Server.Port; got != 8080 {
		t.Errorf("in-memory port = %d, want 8080", got)
	}

	// A fresh store over the same file sees the mutation.
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	doc := reopened.Get()
	if doc.Server.Port != 8080 || doc.ActiveLayoutID != "layout1" {
		t.Errorf("mutation not persisted: port=%d layout=%q", doc.Server.Port, doc.ActiveLayoutID)
	}
}

func TestReplaceNormalizesOffsets(t *testing.T) {
	s := openTemp(t)

	doc := s.Get()
	doc.FixtureProfiles = []FixtureProfile{{
		ID:   "custom",
		Name: "Custom",
		Channels: []Channel{
			{Name: "a", Offset: 7},
			{Name: "b", Offset: 3},
			{Name: "c", Offset: 3},
		},
	}}
	if err := s.Replace(doc); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	channels := s.Get().FixtureProfiles[0].Channels
	for i, ch := range channels {
		if ch.Offset != i {
			t.Errorf("channel %q offset = %d, want %d", ch.Name, ch.Offset, i)
		}
	}
}

func TestReplaceFillsDefaults(t *testing.T) {
	s := openTemp(t)

	if err := s.Replace(Document{}); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	doc := s.Get()
	if doc.Network.Protocol != ProtocolSACN {
		t.Errorf("protocol = %q, want sacn", doc.Network.Protocol)
	}
	if doc.Network.OutputFPS != 30 {
		t.Errorf("outputFps = %d, want 30", doc.Network.OutputFPS)
	}
	if doc.Network.ArtNet.Port != 6454 {
		t.Errorf("artnet port = %d, want 6454", doc.Network.ArtNet.Port)
	}
	if doc.Network.SACN.Priority != 100 {
		t.Errorf("sacn priority = %d, want 100", doc.Network.SACN.Priority)
	}
	if doc.WebServer.DefaultClientRole != "viewer" {
		t.Errorf("defaultClientRole = %q, want viewer", doc.WebServer.DefaultClientRole)
	}
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	s := openTemp(t)

	doc := s.Get()
	doc.Looks[0].Targets["panel1"]["red"] = 1
	doc.Fixtures[0].Name = "tampered"

	fresh := s.Get()
	if fresh.Looks[0].Targets["panel1"]["red"] == 1 {
		t.Error("mutating a snapshot leaked into the store")
	}
	if fresh.Fixtures[0].Name == "tampered" {
		t.Error("mutating a snapshot leaked into the store")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := openTemp(t)
	if err := s.Mutate(func(doc *Document) {
		doc.Server.Port = 9090
	}); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	data, err := s.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	other := openTemp(t)
	if err := other.Import(data); err != nil {
		t.Fatalf("Import failed: %v", err)
	}

	if !reflect.DeepEqual(s.Get(), other.Get()) {
		t.Error("imported document differs from exported one")
	}
}

func TestImportInvalidJSONLeavesDocumentUntouched(t *testing.T) {
	s := openTemp(t)
	before := s.Get()

	if err := s.Import([]byte("not json at all")); err == nil {
		t.Fatal("expected an error for invalid input")
	}

	if !reflect.DeepEqual(before, s.Get()) {
		t.Error("failed import must not change the document")
	}
}

func TestResetRestoresDefaults(t *testing.T) {
	s := openTemp(t)
	if err := s.Mutate(func(doc *Document) {
		doc.Fixtures = nil
		doc.Server.Port = 12345
	}); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	doc := s.Get()
	if len(doc.Fixtures) == 0 {
		t.Error("reset must restore the default patch")
	}
	if doc.Server.Port != 3000 {
		t.Errorf("reset port = %d, want 3000", doc.Server.Port)
	}
}

func TestReloadNotifiesAllListeners(t *testing.T) {
	s := openTemp(t)

	var got []int
	s.OnReload(func(doc Document) { got = append(got, doc.Server.Port) })
	s.OnReload(func(doc Document) { got = append(got, doc.Server.Port) })

	doc := s.Get()
	doc.Server.Port = 7000
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(s.Path(), data, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := s.reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if len(got) != 2 || got[0] != 7000 || got[1] != 7000 {
		t.Errorf("listener calls = %v, want [7000 7000]", got)
	}
}

func TestReloadSkipsOwnWrites(t *testing.T) {
	s := openTemp(t)

	fired := 0
	s.OnReload(func(Document) { fired++ })

	if err := s.Mutate(func(doc *Document) { doc.Server.Port = 4000 }); err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	if err := s.reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if fired != 0 {
		t.Errorf("reload after own write fired %d listeners, want 0", fired)
	}

	// An external edit must fire the listeners and swap the document.
	raw, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatal(err)
	}
	edited := []byte("\n" + string(raw)) // same content, different bytes
	if err := os.WriteFile(s.Path(), edited, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.reload(); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if fired != 1 {
		t.Errorf("external edit fired %d listeners, want 1", fired)
	}
}
