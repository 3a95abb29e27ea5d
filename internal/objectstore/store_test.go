package objectstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-unifi/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-unifi/migrations" // registers the schema
)

// openTestDB opens a migrated SQLite database in a temp directory.
func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "unifi.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

// fullStore is what both implementations provide.
type fullStore interface {
	Store
	Browser
}

// allStores runs the same contract tests against both implementations.
func allStores() []struct {
	name string
	new  func(t *testing.T) fullStore
} {
	return []struct {
		name string
		new  func(t *testing.T) fullStore
	}{
		{name: "memory", new: func(*testing.T) fullStore { return NewMemoryStore() }},
		{name: "sqlite", new: func(t *testing.T) fullStore { return NewSQLiteStore(openTestDB(t).DB) }},
	}
}

func TestStore_GetStateNotFound(t *testing.T) {
	for _, tc := range allStores() {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.new(t)
			_, err := s.GetState(context.Background(), "default.health.num_ap")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("GetState() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_SetObjectNotExistsIsIdempotent(t *testing.T) {
	for _, tc := range allStores() {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.new(t)
			ctx := context.Background()

			first := Object{ID: "default", Type: TypeChannel, Common: Common{Name: "Site Home"}}
			created, err := s.SetObjectNotExists(ctx, first)
			if err != nil {
				t.Fatalf("SetObjectNotExists() error = %v", err)
			}
			if !created {
				t.Error("first SetObjectNotExists() created = false")
			}

			second := Object{ID: "default", Type: TypeState, Common: Common{Name: "renamed"}}
			created, err = s.SetObjectNotExists(ctx, second)
			if err != nil {
				t.Fatalf("SetObjectNotExists() error = %v", err)
			}
			if created {
				t.Error("second SetObjectNotExists() created = true")
			}

			got, err := s.GetObject(ctx, "default")
			if err != nil {
				t.Fatalf("GetObject() error = %v", err)
			}
			if got.Type != TypeChannel || got.Common.Name != "Site Home" {
				t.Errorf("object overwritten: %+v", got)
			}
		})
	}
}

func TestStore_SetObjectValidation(t *testing.T) {
	for _, tc := range allStores() {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.new(t)
			ctx := context.Background()

			if _, err := s.SetObjectNotExists(ctx, Object{Type: TypeChannel}); !errors.Is(err, ErrInvalidID) {
				t.Errorf("empty id error = %v, want ErrInvalidID", err)
			}
			if _, err := s.SetObjectNotExists(ctx, Object{ID: "x", Type: "folder"}); !errors.Is(err, ErrInvalidType) {
				t.Errorf("bad type error = %v, want ErrInvalidType", err)
			}
			if err := s.SetState(ctx, "", 1, true); !errors.Is(err, ErrInvalidID) {
				t.Errorf("SetState empty id error = %v, want ErrInvalidID", err)
			}
		})
	}
}

func TestStore_SetStateRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{name: "number", value: json.Number("3"), want: "3"},
		{name: "string", value: "wlan", want: `"wlan"`},
		{name: "bool", value: true, want: "true"},
		{name: "null", value: nil, want: "null"},
		{name: "joined list", value: "1,2,3", want: `"1,2,3"`},
	}

	for _, tc := range allStores() {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.new(t)
			ctx := context.Background()

			for _, tt := range tests {
				id := "default.health." + tt.name
				if err := s.SetState(ctx, id, tt.value, true); err != nil {
					t.Fatalf("SetState(%s) error = %v", id, err)
				}
				st, err := s.GetState(ctx, id)
				if err != nil {
					t.Fatalf("GetState(%s) error = %v", id, err)
				}
				b, _ := json.Marshal(st.Value) //nolint:errcheck // plain values
				if string(b) != tt.want {
					t.Errorf("%s: value = %s, want %s", tt.name, b, tt.want)
				}
				if !st.Ack {
					t.Errorf("%s: Ack = false", tt.name)
				}
				if st.UpdatedAt.IsZero() {
					t.Errorf("%s: UpdatedAt is zero", tt.name)
				}
			}
		})
	}
}

func TestStore_SetStateOverwrites(t *testing.T) {
	for _, tc := range allStores() {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.new(t)
			ctx := context.Background()

			_ = s.SetState(ctx, "default.clients.aa.rx_bytes", json.Number("10"), false) //nolint:errcheck // checked below
			if err := s.SetState(ctx, "default.clients.aa.rx_bytes", json.Number("20"), true); err != nil {
				t.Fatalf("SetState() error = %v", err)
			}

			st, err := s.GetState(ctx, "default.clients.aa.rx_bytes")
			if err != nil {
				t.Fatalf("GetState() error = %v", err)
			}
			if st.Value != json.Number("20") || !st.Ack {
				t.Errorf("state = %+v, want 20 acked", st)
			}
		})
	}
}

func TestStore_ListByPrefix(t *testing.T) {
	for _, tc := range allStores() {
		t.Run(tc.name, func(t *testing.T) {
			s := tc.new(t)
			ctx := context.Background()

			ids := []string{
				"default",
				"default.health",
				"default.health.wlan",
				"default.health.wlan.num_ap",
				"default2",
				"default2.health",
			}
			for _, id := range ids {
				if _, err := s.SetObjectNotExists(ctx, Object{ID: id, Type: TypeChannel}); err != nil {
					t.Fatalf("SetObjectNotExists(%s) error = %v", id, err)
				}
				if err := s.SetState(ctx, id, id, true); err != nil {
					t.Fatalf("SetState(%s) error = %v", id, err)
				}
			}

			objs, err := s.ListObjects(ctx, "default")
			if err != nil {
				t.Fatalf("ListObjects() error = %v", err)
			}
			var got []string
			for _, o := range objs {
				got = append(got, o.ID)
			}
			want := ids[:4]
			if len(got) != len(want) {
				t.Fatalf("ListObjects(default) = %v, want %v", got, want)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Errorf("ListObjects()[%d] = %s, want %s (creation order)", i, got[i], want[i])
				}
			}

			states, err := s.ListStates(ctx, "default.health")
			if err != nil {
				t.Fatalf("ListStates() error = %v", err)
			}
			if len(states) != 3 {
				t.Errorf("ListStates(default.health) len = %d, want 3", len(states))
			}

			all, err := s.ListObjects(ctx, "")
			if err != nil {
				t.Fatalf("ListObjects(\"\") error = %v", err)
			}
			if len(all) != len(ids) {
				t.Errorf("ListObjects(\"\") len = %d, want %d", len(all), len(ids))
			}
		})
	}
}

func TestSQLiteStore_PrefixEscapesWildcards(t *testing.T) {
	s := NewSQLiteStore(openTestDB(t).DB)
	ctx := context.Background()

	for _, id := range []string{"site_a.x", "siteXa.x"} {
		if _, err := s.SetObjectNotExists(ctx, Object{ID: id, Type: TypeState}); err != nil {
			t.Fatalf("SetObjectNotExists(%s) error = %v", id, err)
		}
	}

	objs, err := s.ListObjects(ctx, "site_a")
	if err != nil {
		t.Fatalf("ListObjects() error = %v", err)
	}
	if len(objs) != 1 || objs[0].ID != "site_a.x" {
		t.Errorf("ListObjects(site_a) = %+v, want only site_a.x", objs)
	}
}

func TestSQLiteStore_ObjectMetadata(t *testing.T) {
	s := NewSQLiteStore(openTestDB(t).DB)
	ctx := context.Background()

	obj := Object{
		ID:     "default.health.wlan.num_ap",
		Type:   TypeState,
		Common: Common{Name: "num_ap", ValueType: ValueTypeNumber, Read: true},
		Native: map[string]string{"id": "default.health.wlan.num_ap"},
	}
	if _, err := s.SetObjectNotExists(ctx, obj); err != nil {
		t.Fatalf("SetObjectNotExists() error = %v", err)
	}

	got, err := s.GetObject(ctx, obj.ID)
	if err != nil {
		t.Fatalf("GetObject() error = %v", err)
	}
	if got.Common != obj.Common {
		t.Errorf("Common = %+v, want %+v", got.Common, obj.Common)
	}
	if got.Native["id"] != obj.ID {
		t.Errorf("Native = %v", got.Native)
	}
	if time.Since(got.CreatedAt) > time.Minute {
		t.Errorf("CreatedAt = %v, want recent", got.CreatedAt)
	}

	if _, err := s.GetObject(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetObject(missing) error = %v, want ErrNotFound", err)
	}
}
