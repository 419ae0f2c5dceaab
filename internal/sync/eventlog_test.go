package syncx_test

import (
	"context"
	"testing"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

func TestEventRepo_AppendByKey(t *testing.T) {
	ctx := context.Background()
	dbh, err := db.Open(ctx, db.DriverSQLite, "file:eventlog_test.db?mode=memory&cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	defer dbh.Close()
	r := syncx.NewEventRepo(dbh)

	for _, k := range []string{"s1", "s2", "s1"} {
		if err := r.Append(ctx, syncx.Event{Type: syncx.TypeSittingCompleted, Key: k, DataJSON: `{}`}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := r.ByKey(ctx, "s1")
	if err != nil {
		t.Fatalf("by key: %v", err)
	}
	if len(got) != 2 || got[0].Seq >= got[1].Seq || got[0].SiteID != "local" {
		t.Fatalf("unexpected events %+v", got)
	}
	if none, _ := r.ByKey(ctx, "nope"); len(none) != 0 {
		t.Fatalf("expected no events, got %+v", none)
	}
}
