package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestValidateURL tests URL validation for links and subscriptions.
func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"https url", "https://example.com/post", false},
		{"http url", "http://example.com", false},
		{"empty", "", true},
		{"ftp scheme", "ftp://example.com/file", true},
		{"missing host", "https:///path", true},
		{"relative", "/posts/1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidURL) {
					t.Errorf("expected ErrInvalidURL, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

// TestCreateLink tests link creation.
func TestCreateLink(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	defer db.Close()

	t.Run("creates link with type link and empty artifacts", func(t *testing.T) {
		id, err := db.CreateLink(ctx, NewLink{Name: "Post", URL: "https://example.com/post", OwnerID: 7, CollectionID: 3})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		l, err := db.GetLink(ctx, id)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := Link{
			ID:           id,
			URL:          "https://example.com/post",
			Name:         "Post",
			Type:         LinkTypeURL,
			OwnerID:      7,
			CollectionID: 3,
			CreatedAt:    l.CreatedAt,
		}
		if diff := cmp.Diff(want, l); diff != "" {
			t.Errorf("link mismatch (-want +got):\n%s", diff)
		}
		if l.CreatedAt == "" {
			t.Error("expected CreatedAt to be set")
		}
	})

	t.Run("rejects invalid URL", func(t *testing.T) {
		_, err := db.CreateLink(ctx, NewLink{Name: "Bad", URL: "not a url", OwnerID: 1, CollectionID: 1})
		if !errors.Is(err, ErrInvalidURL) {
			t.Errorf("expected ErrInvalidURL, got %v", err)
		}
	})

	t.Run("assigns sequential IDs", func(t *testing.T) {
		id1 := addTestLink(t, db, "https://site1.com")
		id2 := addTestLink(t, db, "https://site2.com")
		if id2 <= id1 {
			t.Errorf("expected id2 (%d) > id1 (%d)", id2, id1)
		}
	})
}

// TestGetLink tests retrieving a missing link.
func TestGetLink(t *testing.T) {
	db := newTestDB(t)
	defer db.Close()

	_, err := db.GetLink(context.Background(), 99999)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// TestExistingLinkURLs tests the batched existence check.
func TestExistingLinkURLs(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	defer db.Close()

	addTestLink(t, db, "https://example.com/a")
	addTestLink(t, db, "https://example.com/b")
	if _, err := db.CreateLink(ctx, NewLink{Name: "c", URL: "https://example.com/c", OwnerID: 1, CollectionID: 2}); err != nil {
		t.Fatalf("failed to create link: %v", err)
	}

	t.Run("matches only within the collection", func(t *testing.T) {
		got, err := db.ExistingLinkURLs(ctx, 1, []string{
			"https://example.com/a",
			"https://example.com/c",
			"https://example.com/z",
		})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := map[string]bool{"https://example.com/a": true}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("existing mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("empty input", func(t *testing.T) {
		got, err := db.ExistingLinkURLs(ctx, 1, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(got) != 0 {
			t.Errorf("expected no matches, got %v", got)
		}
	})

	t.Run("more URLs than one chunk", func(t *testing.T) {
		urls := make([]string, 0, existenceChunk+10)
		for i := 0; i < existenceChunk+9; i++ {
			urls = append(urls, fmt.Sprintf("https://example.com/missing/%d", i))
		}
		urls = append(urls, "https://example.com/b")

		got, err := db.ExistingLinkURLs(ctx, 1, urls)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !got["https://example.com/b"] || len(got) != 1 {
			t.Errorf("expected only the last URL to match, got %v", got)
		}
	})
}

// TestCountLinksByOwner tests per-owner counting.
func TestCountLinksByOwner(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	defer db.Close()

	addTestLink(t, db, "https://site1.com")
	addTestLink(t, db, "https://site2.com")
	if _, err := db.CreateLink(ctx, NewLink{URL: "https://other.com", OwnerID: 2, CollectionID: 9}); err != nil {
		t.Fatalf("failed to create link: %v", err)
	}

	n, err := db.CountLinksByOwner(ctx, 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 links for owner 1, got %d", n)
	}
}

// TestListLinksMissingArtifacts tests listing links that still need archiving.
func TestListLinksMissingArtifacts(t *testing.T) {
	ctx := context.Background()

	t.Run("orders by id in both directions", func(t *testing.T) {
		db := newTestDB(t)
		defer db.Close()

		var ids []int64
		for _, u := range []string{"https://a.com", "https://b.com", "https://c.com"} {
			ids = append(ids, addTestLink(t, db, u))
		}

		asc, err := db.ListLinksMissingArtifacts(ctx, Ascending, 2)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		desc, err := db.ListLinksMissingArtifacts(ctx, Descending, 2)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		if diff := cmp.Diff([]int64{ids[0], ids[1]}, linkIDs(asc)); diff != "" {
			t.Errorf("ascending mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff([]int64{ids[2], ids[1]}, linkIDs(desc)); diff != "" {
			t.Errorf("descending mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("excludes fully archived links and keeps partial ones", func(t *testing.T) {
		db := newTestDB(t)
		defer db.Close()

		full := addTestLink(t, db, "https://full.com")
		partial := addTestLink(t, db, "https://partial.com")

		if err := db.SaveArtifacts(ctx, full, Artifacts{Image: "i", PDF: "p", Readable: "r", Monolith: "m"}); err != nil {
			t.Fatalf("failed to save artifacts: %v", err)
		}
		if err := db.SaveArtifacts(ctx, partial, Artifacts{Image: "i", PDF: "p"}); err != nil {
			t.Fatalf("failed to save artifacts: %v", err)
		}

		links, err := db.ListLinksMissingArtifacts(ctx, Ascending, 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if diff := cmp.Diff([]int64{partial}, linkIDs(links)); diff != "" {
			t.Errorf("eligible mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("excludes links without a URL", func(t *testing.T) {
		db := newTestDB(t)
		defer db.Close()

		_, err := db.db.Exec(`INSERT INTO links (name, url, type, owner_id, collection_id, created_at)
			VALUES ('note', NULL, 'text', 1, 1, '2024-01-01T00:00:00.000000000Z')`)
		if err != nil {
			t.Fatalf("failed to insert link: %v", err)
		}

		links, err := db.ListLinksMissingArtifacts(ctx, Ascending, 0)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(links) != 0 {
			t.Errorf("expected no eligible links, got %d", len(links))
		}
	})
}

func linkIDs(links []Link) []int64 {
	var out []int64
	for _, l := range links {
		out = append(out, l.ID)
	}
	return out
}

// TestSaveArtifacts tests that saving only fills the provided slots.
func TestSaveArtifacts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	defer db.Close()

	id := addTestLink(t, db, "https://example.com")

	if err := db.SaveArtifacts(ctx, id, Artifacts{Image: "archives/1/1.jpeg"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := db.SaveArtifacts(ctx, id, Artifacts{PDF: "archives/1/1.pdf"}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	l, err := db.GetLink(ctx, id)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := Artifacts{Image: "archives/1/1.jpeg", PDF: "archives/1/1.pdf"}
	if diff := cmp.Diff(want, l.Artifacts); diff != "" {
		t.Errorf("artifacts mismatch (-want +got):\n%s", diff)
	}

	t.Run("unknown link", func(t *testing.T) {
		err := db.SaveArtifacts(ctx, 99999, Artifacts{Image: "x"})
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

// TestClearArtifacts tests clearing a link for re-archiving.
func TestClearArtifacts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	defer db.Close()

	id := addTestLink(t, db, "https://example.com")
	if err := db.SaveArtifacts(ctx, id, Artifacts{Image: "i", PDF: "p", Readable: "r", Monolith: "m"}); err != nil {
		t.Fatalf("failed to save artifacts: %v", err)
	}

	if err := db.ClearArtifacts(ctx, id); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	l, err := db.GetLink(ctx, id)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if diff := cmp.Diff(Artifacts{}, l.Artifacts); diff != "" {
		t.Errorf("expected cleared artifacts (-want +got):\n%s", diff)
	}

	if err := db.ClearArtifacts(ctx, 99999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown link, got %v", err)
	}
}

// TestListLinks tests owner and collection scoping.
func TestListLinks(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	defer db.Close()

	a := addTestLink(t, db, "https://a.com")
	b, _ := db.CreateLink(ctx, NewLink{URL: "https://b.com", OwnerID: 1, CollectionID: 2})
	db.CreateLink(ctx, NewLink{URL: "https://c.com", OwnerID: 2, CollectionID: 1})

	all, err := db.ListLinks(ctx, 1, 0, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if diff := cmp.Diff([]int64{b, a}, linkIDs(all)); diff != "" {
		t.Errorf("owner links mismatch (-want +got):\n%s", diff)
	}

	inCollection, err := db.ListLinks(ctx, 1, 2, 0)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if diff := cmp.Diff([]int64{b}, linkIDs(inCollection)); diff != "" {
		t.Errorf("collection links mismatch (-want +got):\n%s", diff)
	}

	limited, err := db.ListLinks(ctx, 1, 0, 1)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("expected 1 link with limit, got %d", len(limited))
	}
}
