package database

import (
	"context"
	"path/filepath"
	"testing"

	"streamvault/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func episodeIdentity() models.ContentIdentity {
	return models.ContentIdentity{
		PrimaryID:  1429,
		MediaType:  models.MediaTypeAnime,
		Season:     1,
		Episode:    3,
		AudioTrack: models.AudioTrackSub,
	}
}

func TestStreamStoreInsertIfAbsentIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	streams := db.Streams()
	id := episodeIdentity()

	link := models.StreamLink{
		URL:      "https://kwik.cx/e/abc123",
		Quality:  "1080p",
		IsM3U8:   true,
		Provider: "AnimePahe",
		Headers:  map[string]string{"Referer": "https://kwik.cx/"},
	}

	for i := 0; i < 3; i++ {
		if err := streams.InsertIfAbsent(ctx, id, link); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	got, err := streams.FindByIdentity(ctx, id)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected exactly one row after repeated inserts, got %d", len(got))
	}
	if got[0].Headers["Referer"] != "https://kwik.cx/" {
		t.Fatalf("headers not round-tripped: %+v", got[0].Headers)
	}
	if !got[0].IsM3U8 || got[0].Quality != "1080p" || got[0].Provider != "AnimePahe" {
		t.Fatalf("link fields not round-tripped: %+v", got[0])
	}
}

func TestStreamStoreDistinctURLsAccumulate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	streams := db.Streams()
	id := episodeIdentity()

	if err := streams.InsertIfAbsent(ctx, id, models.StreamLink{URL: "https://a.example/1"}); err != nil {
		t.Fatal(err)
	}
	if err := streams.InsertIfAbsent(ctx, id, models.StreamLink{URL: "https://b.example/2"}); err != nil {
		t.Fatal(err)
	}

	got, err := streams.FindByIdentity(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
}

func TestStreamStoreIdentityIsolation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	streams := db.Streams()

	sub := episodeIdentity()
	dub := sub
	dub.AudioTrack = models.AudioTrackDub

	if err := streams.InsertIfAbsent(ctx, sub, models.StreamLink{URL: "https://a.example/sub"}); err != nil {
		t.Fatal(err)
	}

	ok, err := streams.HasIdentity(ctx, dub)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("dub identity must not see sub rows")
	}
	ok, err = streams.HasIdentity(ctx, sub)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("sub identity should have rows")
	}
}

func TestMappingStoreUpsert(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	mappings := db.Mappings()
	series := episodeIdentity().WithoutEpisode()

	url, err := mappings.Find(ctx, "GogoAnime", series)
	if err != nil {
		t.Fatal(err)
	}
	if url != "" {
		t.Fatalf("expected no mapping, got %q", url)
	}

	if err := mappings.Upsert(ctx, "GogoAnime", series, "https://gogoanime.by/category/attack-on-titan", "Attack on Titan"); err != nil {
		t.Fatal(err)
	}
	if err := mappings.Upsert(ctx, "GogoAnime", series, "https://gogoanime.by/category/shingeki-no-kyojin", "Attack on Titan"); err != nil {
		t.Fatal(err)
	}

	url, err = mappings.Find(ctx, "GogoAnime", series)
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://gogoanime.by/category/shingeki-no-kyojin" {
		t.Fatalf("upsert did not replace url, got %q", url)
	}
}

func TestMappingStoreKeyIgnoresEpisode(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	mappings := db.Mappings()

	ep3 := episodeIdentity()
	if err := mappings.Upsert(ctx, "GogoAnime", ep3.WithoutEpisode(), "https://gogoanime.by/series/attack-on-titan", "Attack on Titan"); err != nil {
		t.Fatal(err)
	}

	ep7 := ep3
	ep7.Episode = 7
	url, err := mappings.Find(ctx, "GogoAnime", ep7.WithoutEpisode())
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://gogoanime.by/series/attack-on-titan" {
		t.Fatalf("mapping not shared across episodes, got %q", url)
	}
}

func TestStreamStoreLinkAudioTrackRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	streams := db.Streams()

	// A TV identity carries no track of its own, but GogoAnime stores
	// distinct subbed and dubbed links under it.
	id := models.ContentIdentity{PrimaryID: 1396, MediaType: models.MediaTypeTV, Season: 1, Episode: 3}
	if err := streams.InsertIfAbsent(ctx, id, models.StreamLink{URL: "https://a.example/sub", AudioTrack: models.AudioTrackSub}); err != nil {
		t.Fatal(err)
	}
	if err := streams.InsertIfAbsent(ctx, id, models.StreamLink{URL: "https://a.example/dub", AudioTrack: models.AudioTrackDub}); err != nil {
		t.Fatal(err)
	}

	got, err := streams.FindByIdentity(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	tracks := map[models.AudioTrack]bool{}
	for _, l := range got {
		tracks[l.AudioTrack] = true
	}
	if !tracks[models.AudioTrackSub] || !tracks[models.AudioTrackDub] {
		t.Fatalf("per-link audio tracks not round-tripped: %+v", got)
	}
}

func TestStreamStoreDeleteByIdentity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	streams := db.Streams()
	id := episodeIdentity()

	if err := streams.InsertIfAbsent(ctx, id, models.StreamLink{URL: "https://a.example/1"}); err != nil {
		t.Fatal(err)
	}
	if err := streams.DeleteByIdentity(ctx, id); err != nil {
		t.Fatal(err)
	}
	ok, err := streams.HasIdentity(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("rows survived deletion")
	}
}
