package models

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/archivarr/archivarr/internal/provider"
)

const testCronSelection = "M 7-21/4 * * *|M 6-22/4 * * *"

func newTestDB(t *testing.T) *Database {
	t.Helper()
	db, err := NewDatabase(filepath.Join(t.TempDir(), "test.db"), testCronSelection)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustSaveChannel(t *testing.T, db *Database, channel *Channel) *Channel {
	t.Helper()
	if err := db.SaveChannel(channel); err != nil {
		t.Fatalf("SaveChannel failed: %v", err)
	}
	return channel
}

func mustSaveVideo(t *testing.T, db *Database, video *Video) *Video {
	t.Helper()
	if err := db.SaveVideo(video); err != nil {
		t.Fatalf("SaveVideo failed: %v", err)
	}
	return video
}

func TestSaveChannelAssignsCrontab(t *testing.T) {
	db := newTestDB(t)

	channel := mustSaveChannel(t, db, &Channel{
		ProviderID: "UC1", Name: "The Workshop", Status: ChannelActive, IndexVideos: true,
	})
	if channel.ScannerCrontab == "" {
		t.Error("Indexing-enabled channel should receive a crontab")
	}
	if channel.Slug != "the-workshop" {
		t.Errorf("Expected slug the-workshop, got %q", channel.Slug)
	}
	if channel.SortName != "Workshop, The" {
		t.Errorf("Expected rotated sort name, got %q", channel.SortName)
	}

	// Disabling all indexing clears the cron
	channel.IndexVideos = false
	mustSaveChannel(t, db, channel)
	if channel.ScannerCrontab != "" {
		t.Errorf("Crontab should clear when indexing is disabled, got %q", channel.ScannerCrontab)
	}
}

func TestSaveChannelKeepsExplicitCrontab(t *testing.T) {
	db := newTestDB(t)
	channel := mustSaveChannel(t, db, &Channel{
		ProviderID: "UC1", Name: "Ch", Status: ChannelActive,
		IndexVideos: true, ScannerCrontab: "15 9 * * *",
	})
	if channel.ScannerCrontab != "15 9 * * *" {
		t.Errorf("Explicit crontab should survive, got %q", channel.ScannerCrontab)
	}
}

func TestSaveChannelFullArchiveClearsTrigger(t *testing.T) {
	db := newTestDB(t)
	after := time.Now().Add(time.Hour)
	channel := mustSaveChannel(t, db, &Channel{
		ProviderID: "UC1", Name: "Ch", Status: ChannelActive,
		FullArchive: true, FullArchiveAfter: &after,
	})
	if channel.FullArchiveAfter != nil {
		t.Error("FullArchiveAfter should clear when FullArchive is set")
	}
}

func TestSaveChannelCutoffChangeResetsFullyIndexed(t *testing.T) {
	db := newTestDB(t)
	channel := mustSaveChannel(t, db, &Channel{
		ProviderID: "UC1", Name: "Ch", Status: ChannelActive,
		IndexVideos: true, FullyIndexedVideos: true,
	})

	cutoff := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	channel.FullArchiveCutoff = &cutoff
	mustSaveChannel(t, db, channel)
	if channel.FullyIndexedVideos {
		t.Error("Cutoff change should reset the fully-indexed flag")
	}
}

func TestSaveChannelReenabledTabResetsFullyIndexed(t *testing.T) {
	db := newTestDB(t)
	channel := mustSaveChannel(t, db, &Channel{
		ProviderID: "UC1", Name: "Ch", Status: ChannelActive,
		IndexVideos: true, FullyIndexedShorts: true,
	})

	channel.IndexShorts = true
	mustSaveChannel(t, db, channel)
	if channel.FullyIndexedShorts {
		t.Error("Re-enabling a tab should reset its fully-indexed flag")
	}
}

func TestSaveVideoAppendsHistory(t *testing.T) {
	db := newTestDB(t)
	video := mustSaveVideo(t, db, &Video{
		ProviderID: "v1", Title: "Original", PrivacyStatus: PrivacyPublic,
	})

	video.Title = "Renamed"
	video.PrivacyStatus = PrivacyPrivate
	mustSaveVideo(t, db, video)

	var history []VideoHistory
	if err := db.db.Where("video_id = ?", video.ID).Order("field").Find(&history).Error; err != nil {
		t.Fatalf("Failed to load history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("Expected 2 history rows, got %d", len(history))
	}
	if history[0].Field != "privacy_status" || history[0].OldValue != "public" {
		t.Errorf("Unexpected privacy history: %+v", history[0])
	}
	if history[1].Field != "title" || history[1].OldValue != "Original" || history[1].NewValue != "Renamed" {
		t.Errorf("Unexpected title history: %+v", history[1])
	}
}

func TestSaveVideoNoHistoryFromEmptyPrior(t *testing.T) {
	db := newTestDB(t)
	video := mustSaveVideo(t, db, &Video{ProviderID: "v1"})

	video.Title = "First Title"
	mustSaveVideo(t, db, video)

	var count int64
	db.db.Model(&VideoHistory{}).Where("video_id = ?", video.ID).Count(&count)
	if count != 0 {
		t.Errorf("Empty prior title should not append history, got %d rows", count)
	}
}

func TestSortOrderingAssignedPerChannel(t *testing.T) {
	db := newTestDB(t)
	channel := mustSaveChannel(t, db, &Channel{ProviderID: "UC1", Name: "Ch", Status: ChannelActive})

	a := mustSaveVideo(t, db, &Video{ProviderID: "v1", ChannelID: &channel.ID})
	b := mustSaveVideo(t, db, &Video{ProviderID: "v2", ChannelID: &channel.ID})
	if a.SortOrdering != 1 || b.SortOrdering != 2 {
		t.Errorf("Expected orderings 1,2 got %d,%d", a.SortOrdering, b.SortOrdering)
	}
}

func TestRecomputeSortOrderingByUploadDate(t *testing.T) {
	db := newTestDB(t)
	channel := mustSaveChannel(t, db, &Channel{ProviderID: "UC1", Name: "Ch", Status: ChannelActive})

	newer := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// Inserted newest first, so initial ordering disagrees with upload order
	a := mustSaveVideo(t, db, &Video{ProviderID: "v1", ChannelID: &channel.ID, UploadDate: &newer})
	b := mustSaveVideo(t, db, &Video{ProviderID: "v2", ChannelID: &channel.ID, UploadDate: &older})

	if err := db.RecomputeSortOrdering(channel.ID); err != nil {
		t.Fatalf("RecomputeSortOrdering failed: %v", err)
	}

	a, _ = db.GetVideoByID(a.ID)
	b, _ = db.GetVideoByID(b.ID)
	if b.SortOrdering != 1 || a.SortOrdering != 2 {
		t.Errorf("Expected upload-date ordering, got older=%d newer=%d", b.SortOrdering, a.SortOrdering)
	}
}

func TestBlockedTombstone(t *testing.T) {
	db := newTestDB(t)
	if err := db.BlockVideo("v1", "spam"); err != nil {
		t.Fatalf("BlockVideo failed: %v", err)
	}

	_, _, err := db.GetOrCreateVideoFromSummary(provider.VideoSummary{ProviderID: "v1", Title: "Back"}, TabVideos)
	if !errors.Is(err, ErrVideoBlocked) {
		t.Errorf("Expected ErrVideoBlocked, got %v", err)
	}

	// Blocking twice is idempotent
	if err := db.BlockVideo("v1", "spam again"); err != nil {
		t.Errorf("Repeat BlockVideo should be a no-op: %v", err)
	}
}

func TestGetOrCreateVideoFromSummary(t *testing.T) {
	db := newTestDB(t)
	channel := mustSaveChannel(t, db, &Channel{ProviderID: "UC1", Name: "Ch", Status: ChannelActive})

	video, created, err := db.GetOrCreateVideoFromSummary(provider.VideoSummary{
		ProviderID: "v1", Title: "New", Duration: 300,
		UploadDate: "20240212", Availability: "public", ChannelID: "UC1",
	}, TabShorts)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if !created {
		t.Fatal("Expected creation")
	}
	if !video.IsShort || video.IsVideo {
		t.Error("Classification should be shorts")
	}
	if video.ChannelID == nil || *video.ChannelID != channel.ID {
		t.Error("Channel should resolve from provider id")
	}
	if video.PrivacyStatus != PrivacyPublic {
		t.Errorf("Expected public, got %s", video.PrivacyStatus)
	}
	// Insertion date pins to the upload day
	if !video.CreatedAt.Equal(time.Date(2024, 2, 12, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("CreatedAt should pin to upload date, got %v", video.CreatedAt)
	}

	// Second call finds the existing row without reclassifying
	again, created, err := db.GetOrCreateVideoFromSummary(provider.VideoSummary{
		ProviderID: "v1", Title: "New",
	}, TabVideos)
	if err != nil || created {
		t.Fatalf("Expected existing row, created=%v err=%v", created, err)
	}
	if again.ID != video.ID || !again.IsShort {
		t.Error("Existing classification should be preserved")
	}
}

func TestDeleteVideoRequiresAuthorization(t *testing.T) {
	db := newTestDB(t)
	video := mustSaveVideo(t, db, &Video{ProviderID: "v1"})

	if err := db.db.Delete(video).Error; !errors.Is(err, ErrUnauthorizedVideoDeletion) {
		t.Errorf("Stray delete should be refused, got %v", err)
	}
	if err := db.DeleteVideo(video); err != nil {
		t.Errorf("Sanctioned delete should pass: %v", err)
	}
	if _, err := db.GetVideoByID(video.ID); err == nil {
		t.Error("Video should be gone")
	}
}

func TestDeleteVideoCascades(t *testing.T) {
	db := newTestDB(t)
	video := mustSaveVideo(t, db, &Video{ProviderID: "v1", Duration: 100})
	other := mustSaveVideo(t, db, &Video{ProviderID: "v2"})

	db.RecordDownloadError(video.ID, "boom", nil, 720, 1)
	db.UpsertChapterHighlight(video.ID, 10, nil, "Intro")
	db.CreateDurationSkip(&DurationSkip{VideoID: video.ID, Start: 5, End: 10}, true)
	db.AddRelatedVideo(video.ID, other.ID)

	if err := db.DeleteVideo(video); err != nil {
		t.Fatalf("DeleteVideo failed: %v", err)
	}

	var count int64
	db.db.Model(&DownloadError{}).Where("video_id = ?", video.ID).Count(&count)
	if count != 0 {
		t.Error("Download errors should cascade")
	}
	db.db.Model(&VideoRelation{}).Where("video_id = ? OR related_id = ?", video.ID, video.ID).Count(&count)
	if count != 0 {
		t.Error("Relations should cascade both directions")
	}
}

func TestRecordPlaybackUpdatesInPlace(t *testing.T) {
	db := newTestDB(t)
	video := mustSaveVideo(t, db, &Video{ProviderID: "v1", Duration: 600})

	now := time.Now()
	first, err := db.RecordPlayback(1, video.ID, nil, 100, now)
	if err != nil {
		t.Fatalf("RecordPlayback failed: %v", err)
	}
	second, err := db.RecordPlayback(1, video.ID, nil, 200, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("RecordPlayback failed: %v", err)
	}
	if first.ID != second.ID {
		t.Error("Same-day progress should update in place")
	}
	if second.Seconds != 200 {
		t.Errorf("Expected 200 seconds, got %d", second.Seconds)
	}
}

func TestRecordPlaybackRegressionStartsFreshRow(t *testing.T) {
	db := newTestDB(t)
	video := mustSaveVideo(t, db, &Video{ProviderID: "v1", Duration: 600})

	now := time.Now()
	first, _ := db.RecordPlayback(1, video.ID, nil, 500, now)

	// Backward >120s after >10min idle is a rewatch
	fresh, err := db.RecordPlayback(1, video.ID, nil, 30, now.Add(15*time.Minute))
	if err != nil {
		t.Fatalf("RecordPlayback failed: %v", err)
	}
	if fresh.ID == first.ID {
		t.Error("Regression after idle should create a new row")
	}

	// Backward jump without the idle gap updates in place
	inPlace, _ := db.RecordPlayback(1, video.ID, nil, 10, now.Add(16*time.Minute))
	if inPlace.ID != fresh.ID {
		t.Error("Small-gap regression should update in place")
	}
}

func TestWatchedAtLeast(t *testing.T) {
	db := newTestDB(t)
	video := mustSaveVideo(t, db, &Video{ProviderID: "v1", Duration: 100})

	db.RecordPlayback(1, video.ID, nil, 80, time.Now())
	watched, err := db.WatchedAtLeast(video.ID, 0.9)
	if err != nil {
		t.Fatalf("WatchedAtLeast failed: %v", err)
	}
	if watched {
		t.Error("80 of 100 should not count as 90% watched")
	}

	db.RecordPlayback(1, video.ID, nil, 95, time.Now())
	watched, _ = db.WatchedAtLeast(video.ID, 0.9)
	if !watched {
		t.Error("95 of 100 should count as watched")
	}
}

func TestDurationSkipOverlap(t *testing.T) {
	db := newTestDB(t)
	video := mustSaveVideo(t, db, &Video{ProviderID: "v1", Duration: 600})

	if err := db.CreateDurationSkip(&DurationSkip{VideoID: video.ID, Start: 10, End: 20}, true); err != nil {
		t.Fatalf("First skip failed: %v", err)
	}

	err := db.CreateDurationSkip(&DurationSkip{VideoID: video.ID, Start: 15, End: 25}, true)
	if !errors.Is(err, ErrOverlappingSkip) {
		t.Errorf("Overlapping interval should be rejected, got %v", err)
	}

	// Touching at the boundary is allowed in lenient mode only
	if err := db.CreateDurationSkip(&DurationSkip{VideoID: video.ID, Start: 20, End: 30}, true); err != nil {
		t.Errorf("Boundary touch should pass in lenient mode: %v", err)
	}
	err = db.CreateDurationSkip(&DurationSkip{VideoID: video.ID, Start: 30, End: 40}, false)
	if !errors.Is(err, ErrOverlappingSkip) {
		t.Errorf("Boundary touch should fail in strict mode, got %v", err)
	}

	if err := db.CreateDurationSkip(&DurationSkip{VideoID: video.ID, Start: 50, End: 50}, true); err == nil {
		t.Error("Empty interval should be rejected")
	}
}

func TestPlaylistNotFoundDisablesAtThreshold(t *testing.T) {
	db := newTestDB(t)
	playlist := &Playlist{ProviderObjectID: "PL1", Title: "List", Crontab: "0 9 * * *"}
	if err := db.SavePlaylist(playlist); err != nil {
		t.Fatalf("SavePlaylist failed: %v", err)
	}

	for i := 0; i < 4; i++ {
		disabled, err := db.RecordPlaylistNotFound(playlist)
		if err != nil {
			t.Fatalf("RecordPlaylistNotFound failed: %v", err)
		}
		if disabled {
			t.Fatalf("Should not disable at failure %d", i+1)
		}
	}
	disabled, err := db.RecordPlaylistNotFound(playlist)
	if err != nil {
		t.Fatalf("RecordPlaylistNotFound failed: %v", err)
	}
	if !disabled {
		t.Error("Fifth consecutive failure should disable scanning")
	}
	if playlist.Crontab != "" {
		t.Error("Crontab should be cleared on disable")
	}
}

func TestSavePlaylistInvariants(t *testing.T) {
	db := newTestDB(t)

	// User-curated playlists never carry a cron
	curated := &Playlist{Title: "Mix", Crontab: "0 9 * * *"}
	db.SavePlaylist(curated)
	if curated.Crontab != "" {
		t.Error("Curated playlist should lose its cron")
	}

	// Hidden playlists lose cron and auto-add rules
	hidden := &Playlist{ProviderObjectID: "PL1", Title: "H", Crontab: "0 9 * * *",
		Hidden: true, VideoIndexingAddByTitle: "keyword"}
	db.SavePlaylist(hidden)
	if hidden.Crontab != "" || hidden.VideoIndexingAddByTitle != "" {
		t.Error("Hidden playlist should lose cron and auto-add rules")
	}
}

func TestAddVideoToPlaylist(t *testing.T) {
	db := newTestDB(t)
	playlist := &Playlist{ProviderObjectID: "PL1", Title: "List"}
	db.SavePlaylist(playlist)
	video := mustSaveVideo(t, db, &Video{ProviderID: "v1", PrivacyStatus: PrivacyPublic})

	item, created, err := db.AddVideoToPlaylist(playlist.ID, video.ID, false)
	if err != nil || !created {
		t.Fatalf("Expected creation, created=%v err=%v", created, err)
	}
	if item.DisplayOrder != 1 || !item.Download {
		t.Errorf("Unexpected item defaults: %+v", item)
	}

	_, created, _ = db.AddVideoToPlaylist(playlist.ID, video.ID, false)
	if created {
		t.Error("Second add should find the existing edge")
	}

	pending, err := db.PendingPlaylistItems(playlist.ID)
	if err != nil {
		t.Fatalf("PendingPlaylistItems failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("Expected 1 pending item, got %d", len(pending))
	}
	if pending[0].Video == nil || pending[0].Video.ProviderID != "v1" {
		t.Error("Pending item should preload its video")
	}
}

func TestPendingPlaylistItemsSkipsArchivedAndDisabled(t *testing.T) {
	db := newTestDB(t)
	playlist := &Playlist{ProviderObjectID: "PL1", Title: "List"}
	db.SavePlaylist(playlist)

	archived := mustSaveVideo(t, db, &Video{ProviderID: "v1", PrivacyStatus: PrivacyPublic, File: "a/b.mp4"})
	private := mustSaveVideo(t, db, &Video{ProviderID: "v2", PrivacyStatus: PrivacyPrivate})
	disabled := mustSaveVideo(t, db, &Video{ProviderID: "v3", PrivacyStatus: PrivacyPublic})
	wanted := mustSaveVideo(t, db, &Video{ProviderID: "v4", PrivacyStatus: PrivacyUnlisted})

	db.AddVideoToPlaylist(playlist.ID, archived.ID, false)
	db.AddVideoToPlaylist(playlist.ID, private.ID, false)
	item, _, _ := db.AddVideoToPlaylist(playlist.ID, disabled.ID, false)
	item.Download = false
	db.SavePlaylistItem(item)
	db.AddVideoToPlaylist(playlist.ID, wanted.ID, false)

	pending, err := db.PendingPlaylistItems(playlist.ID)
	if err != nil {
		t.Fatalf("PendingPlaylistItems failed: %v", err)
	}
	if len(pending) != 1 || pending[0].VideoID != wanted.ID {
		t.Errorf("Expected only the unlisted undownloaded video, got %d items", len(pending))
	}
}

func TestCountArchivedOn(t *testing.T) {
	db := newTestDB(t)

	today := time.Now()
	yesterday := today.AddDate(0, 0, -1)
	v1 := mustSaveVideo(t, db, &Video{ProviderID: "v1", File: "a.mp4"})
	db.db.Model(v1).UpdateColumn("date_downloaded", today)
	v2 := mustSaveVideo(t, db, &Video{ProviderID: "v2", File: "b.mp4"})
	db.db.Model(v2).UpdateColumn("date_downloaded", yesterday)
	mustSaveVideo(t, db, &Video{ProviderID: "v3"}) // not archived

	count, err := db.CountArchivedOn(today)
	if err != nil {
		t.Fatalf("CountArchivedOn failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 archived today, got %d", count)
	}
}

func TestErroringVideos(t *testing.T) {
	db := newTestDB(t)

	eligible := mustSaveVideo(t, db, &Video{ProviderID: "v1"})
	maxedOut := mustSaveVideo(t, db, &Video{ProviderID: "v2"})
	archived := mustSaveVideo(t, db, &Video{ProviderID: "v3", File: "a.mp4"})

	old := time.Now().Add(-2 * time.Hour)
	db.RecordDownloadError(eligible.ID, "boom", nil, 720, 1)
	db.db.Model(&DownloadError{}).Where("video_id = ?", eligible.ID).UpdateColumn("created_at", old)

	for i := 0; i < 4; i++ {
		db.RecordDownloadError(maxedOut.ID, "boom", nil, 720, i+1)
	}
	db.db.Model(&DownloadError{}).Where("video_id = ?", maxedOut.ID).UpdateColumn("created_at", old)
	db.RecordDownloadError(archived.ID, "boom", nil, 720, 1)

	videos, err := db.ErroringVideos(4, time.Hour, 3, time.Now())
	if err != nil {
		t.Fatalf("ErroringVideos failed: %v", err)
	}
	if len(videos) != 1 || videos[0].ID != eligible.ID {
		t.Errorf("Expected only the eligible video, got %d", len(videos))
	}
}

func TestUpsertChapterHighlight(t *testing.T) {
	db := newTestDB(t)
	video := mustSaveVideo(t, db, &Video{ProviderID: "v1"})

	end := 30
	if err := db.UpsertChapterHighlight(video.ID, 10, &end, "Intro"); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	// Same (video, point, source) is a no-op
	if err := db.UpsertChapterHighlight(video.ID, 10, &end, "Intro renamed"); err != nil {
		t.Fatalf("Repeat upsert failed: %v", err)
	}

	highlights, err := db.Highlights(video.ID)
	if err != nil {
		t.Fatalf("Highlights failed: %v", err)
	}
	if len(highlights) != 1 || highlights[0].Note != "Intro" {
		t.Errorf("Expected single original highlight, got %d", len(highlights))
	}
}

func TestUpsertComment(t *testing.T) {
	db := newTestDB(t)
	video := mustSaveVideo(t, db, &Video{ProviderID: "v1"})

	_, created, err := db.UpsertComment(video.ID, provider.Comment{ID: "c1", Text: "First", Author: "a"})
	if err != nil || !created {
		t.Fatalf("Expected creation, created=%v err=%v", created, err)
	}
	_, created, err = db.UpsertComment(video.ID, provider.Comment{ID: "c1", Text: "Edited", Author: "a"})
	if err != nil || created {
		t.Fatalf("Expected update, created=%v err=%v", created, err)
	}
	count, _ := db.CommentCount(video.ID)
	if count != 1 {
		t.Errorf("Expected 1 comment, got %d", count)
	}
}

func TestScanHistoryIncrement(t *testing.T) {
	db := newTestDB(t)
	channel := mustSaveChannel(t, db, &Channel{ProviderID: "UC1", Name: "Ch", Status: ChannelActive})

	scan, err := db.CreateScanHistory(&channel.ID, nil)
	if err != nil {
		t.Fatalf("CreateScanHistory failed: %v", err)
	}
	if err := db.IncrementScanHistoryDownload(scan.ID, TabShorts); err != nil {
		t.Fatalf("Increment failed: %v", err)
	}
	latest, err := db.LatestScanHistory(channel.ID)
	if err != nil {
		t.Fatalf("LatestScanHistory failed: %v", err)
	}
	if latest.ShortsDownloaded != 1 || latest.VideosDownloaded != 0 {
		t.Errorf("Unexpected counters: %+v", latest)
	}
}

func TestActivelyScanningChannelsExcludesFullArchive(t *testing.T) {
	db := newTestDB(t)
	mustSaveChannel(t, db, &Channel{ProviderID: "UC1", Name: "A", Status: ChannelActive, IndexVideos: true})
	mustSaveChannel(t, db, &Channel{ProviderID: "UC2", Name: "B", Status: ChannelActive, IndexVideos: true, FullArchive: true})
	mustSaveChannel(t, db, &Channel{ProviderID: "UC3", Name: "C", Status: ChannelInactive, IndexVideos: true})
	mustSaveChannel(t, db, &Channel{ProviderID: "UC4", Name: "D", Status: ChannelActive})

	channels, err := db.ActivelyScanningChannels()
	if err != nil {
		t.Fatalf("ActivelyScanningChannels failed: %v", err)
	}
	if len(channels) != 1 || channels[0].ProviderID != "UC1" {
		t.Errorf("Expected only UC1, got %d channels", len(channels))
	}
}

func TestAppendDownloadStatKeepsConcurrentNotes(t *testing.T) {
	db := newTestDB(t)
	video := mustSaveVideo(t, db, &Video{ProviderID: "statvideo001", Title: "Stats", IsVideo: true})

	// A note written through a separately loaded copy must survive appends
	other, err := db.GetVideoByID(video.ID)
	if err != nil {
		t.Fatalf("GetVideoByID failed: %v", err)
	}
	other.SetSystemNote("thumbnail_url", "https://example.test/t.jpg")
	if err := db.UpdateSystemNotes(other); err != nil {
		t.Fatalf("UpdateSystemNotes failed: %v", err)
	}

	if err := db.AppendDownloadStat(video.ID, map[string]any{"status": "success", "quality": 720}); err != nil {
		t.Fatalf("AppendDownloadStat failed: %v", err)
	}
	if err := db.AppendDownloadStat(video.ID, map[string]any{"status": "success", "quality": 1080}); err != nil {
		t.Fatalf("AppendDownloadStat failed: %v", err)
	}

	reloaded, err := db.GetVideoByID(video.ID)
	if err != nil {
		t.Fatalf("GetVideoByID failed: %v", err)
	}
	if url, _ := reloaded.SystemNotes["thumbnail_url"].(string); url != "https://example.test/t.jpg" {
		t.Errorf("Independently written note was lost, got %q", url)
	}
	stats, _ := reloaded.SystemNotes["downloads"].([]any)
	if len(stats) != 2 {
		t.Fatalf("Expected 2 breadcrumbs, got %d", len(stats))
	}
	latest := reloaded.LatestDownloadStat()
	if quality, _ := latest["quality"].(float64); quality != 1080 {
		t.Errorf("Latest breadcrumb should be the second append, got %v", latest["quality"])
	}
}

func TestGetUserWatchLater(t *testing.T) {
	db := newTestDB(t)

	playlist, err := db.GetUserWatchLater(7)
	if err != nil {
		t.Fatalf("GetUserWatchLater failed: %v", err)
	}
	if !playlist.WatchLater || !playlist.Hidden || !playlist.RemoveOnWatched {
		t.Errorf("Watch-later list should be hidden and self-pruning: %+v", playlist)
	}
	if playlist.UserID == nil || *playlist.UserID != 7 {
		t.Error("Watch-later list should bind to its owner")
	}

	again, err := db.GetUserWatchLater(7)
	if err != nil {
		t.Fatalf("GetUserWatchLater failed: %v", err)
	}
	if again.ID != playlist.ID {
		t.Errorf("Repeat lookups should reuse the list, got %d and %d", playlist.ID, again.ID)
	}

	other, err := db.GetUserWatchLater(8)
	if err != nil {
		t.Fatalf("GetUserWatchLater failed: %v", err)
	}
	if other.ID == playlist.ID {
		t.Error("Users must not share a watch-later list")
	}
}

func TestFullArchiveBacklogForceOverridesCutoff(t *testing.T) {
	db := newTestDB(t)
	cutoff := time.Now().AddDate(0, 0, -30)
	channel := mustSaveChannel(t, db, &Channel{
		ProviderID: "UC1", Name: "Ch", Status: ChannelActive, FullArchiveCutoff: &cutoff,
	})

	old := time.Now().AddDate(0, 0, -60)
	mustSaveVideo(t, db, &Video{
		ProviderID: "agedvideo001", Title: "Aged", IsVideo: true,
		ChannelID: &channel.ID, PrivacyStatus: PrivacyPublic, UploadDate: &old,
	})
	forced := mustSaveVideo(t, db, &Video{
		ProviderID: "forcedvid001", Title: "Forced", IsVideo: true,
		ChannelID: &channel.ID, PrivacyStatus: PrivacyPublic, UploadDate: &old,
		ForceDownload: true,
	})

	backlog, err := db.FullArchiveBacklog(channel)
	if err != nil {
		t.Fatalf("FullArchiveBacklog failed: %v", err)
	}
	if len(backlog) != 1 || backlog[0].ID != forced.ID {
		t.Fatalf("Only the forced video should survive the cutoff, got %d", len(backlog))
	}
}
