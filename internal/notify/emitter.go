// Package notify fans out named domain events to registered sinks.
// Delivery failures are logged and never propagate to the emitting task.
package notify

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Event names emitted by the core
const (
	EventVideoDownloaded          = "video_downloaded"
	EventVideoDownloadStarted     = "video_download_started"
	EventVideoDownloadFinished    = "video_download_finished"
	EventVideoDownloadFailed      = "video_download_failed"
	EventVideoDownloadRetry       = "video_download_retry"
	EventFullIndexingComplete     = "full_indexing_complete"
	EventFullArchivingStarted     = "full_archiving_started"
	EventFullArchivingCompleted   = "full_archiving_completed"
	EventPlaylistDisabledErrors   = "playlist_disabled_due_to_errors"
	EventPlaylistDisabledString   = "playlist_disabled_due_to_string"
	EventVideoAddedToPlaylist     = "video_added_to_playlist"
	EventVideoReaddedToPlaylist   = "video_readded_to_playlist"
	EventVideoRemovedFromPlaylist = "video_removed_from_playlist"
	EventConvertToMP4Complete     = "convert_to_mp4_complete"
	EventPlaylistAddedFromMirror  = "playlist_added_from_mirror"
)

// Payload carries the typed fields of one event
type Payload struct {
	ChannelID  uint64
	PlaylistID uint64
	VideoID    uint64
	Tab        string
	Message    string
	Extra      map[string]any
}

// Sink receives events. Handle must not block for long; delivery runs on
// the emitting goroutine.
type Sink interface {
	Handle(event string, payload Payload)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(event string, payload Payload)

// Handle implements Sink
func (f SinkFunc) Handle(event string, payload Payload) {
	f(event, payload)
}

// LogSink returns a sink that records every event on the daemon log
func LogSink(logger *logrus.Logger) Sink {
	return SinkFunc(func(event string, payload Payload) {
		fields := logrus.Fields{"event": event}
		if payload.VideoID != 0 {
			fields["video_id"] = payload.VideoID
		}
		if payload.ChannelID != 0 {
			fields["channel_id"] = payload.ChannelID
		}
		if payload.PlaylistID != 0 {
			fields["playlist_id"] = payload.PlaylistID
		}
		if payload.Message != "" {
			fields["message"] = payload.Message
		}
		logger.WithFields(fields).Info("Notification")
	})
}

// Emitter is the event registry and dispatcher
type Emitter struct {
	mu     sync.RWMutex
	sinks  map[string][]Sink
	all    []Sink
	logger *logrus.Logger
}

// NewEmitter creates an emitter
func NewEmitter(logger *logrus.Logger) *Emitter {
	return &Emitter{
		sinks:  make(map[string][]Sink),
		logger: logger,
	}
}

// Subscribe registers a sink for one event name
func (e *Emitter) Subscribe(event string, sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sinks[event] = append(e.sinks[event], sink)
}

// SubscribeAll registers a sink for every event
func (e *Emitter) SubscribeAll(sink Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.all = append(e.all, sink)
}

// Emit delivers the event to every matching sink. A panicking sink is
// recovered and logged; it never takes the emitting task down.
func (e *Emitter) Emit(event string, payload Payload) {
	e.mu.RLock()
	targets := make([]Sink, 0, len(e.sinks[event])+len(e.all))
	targets = append(targets, e.sinks[event]...)
	targets = append(targets, e.all...)
	e.mu.RUnlock()

	for _, sink := range targets {
		e.deliver(event, payload, sink)
	}
}

func (e *Emitter) deliver(event string, payload Payload, sink Sink) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithFields(logrus.Fields{
				"event": event,
				"panic": r,
			}).Error("Notification sink panicked")
		}
	}()
	sink.Handle(event, payload)
}
