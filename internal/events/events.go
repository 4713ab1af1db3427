// Package events runs an embedded NATS server and publishes AI lifecycle
// events over it, generalizing internal/nats's external-broker client
// (subjects like "agent.%s.status") into subjects for title/memory/skill
// extraction, grounded on original_source/src/ai/types.rs's AiEvent enum
// and its event_type() SSE naming.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	nc "github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/yologdev/yocore-go/internal/extract"
)

var _ extract.Notifier = (*Broadcaster)(nil)

// Subject patterns for AI lifecycle events, one per original AiEvent
// variant's event_type() string.
const (
	SubjectTitleStart    = "ai.title.start"
	SubjectTitleComplete = "ai.title.complete"
	SubjectTitleError    = "ai.title.error"

	SubjectMemoryStart    = "ai.memory.start"
	SubjectMemoryComplete = "ai.memory.complete"
	SubjectMemoryError    = "ai.memory.error"

	SubjectSkillStart    = "ai.skill.start"
	SubjectSkillComplete = "ai.skill.complete"
	SubjectSkillError    = "ai.skill.error"

	SubjectMarkerStart    = "ai.marker.start"
	SubjectMarkerComplete = "ai.marker.complete"
	SubjectMarkerError    = "ai.marker.error"
)

// Subject patterns for watcher and scheduler lifecycle events, per
// original_source/src/watcher/mod.rs's WatcherEvent enum.
const (
	SubjectWatcherNewSession     = "watcher.session.new"
	SubjectWatcherSessionChanged = "watcher.session.changed"
	SubjectWatcherSessionParsed  = "watcher.session.parsed"
	SubjectWatcherError          = "watcher.error"

	SubjectRankingStart    = "scheduler.ranking.start"
	SubjectRankingComplete = "scheduler.ranking.complete"
	SubjectRankingError    = "scheduler.ranking.error"

	SubjectSchedulerTaskStart    = "scheduler.task.start"
	SubjectSchedulerTaskComplete = "scheduler.task.complete"
	SubjectSchedulerTaskError    = "scheduler.task.error"
)

// WatcherEvent is the payload published on the watcher.* subjects.
type WatcherEvent struct {
	SessionID string    `json:"session_id"`
	FilePath  string    `json:"file_path,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SchedulerEvent is the payload published on the scheduler.* subjects.
// Fields beyond TaskName/ProjectID are only populated where the originating
// WatcherEvent variant carries them (e.g. Promoted/Demoted/Removed only on
// a ranking-complete event).
type SchedulerEvent struct {
	TaskName  string    `json:"task_name"`
	ProjectID string    `json:"project_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	Promoted  int       `json:"promoted,omitempty"`
	Demoted   int       `json:"demoted,omitempty"`
	Removed   int       `json:"removed,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HeartbeatEvent is the synthetic payload a subscriber's keep-alive
// goroutine emits every heartbeatInterval, independent of real traffic on
// its subject.
type HeartbeatEvent struct {
	Subject   string    `json:"subject"`
	Timestamp time.Time `json:"timestamp"`
}

// TitleEvent, MemoryEvent, and SkillEvent are the payloads published on the
// subjects above.
type TitleEvent struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type MemoryEvent struct {
	SessionID string    `json:"session_id"`
	Count     int       `json:"count,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type SkillEvent struct {
	SessionID string    `json:"session_id"`
	Count     int       `json:"count,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type MarkerEvent struct {
	SessionID string    `json:"session_id"`
	Count     int       `json:"count,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Broadcaster runs an in-process NATS server (no external broker needed for
// a single-machine daemon) and publishes AI lifecycle events to it. It
// implements extract.Notifier so extraction passes can publish without
// importing this package's transport details.
type Broadcaster struct {
	server *natsserver.Server
	conn   *nc.Conn
	log    zerolog.Logger
}

// NewBroadcaster starts an embedded NATS server bound to an OS-assigned
// local port and connects a client to it. Close shuts both down.
func NewBroadcaster(log zerolog.Logger) (*Broadcaster, error) {
	opts := &natsserver.Options{
		Host:     "127.0.0.1",
		Port:     -1, // OS-assigned
		HTTPPort: -1, // disable monitoring
		NoLog:    true,
		NoSigs:   true,
	}

	srv, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("start embedded nats server: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(5 * time.Second) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded nats server did not become ready")
	}

	conn, err := nc.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("connect to embedded nats server: %w", err)
	}

	return &Broadcaster{server: srv, conn: conn, log: log}, nil
}

// ClientURL returns the embedded server's connection URL, for other
// in-process subscribers (e.g. an SSE bridge in the out-of-scope API
// server).
func (b *Broadcaster) ClientURL() string {
	return b.server.ClientURL()
}

// Close drains the client connection and shuts down the embedded server.
func (b *Broadcaster) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
	if b.server != nil {
		b.server.Shutdown()
	}
}

func (b *Broadcaster) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		b.log.Warn().Err(err).Str("subject", subject).Msg("events: failed to marshal payload")
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		b.log.Warn().Err(err).Str("subject", subject).Msg("events: failed to publish")
	}
}

func (b *Broadcaster) TitleStart(sessionID string) {
	b.publish(SubjectTitleStart, TitleEvent{SessionID: sessionID, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) TitleComplete(sessionID, title string) {
	b.publish(SubjectTitleComplete, TitleEvent{SessionID: sessionID, Title: title, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) TitleError(sessionID, errMsg string) {
	b.publish(SubjectTitleError, TitleEvent{SessionID: sessionID, Error: errMsg, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) MemoryStart(sessionID string) {
	b.publish(SubjectMemoryStart, MemoryEvent{SessionID: sessionID, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) MemoryComplete(sessionID string, count int) {
	b.publish(SubjectMemoryComplete, MemoryEvent{SessionID: sessionID, Count: count, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) MemoryError(sessionID, errMsg string) {
	b.publish(SubjectMemoryError, MemoryEvent{SessionID: sessionID, Error: errMsg, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) SkillStart(sessionID string) {
	b.publish(SubjectSkillStart, SkillEvent{SessionID: sessionID, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) SkillComplete(sessionID string, count int) {
	b.publish(SubjectSkillComplete, SkillEvent{SessionID: sessionID, Count: count, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) SkillError(sessionID, errMsg string) {
	b.publish(SubjectSkillError, SkillEvent{SessionID: sessionID, Error: errMsg, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) MarkerStart(sessionID string) {
	b.publish(SubjectMarkerStart, MarkerEvent{SessionID: sessionID, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) MarkerComplete(sessionID string, count int) {
	b.publish(SubjectMarkerComplete, MarkerEvent{SessionID: sessionID, Count: count, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) MarkerError(sessionID, errMsg string) {
	b.publish(SubjectMarkerError, MarkerEvent{SessionID: sessionID, Error: errMsg, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) NewSession(sessionID, filePath string) {
	b.publish(SubjectWatcherNewSession, WatcherEvent{SessionID: sessionID, FilePath: filePath, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) SessionChanged(sessionID, filePath string) {
	b.publish(SubjectWatcherSessionChanged, WatcherEvent{SessionID: sessionID, FilePath: filePath, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) SessionParsed(sessionID, filePath string) {
	b.publish(SubjectWatcherSessionParsed, WatcherEvent{SessionID: sessionID, FilePath: filePath, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) WatcherError(sessionID, errMsg string) {
	b.publish(SubjectWatcherError, WatcherEvent{SessionID: sessionID, Error: errMsg, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) RankingStart(projectID string) {
	b.publish(SubjectRankingStart, SchedulerEvent{TaskName: "ranking", ProjectID: projectID, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) RankingComplete(projectID string, promoted, demoted, removed int) {
	b.publish(SubjectRankingComplete, SchedulerEvent{
		TaskName: "ranking", ProjectID: projectID,
		Promoted: promoted, Demoted: demoted, Removed: removed,
		Timestamp: time.Now().UTC(),
	})
}

func (b *Broadcaster) RankingError(projectID, errMsg string) {
	b.publish(SubjectRankingError, SchedulerEvent{TaskName: "ranking", ProjectID: projectID, Error: errMsg, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) SchedulerTaskStart(name, projectID string) {
	b.publish(SubjectSchedulerTaskStart, SchedulerEvent{TaskName: name, ProjectID: projectID, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) SchedulerTaskComplete(name, projectID, detail string) {
	b.publish(SubjectSchedulerTaskComplete, SchedulerEvent{TaskName: name, ProjectID: projectID, Detail: detail, Timestamp: time.Now().UTC()})
}

func (b *Broadcaster) SchedulerTaskError(name, projectID, errMsg string) {
	b.publish(SubjectSchedulerTaskError, SchedulerEvent{TaskName: name, ProjectID: projectID, Error: errMsg, Timestamp: time.Now().UTC()})
}

// subscriberBufferSize bounds each subscriber's local queue; a slow
// consumer drops new events once it fills rather than blocking the NATS
// dispatch goroutine.
const subscriberBufferSize = 256

// heartbeatInterval is how often an idle subscriber gets a synthetic
// HeartbeatEvent, keeping a downstream SSE connection alive.
const heartbeatInterval = 30 * time.Second

// Subscribe wires handler to fire for every message on subject, returning an
// unsubscribe func. Used by the out-of-scope API server to bridge these
// events to SSE clients. Each subscriber gets its own buffered channel
// (subscriberBufferSize); if handler falls behind and the channel fills,
// new events on that subject are dropped rather than blocking the NATS
// callback. A heartbeat goroutine feeds handler a synthetic HeartbeatEvent
// every heartbeatInterval so an idle subscriber's connection stays alive.
func (b *Broadcaster) Subscribe(subject string, handler func(data []byte)) (func() error, error) {
	buf := make(chan []byte, subscriberBufferSize)
	done := make(chan struct{})

	sub, err := b.conn.Subscribe(subject, func(msg *nc.Msg) {
		select {
		case buf <- msg.Data:
		default:
			b.log.Warn().Str("subject", subject).Msg("events: subscriber buffer full, dropping event")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", subject, err)
	}

	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case data := <-buf:
				handler(data)
			case <-ticker.C:
				hb, err := json.Marshal(HeartbeatEvent{Subject: subject, Timestamp: time.Now().UTC()})
				if err != nil {
					continue
				}
				handler(hb)
			case <-done:
				return
			}
		}
	}()

	unsubscribe := func() error {
		err := sub.Unsubscribe()
		close(done)
		return err
	}
	return unsubscribe, nil
}
