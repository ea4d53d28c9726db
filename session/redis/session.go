// Copyright 2025 achetronic
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package redis provides a Redis-backed session store. It implements the
// same Service + EventReplacer contract as the in-memory store, so the
// compacting and trimming decorators stack over it unchanged.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/achetronic/adk-context-gateway/session"
)

// RedisSessionService implements session.Service using Redis as the backend.
// Sessions live under "session:<app>:<user>:<id>", their events in a list
// under "events:<app>:<user>:<id>", and the session IDs of each (app, user)
// pair in a set under "sessions:<app>:<user>".
type RedisSessionService struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisSessionServiceConfig holds configuration for RedisSessionService.
type RedisSessionServiceConfig struct {
	// Addr is the Redis server address (e.g., "localhost:6379")
	Addr string
	// Password for Redis authentication (optional)
	Password string
	// DB is the Redis database number
	DB int
	// TTL is the session expiration time (default: 24 hours)
	TTL time.Duration
}

// NewRedisSessionService creates a new Redis-backed session store.
func NewRedisSessionService(cfg RedisSessionServiceConfig) (*RedisSessionService, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}

	return &RedisSessionService{client: client, ttl: ttl}, nil
}

// Key helpers
func sessionKey(k session.Key) string {
	return fmt.Sprintf("session:%s:%s:%s", k.AppName, k.UserID, k.SessionID)
}

func sessionsIndexKey(appName, userID string) string {
	return fmt.Sprintf("sessions:%s:%s", appName, userID)
}

func eventsKey(k session.Key) string {
	return fmt.Sprintf("events:%s:%s:%s", k.AppName, k.UserID, k.SessionID)
}

// storableSession is the JSON-serializable session envelope. Events are kept
// separately in a Redis list so appends never rewrite the whole history.
type storableSession struct {
	ID      string         `json:"id"`
	AppName string         `json:"app_name"`
	UserID  string         `json:"user_id"`
	State   map[string]any `json:"state"`
}

// Create creates a new session. It returns session.ErrAlreadyExists if a
// session with the same ID is present.
func (s *RedisSessionService) Create(ctx context.Context, req *session.CreateRequest) (*session.CreateResponse, error) {
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	key := session.Key{AppName: req.AppName, UserID: req.UserID, SessionID: sessionID}

	if exists, _ := s.client.Exists(ctx, sessionKey(key)).Result(); exists > 0 {
		return nil, fmt.Errorf("session %s: %w", sessionID, session.ErrAlreadyExists)
	}

	state := make(map[string]any, len(req.State))
	for k, v := range req.State {
		state[k] = v
	}

	storable := storableSession{
		ID:      sessionID,
		AppName: req.AppName,
		UserID:  req.UserID,
		State:   state,
	}

	data, err := json.Marshal(storable)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := s.client.Set(ctx, sessionKey(key), data, s.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	indexKey := sessionsIndexKey(req.AppName, req.UserID)
	if err := s.client.SAdd(ctx, indexKey, sessionID).Err(); err != nil {
		return nil, fmt.Errorf("failed to update sessions index: %w", err)
	}
	s.client.Expire(ctx, indexKey, s.ttl)

	return &session.CreateResponse{Session: &session.Session{
		AppName: req.AppName,
		UserID:  req.UserID,
		ID:      sessionID,
		State:   state,
		Events:  make([]*session.Event, 0),
	}}, nil
}

// Get retrieves a session with its full event list.
func (s *RedisSessionService) Get(ctx context.Context, req *session.GetRequest) (*session.GetResponse, error) {
	key := session.Key{AppName: req.AppName, UserID: req.UserID, SessionID: req.SessionID}

	data, err := s.client.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("session %s: %w", req.SessionID, session.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var storable storableSession
	if err := json.Unmarshal(data, &storable); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	events, err := s.loadEvents(ctx, key)
	if err != nil {
		return nil, err
	}

	return &session.GetResponse{Session: &session.Session{
		AppName: storable.AppName,
		UserID:  storable.UserID,
		ID:      storable.ID,
		State:   storable.State,
		Events:  events,
	}}, nil
}

// List returns all sessions for a user.
func (s *RedisSessionService) List(ctx context.Context, req *session.ListRequest) (*session.ListResponse, error) {
	indexKey := sessionsIndexKey(req.AppName, req.UserID)

	sessionIDs, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var sessions []*session.Session
	for _, sessionID := range sessionIDs {
		resp, err := s.Get(ctx, &session.GetRequest{
			AppName:   req.AppName,
			UserID:    req.UserID,
			SessionID: sessionID,
		})
		if err != nil {
			continue
		}
		sessions = append(sessions, resp.Session)
	}

	return &session.ListResponse{Sessions: sessions}, nil
}

// Delete removes a session and its events.
func (s *RedisSessionService) Delete(ctx context.Context, req *session.DeleteRequest) error {
	key := session.Key{AppName: req.AppName, UserID: req.UserID, SessionID: req.SessionID}

	pipe := s.client.Pipeline()
	pipe.Del(ctx, sessionKey(key))
	pipe.Del(ctx, eventsKey(key))
	pipe.SRem(ctx, sessionsIndexKey(req.AppName, req.UserID), req.SessionID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	return nil
}

// AppendEvent appends an event to a session's event list, stamping its ID
// and timestamp when unset.
func (s *RedisSessionService) AppendEvent(ctx context.Context, key session.Key, evt *session.Event) error {
	if exists, _ := s.client.Exists(ctx, sessionKey(key)).Result(); exists == 0 {
		return fmt.Errorf("session %s: %w", key.SessionID, session.ErrNotFound)
	}

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp == 0 {
		evt.Timestamp = float64(time.Now().UnixNano()) / 1e9
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ek := eventsKey(key)
	if err := s.client.RPush(ctx, ek, data).Err(); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	s.client.Expire(ctx, ek, s.ttl)

	return nil
}

// ReplaceEvents atomically swaps a session's event list using a pipelined
// DEL + RPUSH. The surviving events keep their relative order.
func (s *RedisSessionService) ReplaceEvents(ctx context.Context, key session.Key, events []*session.Event) error {
	if exists, _ := s.client.Exists(ctx, sessionKey(key)).Result(); exists == 0 {
		return fmt.Errorf("session %s: %w", key.SessionID, session.ErrNotFound)
	}

	payloads := make([]any, 0, len(events))
	for _, evt := range events {
		data, err := json.Marshal(evt)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		payloads = append(payloads, data)
	}

	ek := eventsKey(key)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, ek)
	if len(payloads) > 0 {
		pipe.RPush(ctx, ek, payloads...)
	}
	pipe.Expire(ctx, ek, s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to replace events: %w", err)
	}

	return nil
}

func (s *RedisSessionService) loadEvents(ctx context.Context, key session.Key) ([]*session.Event, error) {
	eventData, err := s.client.LRange(ctx, eventsKey(key), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	events := make([]*session.Event, 0, len(eventData))
	for _, ed := range eventData {
		var evt session.Event
		if err := json.Unmarshal([]byte(ed), &evt); err != nil {
			continue
		}
		events = append(events, &evt)
	}
	return events, nil
}

// Close closes the Redis connection.
func (s *RedisSessionService) Close() error {
	return s.client.Close()
}

var (
	_ session.Service       = (*RedisSessionService)(nil)
	_ session.EventReplacer = (*RedisSessionService)(nil)
)
