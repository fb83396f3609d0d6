// Package storage backs the collaborator interfaces with redis. The presence
// core itself never touches these keys; everything goes through the
// interfaces in core.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dkeye/Chatter/internal/core"
	"github.com/dkeye/Chatter/internal/domain"
)

var ErrNotFound = errors.New("not found")

type Config struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// RedisStore implements ProfileStore, Moderation, RoomDirectory and
// MessageStore on one client.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(c Config) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     c.Addr,
		Password: c.Password,
		DB:       c.DB,
		PoolSize: c.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: rdb}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func userKey(id domain.UserID) string  { return "chatter:user:" + string(id) }
func blockKey(id domain.UserID) string { return "chatter:block:" + string(id) }
func banKey(id domain.UserID) string   { return "chatter:ban:" + string(id) }
func msgKey(room domain.RoomID) string { return "chatter:msg:" + string(room) }

const roomsKey = "chatter:rooms"

// ===== ProfileStore =====

func (s *RedisStore) GetUserProfile(ctx context.Context, id domain.UserID) (*domain.User, error) {
	fields, err := s.client.HGetAll(ctx, userKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	// NewUser validates the stored username; a corrupt hash surfaces as a
	// fetch error and the registry serves its placeholder instead.
	u, err := domain.NewUser(id, fields["username"])
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", id, err)
	}
	if role := domain.Role(fields["role"]); role != "" {
		u.Role = role
	}
	u.AvatarURL = fields["avatar_url"]
	u.AvatarVersion = fields["avatar_version"]
	u.CurrentRoom = domain.RoomID(fields["current_room"])
	u.Fingerprint = fields["fingerprint"]
	u.Level, _ = strconv.Atoi(fields["level"])
	u.Hidden, _ = strconv.ParseBool(fields["hidden"])
	u.Bot, _ = strconv.ParseBool(fields["bot"])
	return u, nil
}

func (s *RedisStore) PersistRoomAssignment(ctx context.Context, id domain.UserID, room domain.RoomID) error {
	return persistErr(s.client.HSet(ctx, userKey(id), "current_room", string(room)).Err())
}

func (s *RedisStore) PersistFingerprint(ctx context.Context, id domain.UserID, fingerprint string) error {
	return persistErr(s.client.HSet(ctx, userKey(id), "fingerprint", fingerprint).Err())
}

func (s *RedisStore) PersistLastSeen(ctx context.Context, id domain.UserID, at time.Time) error {
	return persistErr(s.client.HSet(ctx, userKey(id), "last_seen", at.Unix()).Err())
}

// persistErr tags degraded writes so callers can branch without inspecting
// redis error strings.
func persistErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", core.ErrPersistence, err)
}

// ===== Moderation =====

func (s *RedisStore) Status(ctx context.Context, id domain.UserID) (core.ModerationStatus, error) {
	reason, err := s.client.Get(ctx, blockKey(id)).Result()
	if err == nil {
		return core.ModerationStatus{Blocked: true, Reason: reason}, nil
	}
	if !errors.Is(err, redis.Nil) {
		return core.ModerationStatus{}, err
	}

	reason, err = s.client.Get(ctx, banKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return core.ModerationStatus{}, nil
	}
	if err != nil {
		return core.ModerationStatus{}, err
	}
	ttl, err := s.client.TTL(ctx, banKey(id)).Result()
	if err != nil {
		return core.ModerationStatus{}, err
	}
	status := core.ModerationStatus{Banned: true, Reason: reason}
	if ttl > 0 {
		status.Until = time.Now().Add(ttl)
	}
	return status, nil
}

// ===== RoomDirectory =====

func (s *RedisStore) RoomIsActive(ctx context.Context, id domain.RoomID) (bool, error) {
	return s.client.HExists(ctx, roomsKey, string(id)).Result()
}

func (s *RedisStore) ActiveRooms(ctx context.Context) ([]domain.Room, error) {
	fields, err := s.client.HGetAll(ctx, roomsKey).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Room, 0, len(fields))
	for id, name := range fields {
		out = append(out, domain.Room{ID: domain.RoomID(id), Name: domain.RoomName(name)})
	}
	return out, nil
}

// ===== MessageStore =====

type storedMessage struct {
	Text   string `json:"text"`
	System bool   `json:"system"`
	At     int64  `json:"at"`
}

func (s *RedisStore) AppendSystemMessage(ctx context.Context, room domain.RoomID, text string) error {
	b, err := json.Marshal(storedMessage{Text: text, System: true, At: time.Now().Unix()})
	if err != nil {
		return err
	}
	return persistErr(s.client.RPush(ctx, msgKey(room), b).Err())
}
