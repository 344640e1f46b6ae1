package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chroma-clash/internal/db"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const notifyPrefix = "session_update:"

// Postgres keeps sessions and battle records in Postgres via GORM and
// bridges row-change notification over redis pub/sub: every successful
// session write publishes the fresh row to the session's notify topic,
// which SubscribeToUpdates listens on.
type Postgres struct {
	conn     *gorm.DB
	notifier *redis.Client
}

func NewPostgres(conn *gorm.DB, notifier *redis.Client) *Postgres {
	return &Postgres{conn: conn, notifier: notifier}
}

func notifyTopic(sessionID string) string {
	return notifyPrefix + sessionID
}

func (p *Postgres) Insert(ctx context.Context, sess *Session) error {
	record, err := toRow(sess)
	if err != nil {
		return err
	}
	if err := p.conn.WithContext(ctx).Create(record).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert session: %w", err)
	}
	sess.CreatedAt = record.CreatedAt
	sess.UpdatedAt = record.UpdatedAt
	p.publish(ctx, sess)
	return nil
}

func (p *Postgres) Read(ctx context.Context, id string) (*Session, error) {
	var record db.GameSession
	err := p.conn.WithContext(ctx).First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}
	return fromRow(&record)
}

func (p *Postgres) FindOpenSession(ctx context.Context, excludePlayerID string) (*Session, error) {
	var records []db.GameSession
	err := p.conn.WithContext(ctx).
		Where("status = ? AND player_two_id IS NULL AND player_one_id <> ?", StatusWaiting, excludePlayerID).
		Order("created_at").
		Limit(1).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("find open session: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return fromRow(&records[0])
}

func (p *Postgres) ConditionalUpdate(ctx context.Context, id string, set Fields, guard Guard) (int64, error) {
	updates := map[string]any{}
	if set.PlayerTwoID != nil {
		updates["player_two_id"] = *set.PlayerTwoID
	}
	if set.Status != nil {
		updates["status"] = string(*set.Status)
	}
	if set.WinnerID != nil {
		updates["winner_id"] = *set.WinnerID
	}
	if len(updates) == 0 {
		return 0, errors.New("conditional update with no fields")
	}
	updates["updated_at"] = time.Now().UTC()

	tx := p.conn.WithContext(ctx).Model(&db.GameSession{}).Where("id = ?", id)
	if len(guard.Status) > 0 {
		tx = tx.Where("status IN ?", guard.Status)
	}
	if guard.PlayerTwoEmpty {
		tx = tx.Where("player_two_id IS NULL")
	}
	if guard.PlayerOneID != "" {
		tx = tx.Where("player_one_id = ?", guard.PlayerOneID)
	}
	result := tx.Updates(updates)
	if result.Error != nil {
		return 0, fmt.Errorf("conditional update: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		if sess, err := p.Read(ctx, id); err == nil {
			p.publish(ctx, sess)
		}
	}
	return result.RowsAffected, nil
}

func (p *Postgres) SubscribeToUpdates(ctx context.Context, id string, onChange func(Session)) (func(), error) {
	if p.notifier == nil {
		return nil, errors.New("no notifier configured")
	}
	sub := p.notifier.Subscribe(ctx, notifyTopic(id))
	// Receive forces the SUBSCRIBE handshake so no update published
	// after this call can be missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe to session updates: %w", err)
	}
	go func() {
		for msg := range sub.Channel() {
			var sess Session
			if err := json.Unmarshal([]byte(msg.Payload), &sess); err != nil {
				logrus.Warnf("discarding malformed session update session_id=%s error=%v", id, err)
				continue
			}
			onChange(sess)
		}
	}()
	return func() { _ = sub.Close() }, nil
}

func (p *Postgres) publish(ctx context.Context, sess *Session) {
	if p.notifier == nil {
		return
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := p.notifier.Publish(ctx, notifyTopic(sess.ID), payload).Err(); err != nil {
		logrus.Warnf("session update publish failed session_id=%s error=%v", sess.ID, err)
	}
}

func (p *Postgres) InsertRecord(ctx context.Context, rec *BattleRecord) error {
	row := recordToRow(rec)
	if err := p.conn.WithContext(ctx).Create(row).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert battle record: %w", err)
	}
	return nil
}

// EnsurePlayer returns the id for a username, creating the row on
// first sight. A concurrent create by another client resolves to the
// existing row.
func (p *Postgres) EnsurePlayer(ctx context.Context, username string) (string, error) {
	record := db.Player{ID: uuid.NewString(), Username: username}
	err := p.conn.WithContext(ctx).Create(&record).Error
	if err == nil {
		return record.ID, nil
	}
	if !isUniqueViolation(err) {
		return "", fmt.Errorf("create player: %w", err)
	}
	var existing db.Player
	if err := p.conn.WithContext(ctx).First(&existing, "username = ?", username).Error; err != nil {
		return "", fmt.Errorf("lookup player: %w", err)
	}
	return existing.ID, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
