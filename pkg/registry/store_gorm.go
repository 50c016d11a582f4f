package registry

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tokmz/wsrelay/pkg/orm"
)

// connectionModel ws_connections 表
type connectionModel struct {
	ConnectionID string `gorm:"column:connection_id;primaryKey;size:128"`
	Connected    bool   `gorm:"column:connected;index"`
	UserData     string `gorm:"column:user_data;type:text"`
	RoomID       string `gorm:"column:room_id;size:255;index"`
	ConnectedAt  int64  `gorm:"column:connected_at"`
}

func (connectionModel) TableName() string {
	return "ws_connections"
}

func toModel(conn *Connection) (*connectionModel, error) {
	m := &connectionModel{
		ConnectionID: conn.ConnectionID,
		Connected:    conn.Connected,
		RoomID:       conn.RoomID,
		ConnectedAt:  conn.ConnectedAt,
	}
	if len(conn.UserData) > 0 {
		data, err := json.Marshal(conn.UserData)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncode, err)
		}
		m.UserData = string(data)
	}
	return m, nil
}

func (m *connectionModel) toConnection() (*Connection, error) {
	conn := &Connection{
		ConnectionID: m.ConnectionID,
		Connected:    m.Connected,
		RoomID:       m.RoomID,
		ConnectedAt:  m.ConnectedAt,
	}
	if m.UserData != "" {
		if err := json.Unmarshal([]byte(m.UserData), &conn.UserData); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrEncode, err)
		}
	}
	return conn, nil
}

// GormStore 基于 GORM 的 SQL 存储
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建存储并迁移表结构
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&connectionModel{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %w", ErrStore, err)
	}
	return &GormStore{db: db}, nil
}

// Put 以主键 upsert
func (g *GormStore) Put(ctx context.Context, conn *Connection) error {
	m, err := toModel(conn)
	if err != nil {
		return err
	}
	err = g.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(m).Error
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	return nil
}

func (g *GormStore) Delete(ctx context.Context, id string) error {
	err := g.db.WithContext(ctx).
		Where("connection_id = ?", id).
		Delete(&connectionModel{}).Error
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStore, err)
	}
	return nil
}

func (g *GormStore) Get(ctx context.Context, id string) (*Connection, error) {
	var m connectionModel
	err := g.db.WithContext(ctx).
		Where("connection_id = ?", id).
		Take(&m).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	return m.toConnection()
}

// SetRoom 以当前 room_id 为条件更新，受影响行数为 0 时重试
func (g *GormStore) SetRoom(ctx context.Context, id string, update RoomUpdate) error {
	db := g.db.WithContext(ctx)
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		var m connectionModel
		if err := db.Where("connection_id = ?", id).Take(&m).Error; err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("%w: %w", ErrStore, err)
		}
		next, ok := update(m.RoomID)
		// MySQL 对未改变的行返回 0 affected
		if !ok || next == m.RoomID {
			return nil
		}
		res := db.Model(&connectionModel{}).
			Where("connection_id = ? AND room_id = ?", id, m.RoomID).
			Update("room_id", next)
		if res.Error != nil {
			return fmt.Errorf("%w: %w", ErrStore, res.Error)
		}
		if res.RowsAffected > 0 {
			return nil
		}
	}
	return ErrConflict
}

// Scan 只返回 connected = true 的记录
func (g *GormStore) Scan(ctx context.Context) ([]*Connection, error) {
	var rows []connectionModel
	err := g.db.WithContext(ctx).
		Where("connected = ?", true).
		Order("connected_at, connection_id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	out := make([]*Connection, 0, len(rows))
	for i := range rows {
		conn, err := rows[i].toConnection()
		if err != nil {
			continue
		}
		out = append(out, conn)
	}
	return out, nil
}

// Close 关闭连接池
func (g *GormStore) Close() error {
	return orm.Close(g.db)
}
