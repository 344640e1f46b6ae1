package store

import (
	"encoding/json"
	"fmt"

	"chroma-clash/internal/color"
	"chroma-clash/internal/db"

	"gorm.io/datatypes"
)

func toRow(sess *Session) (*db.GameSession, error) {
	channels, err := json.Marshal(sess.Target.Channels)
	if err != nil {
		return nil, fmt.Errorf("encode target channels: %w", err)
	}
	row := &db.GameSession{
		ID:              sess.ID,
		PlayerOneID:     sess.PlayerOneID,
		Status:          string(sess.Status),
		TargetColorName: sess.Target.Name,
		TargetColorHex:  sess.Target.Hex,
		TargetChannels:  datatypes.JSON(channels),
	}
	if sess.PlayerTwoID != "" {
		row.PlayerTwoID = &sess.PlayerTwoID
	}
	if sess.WinnerID != "" {
		row.WinnerID = &sess.WinnerID
	}
	return row, nil
}

func fromRow(row *db.GameSession) (*Session, error) {
	var channels [3]int
	if len(row.TargetChannels) > 0 {
		if err := json.Unmarshal(row.TargetChannels, &channels); err != nil {
			return nil, fmt.Errorf("decode target channels: %w", err)
		}
	}
	sess := &Session{
		ID:          row.ID,
		PlayerOneID: row.PlayerOneID,
		Status:      Status(row.Status),
		Target: color.Color{
			Name:     row.TargetColorName,
			Hex:      row.TargetColorHex,
			Channels: channels,
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.PlayerTwoID != nil {
		sess.PlayerTwoID = *row.PlayerTwoID
	}
	if row.WinnerID != nil {
		sess.WinnerID = *row.WinnerID
	}
	return sess, nil
}

func recordToRow(rec *BattleRecord) *db.BattleRecord {
	channels, _ := json.Marshal(rec.Target.Channels)
	row := &db.BattleRecord{
		PlayerOneID:     rec.PlayerOneID,
		TargetColorHex:  rec.Target.Hex,
		TargetColorName: rec.Target.Name,
		TargetChannels:  datatypes.JSON(channels),
		Winner:          rec.Winner,
		StatusDetail:    rec.StatusDetail,
		BattleTimestamp: rec.BattleTimestamp,
	}
	if rec.SessionID != "" {
		row.SessionID = &rec.SessionID
	}
	if rec.PlayerTwoID != "" {
		row.PlayerTwoID = &rec.PlayerTwoID
	}
	if best := rec.PlayerOneBest; best != nil {
		row.PlayerOneBestMixHex = &best.Color.Hex
		row.PlayerOneBestMixName = &best.Color.Name
		row.PlayerOneDifference = &best.Difference
	}
	if best := rec.PlayerTwoBest; best != nil {
		row.PlayerTwoBestMixHex = &best.Color.Hex
		row.PlayerTwoBestMixName = &best.Color.Name
		row.PlayerTwoDifference = &best.Difference
	}
	return row
}
