// mopchan/database/stats.go
package database

import (
	"fmt"

	"mopchan/utils"
)

// BoardStats is a point-in-time activity summary for the admin dashboard.
type BoardStats struct {
	Date        string `json:"date"`
	ThreadCount int    `json:"threads"`
	PostCount   int    `json:"posts"`
	ActiveBans  int    `json:"activeBans"`
}

// GetStats counts the visible threads and posts plus the bans still in
// force. Tombstoned rows are excluded.
func (ds *DatabaseService) GetStats() (*BoardStats, error) {
	now := utils.GetSQLTime()
	stats := &BoardStats{Date: now.Format("2006-01-02")}

	err := ds.DB.QueryRow(`
		SELECT (SELECT COUNT(*) FROM threads WHERE deleted = 0),
		       (SELECT COUNT(*) FROM posts WHERE deleted = 0),
		       (SELECT COUNT(*) FROM bans WHERE expires_at IS NULL OR expires_at > ?)`,
		now).Scan(&stats.ThreadCount, &stats.PostCount, &stats.ActiveBans)
	if err != nil {
		return nil, fmt.Errorf("failed to collect board stats: %w", err)
	}
	return stats, nil
}
