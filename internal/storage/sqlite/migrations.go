package sqlite

// migrateRequestLogs adds the dropped_attachments column to request_logs
// tables created before it existed.
func (s *Storage) migrateRequestLogs() error {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM pragma_table_info('request_logs') WHERE name = 'dropped_attachments'
	`).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	_, err = s.db.Exec(`ALTER TABLE request_logs ADD COLUMN dropped_attachments INTEGER NOT NULL DEFAULT 0`)
	return err
}
