package postgres

import "dmsetl/internal/storage"

func init() {
	storage.Register("postgres", Open)
}
