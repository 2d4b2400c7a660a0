// Package all registers every storage backend.
package all

import (
	_ "dmsetl/internal/storage/mssql"
	_ "dmsetl/internal/storage/postgres"
	_ "dmsetl/internal/storage/sqlite"
)
