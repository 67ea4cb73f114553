package db

import (
	"crypto/sha3"
	"database/sql"
	"fmt"
	"strings"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

const (
	// SQLiteDriverName is the SQLCipher driver registered with custom SQL functions.
	SQLiteDriverName = "sqlite3_inkpad"
)

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{ConnectHook: registerFuncs})
}

func registerFuncs(conn *sqlite3.SQLiteConn) error {
	if err := conn.RegisterFunc("sha3", sqliteSHA3, true); err != nil {
		// Some SQLite builds already expose sha3().
		if strings.Contains(strings.ToLower(err.Error()), "already exists") {
			return nil
		}
		return fmt.Errorf("register sha3 SQL function: %w", err)
	}
	return nil
}

// sqliteSHA3 implements sha3(X, N) with the same sizes as the SQLite shathree extension.
func sqliteSHA3(input any, bits int64) ([]byte, error) {
	var data []byte
	switch x := input.(type) {
	case nil:
	case []byte:
		data = x
	case string:
		data = []byte(x)
	default:
		return nil, fmt.Errorf("unsupported sha3 input type: %T", input)
	}

	switch bits {
	case 224:
		sum := sha3.Sum224(data)
		return sum[:], nil
	case 256:
		sum := sha3.Sum256(data)
		return sum[:], nil
	case 384:
		sum := sha3.Sum384(data)
		return sum[:], nil
	case 512:
		sum := sha3.Sum512(data)
		return sum[:], nil
	default:
		return nil, fmt.Errorf("unsupported sha3 size: %d", bits)
	}
}
