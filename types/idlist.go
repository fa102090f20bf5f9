package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// IdList is a list of user ids stored as a JSON column, implements driver.Valuer and sql.Scanner.
// A nil IdList means "no restriction" and is stored as NULL.
type IdList []string

// Value return json value, implement driver.Valuer interface
func (l IdList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	ba, err := json.Marshal([]string(l))
	return string(ba), err
}

// Scan scan value into IdList, implements sql.Scanner interface
func (l *IdList) Scan(val interface{}) error {
	var ba []byte
	switch v := val.(type) {
	case nil:
		*l = nil
		return nil
	case []byte:
		ba = v
	case string:
		ba = []byte(v)
	default:
		return errors.New(fmt.Sprint("Failed to unmarshal IdList value:", val))
	}
	t := make([]string, 0)
	err := json.Unmarshal(ba, &t)
	*l = IdList(t)
	return err
}

func (l IdList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

// GormDataType gorm common data type
func (IdList) GormDataType() string {
	return "idlist"
}

// GormDBDataType gorm db data type
func (IdList) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	switch db.Dialector.Name() {
	case "sqlite":
		return "JSON"
	case "mysql":
		return "JSON"
	case "postgres":
		return "JSONB"
	}
	return ""
}
