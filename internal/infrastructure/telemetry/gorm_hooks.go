package telemetry

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"
)

// registrar is the Register method of a positioned GORM callback
type registrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

// gormOperations maps GORM processors to the SQL verb they issue. Row and raw
// statements are classified from their text.
var gormOperations = []struct {
	processor string
	verb      string
}{
	{"create", "INSERT"},
	{"query", "SELECT"},
	{"update", "UPDATE"},
	{"delete", "DELETE"},
	{"row", ""},
	{"raw", ""},
}

func hookPoints(db *gorm.DB, processor string) (before, after registrar) {
	cb := db.Callback()
	switch processor {
	case "create":
		return cb.Create().Before("gorm:create"), cb.Create().After("gorm:create")
	case "query":
		return cb.Query().Before("gorm:query"), cb.Query().After("gorm:query")
	case "update":
		return cb.Update().Before("gorm:update"), cb.Update().After("gorm:update")
	case "delete":
		return cb.Delete().Before("gorm:delete"), cb.Delete().After("gorm:delete")
	case "row":
		return cb.Row().Before("gorm:row"), cb.Row().After("gorm:row")
	default:
		return cb.Raw().Before("gorm:raw"), cb.Raw().After("gorm:raw")
	}
}

// registerStatementHooks times every statement and calls after with its SQL
// verb once GORM has executed it. name prefixes the callback names.
func registerStatementHooks(db *gorm.DB, name string, after func(tx *gorm.DB, verb string)) error {
	for _, op := range gormOperations {
		op := op
		before, afterPoint := hookPoints(db, op.processor)
		if err := before.Register(name+":before_"+op.processor, markStatementStart); err != nil {
			return err
		}
		if err := afterPoint.Register(name+":after_"+op.processor, func(tx *gorm.DB) {
			verb := op.verb
			if verb == "" {
				verb = sqlVerb(tx.Statement.SQL.String())
			}
			after(tx, verb)
		}); err != nil {
			return err
		}
	}
	return nil
}

type statementStartKey struct{}

func markStatementStart(tx *gorm.DB) {
	ctx := tx.Statement.Context
	if ctx == nil {
		ctx = context.Background()
	}
	tx.Statement.Context = context.WithValue(ctx, statementStartKey{}, time.Now())
}

// statementElapsed returns the time since the before hook ran
func statementElapsed(tx *gorm.DB) (time.Duration, bool) {
	if tx.Statement.Context == nil {
		return 0, false
	}
	start, ok := tx.Statement.Context.Value(statementStartKey{}).(time.Time)
	if !ok {
		return 0, false
	}
	return time.Since(start), true
}

func sqlVerb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "OTHER"
	}
	switch verb := strings.ToUpper(fields[0]); verb {
	case "SELECT", "INSERT", "UPDATE", "DELETE":
		return verb
	case "WITH":
		return "SELECT"
	default:
		return "OTHER"
	}
}
