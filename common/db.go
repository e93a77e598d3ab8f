package common

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	g "github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
)

var dialect = g.Dialect("mysql")

// QueryArg 列表查询参数，Fields 一般由 EnumFields 生成
type QueryArg struct {
	Db      *sqlx.DB
	Table   string
	Fields  []interface{}
	Ex      []exp.Expression
	Order   []exp.OrderedExpression
	GroupBy []interface{}
	Offset  uint
	Limit   uint
}

// EnumFields 按结构体 db tag 枚举列名，tag 为 "-" 的字段跳过
func EnumFields(obj interface{}) []interface{} {
	rt := reflect.TypeOf(obj)
	if rt.Kind() != reflect.Struct {
		return nil
	}

	fields := make([]interface{}, 0, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		col := rt.Field(i).Tag.Get("db")
		if col == "" || col == "-" {
			continue
		}
		fields = append(fields, col)
	}
	return fields
}

// InsertCtx 经 goqu 生成带占位符的 INSERT 并在给定执行器上执行
func InsertCtx(ctx context.Context, exec sqlx.ExtContext, table string, rows ...interface{}) (sql.Result, error) {
	query, args, err := dialect.Insert(table).Rows(rows...).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build insert %s: %w", table, err)
	}
	return exec.ExecContext(ctx, query, args...)
}

// CountCtx 统计满足条件的行数
func CountCtx(ctx context.Context, exec sqlx.ExtContext, table string, ex ...exp.Expression) (int64, error) {
	query, args, err := dialect.Select(g.COUNT("*")).From(table).Where(ex...).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build count %s: %w", table, err)
	}
	var count int64
	if err := sqlx.GetContext(ctx, exec, &count, query, args...); err != nil {
		return 0, err
	}
	return count, nil
}

// SelectAllCtx 列表查询，条件、排序、分组、分页均可选
func SelectAllCtx(ctx context.Context, data interface{}, arg QueryArg) error {
	switch {
	case arg.Db == nil:
		return fmt.Errorf("invalid db")
	case arg.Table == "":
		return fmt.Errorf("invalid table")
	case len(arg.Fields) == 0:
		return fmt.Errorf("invalid fields")
	}

	ds := dialect.Select(arg.Fields...).From(arg.Table)
	if len(arg.Ex) > 0 {
		ds = ds.Where(arg.Ex...)
	}
	if len(arg.GroupBy) > 0 {
		ds = ds.GroupBy(arg.GroupBy...)
	}
	if len(arg.Order) > 0 {
		ds = ds.Order(arg.Order...)
	}
	if arg.Offset > 0 {
		ds = ds.Offset(arg.Offset)
	}
	if arg.Limit > 0 {
		ds = ds.Limit(arg.Limit)
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return fmt.Errorf("build select %s: %w", arg.Table, err)
	}
	return arg.Db.SelectContext(ctx, data, query, args...)
}
