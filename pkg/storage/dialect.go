package storage

// Dialect SQL方言接口（对外导出）
// 封装不同数据库的SQL语法差异
type Dialect interface {
	// Name 返回方言名称（如 "sqlite", "mysql", "postgres"）
	Name() string

	// DriverName 返回 database/sql 驱动名称
	DriverName() string

	// QuoteIdent 引用标识符
	// PostgreSQL/SQLite: "name"
	// MySQL: `name`
	QuoteIdent(name string) string

	// QualifiedTable 返回带schema限定并已引用的表名
	QualifiedTable(schema, table string) string

	// UpsertSQL 返回INSERT或UPDATE的SQL语句（sqlx命名参数形式）
	// tableName: 表名
	// columns: 列名列表
	// conflictColumn: 冲突判断列（通常是主键）
	// updateColumns: 需要更新的列（不含主键）
	UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string

	// CreateTableSQL 将基础DDL转换为当前数据库兼容格式
	CreateTableSQL(schema string) string

	// ConfigureDB 连接建立后需要执行的SQL（如SQLite的PRAGMA）
	ConfigureDB() []string
}
