package schema

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const loadQuery = `
SELECT
	c.table_schema, c.table_name, c.column_name, c.data_type, c.is_nullable
FROM information_schema.columns c
JOIN information_schema.tables t
	ON t.table_schema = c.table_schema AND t.table_name = c.table_name
WHERE c.table_schema = $1
ORDER BY c.table_name, c.ordinal_position
`

type Cache struct {
	mu       sync.RWMutex
	entities map[string]*EntityDef
	byID     map[uuid.UUID]*EntityDef
}

func NewCache() *Cache {
	return &Cache{
		entities: make(map[string]*EntityDef),
		byID:     make(map[uuid.UUID]*EntityDef),
	}
}

// NewCacheFromEntities returns a cache pre-populated with the given entities.
func NewCacheFromEntities(entities ...*EntityDef) *Cache {
	c := NewCache()
	for _, e := range entities {
		c.Put(e)
	}
	return c
}

// Load replaces the cache contents with every table of the given database
// schema. Entities are named after their table.
func (c *Cache) Load(ctx context.Context, pool *pgxpool.Pool, dbSchema string) error {
	rows, err := pool.Query(ctx, loadQuery, dbSchema)
	if err != nil {
		return fmt.Errorf("schema cache load: %w", err)
	}
	defer rows.Close()

	entities := make(map[string]*EntityDef)

	for rows.Next() {
		var (
			tSchema  string
			tName    string
			cName    string
			cType    string
			nullable string
		)
		if err := rows.Scan(&tSchema, &tName, &cName, &cType, &nullable); err != nil {
			return fmt.Errorf("schema cache scan: %w", err)
		}

		ent, exists := entities[tName]
		if !exists {
			ent = &EntityDef{
				ID:     uuid.New(),
				Name:   tName,
				Schema: tSchema,
				Table:  tName,
			}
			entities[tName] = ent
		}
		ent.AddColumn(ColumnDef{
			Name:     cName,
			Type:     ColumnTypeOf(cType),
			Nullable: nullable == "YES",
		})
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("schema cache rows: %w", err)
	}

	byID := make(map[uuid.UUID]*EntityDef, len(entities))
	for _, ent := range entities {
		byID[ent.ID] = ent
	}

	c.mu.Lock()
	c.entities = entities
	c.byID = byID
	c.mu.Unlock()

	return nil
}

// Put adds or replaces an entity.
func (c *Cache) Put(ent *EntityDef) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.entities[ent.Name]; ok {
		delete(c.byID, old.ID)
	}
	c.entities[ent.Name] = ent
	c.byID[ent.ID] = ent
}

func (c *Cache) Get(name string) *EntityDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entities[name]
}

// GetByID finds an entity definition by its UUID.
func (c *Cache) GetByID(id uuid.UUID) *EntityDef {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byID[id]
}

// EntityCount returns the number of loaded entities.
func (c *Cache) EntityCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entities)
}

// ColumnTypeOf maps an information_schema data_type (or a sources-file type
// name) onto a ColumnType.
func ColumnTypeOf(dataType string) ColumnType {
	switch dataType {
	case "text", "character varying", "character", "varchar", "char", "TEXT":
		return ColumnText
	case "integer", "bigint", "smallint", "int", "INTEGER":
		return ColumnInteger
	case "numeric", "double precision", "real", "decimal", "float", "NUMERIC":
		return ColumnNumeric
	case "boolean", "bool", "BOOLEAN":
		return ColumnBoolean
	case "date", "DATE":
		return ColumnDate
	case "timestamp with time zone", "timestamp without time zone", "timestamp", "timestamptz", "TIMESTAMP":
		return ColumnTimestamp
	case "uuid", "UUID":
		return ColumnUUID
	case "json", "jsonb", "JSON":
		return ColumnJSON
	default:
		return ColumnOther
	}
}
