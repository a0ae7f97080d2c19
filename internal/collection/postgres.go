package collection

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/nucleus/omrs-core/internal/instance"
	"github.com/nucleus/omrs-core/internal/omrserrors"
	"github.com/nucleus/omrs-core/internal/typedefs"
)

// PostgresCollection is the Postgres-backed MetadataCollection, grounded on
// the teacher's database.Client: sql.Open + connection pool tuning +
// golang-migrate schema management (database/client.go Migrate), and the
// store-core sibling module's JSONB-properties-plus-pq.Array-for-slices
// pattern for entities (platform/store-core/pkg/entity/postgres_registry.go).
type PostgresCollection struct {
	db       *sql.DB
	id       string
	name     string
	registry typedefs.TypeRegistry
}

// NewPostgresCollection opens databaseURL, tunes the pool the way the
// teacher's NewClient does, and runs migrations from migrationsPath.
func NewPostgresCollection(ctx context.Context, databaseURL, migrationsPath, collectionID, collectionName string, registry typedefs.TypeRegistry) (*PostgresCollection, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	c := &PostgresCollection{db: db, id: collectionID, name: collectionName, registry: registry}
	if migrationsPath != "" {
		if err := c.migrate(migrationsPath); err != nil {
			db.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *PostgresCollection) migrate(migrationsPath string) error {
	driver, err := postgres.WithInstance(c.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

func (c *PostgresCollection) Close() error { return c.db.Close() }

func (c *PostgresCollection) MetadataCollectionID() string   { return c.id }
func (c *PostgresCollection) MetadataCollectionName() string { return c.name }
func (c *PostgresCollection) Registry() typedefs.TypeRegistry { return c.registry }

func (c *PostgresCollection) GetEntitySummary(ctx context.Context, guid string) (instance.EntityLookup, error) {
	e, err := c.GetEntityDetail(ctx, guid)
	if err != nil {
		if _, ok := err.(*ErrNotFound); ok {
			return instance.NotFound(), nil
		}
		return instance.EntityLookup{}, err
	}
	if e.IsProxy {
		return instance.FoundProxyOnly(e.AsProxy()), nil
	}
	return instance.FoundFull(e), nil
}

func (c *PostgresCollection) GetEntityDetail(ctx context.Context, guid string) (*instance.Entity, error) {
	var e instance.Entity
	var typeGUID, typeName string
	var typeVersion int64
	var propsJSON, classJSON []byte

	err := c.db.QueryRowContext(ctx, `
		SELECT guid, type_guid, type_name, type_version, status, version,
		       create_time, update_time, provenance, metadata_collection_id,
		       metadata_collection_name, replicated_by, created_by, updated_by,
		       properties, classifications, is_proxy
		FROM omrs_entities WHERE guid = $1
	`, guid).Scan(
		&e.GUID, &typeGUID, &typeName, &typeVersion, &e.Status, &e.Version,
		&e.CreateTime, &e.UpdateTime, &e.Provenance, &e.MetadataCollectionID,
		&e.MetadataCollectionName, &e.ReplicatedBy, &e.CreatedBy, &e.UpdatedBy,
		&propsJSON, &classJSON, &e.IsProxy,
	)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Kind: "entity", GUID: guid}
	}
	if err != nil {
		return nil, omrserrors.Repository(true, fmt.Errorf("failed to get entity %s: %w", guid, err))
	}
	e.Type = instance.TypeDefSummary{GUID: typeGUID, Name: typeName, Version: typeVersion}
	if len(propsJSON) > 0 {
		if err := json.Unmarshal(propsJSON, &e.Properties); err != nil {
			return nil, fmt.Errorf("failed to unmarshal entity properties: %w", err)
		}
	}
	if len(classJSON) > 0 {
		if err := json.Unmarshal(classJSON, &e.Classifications); err != nil {
			return nil, fmt.Errorf("failed to unmarshal classifications: %w", err)
		}
	}
	return &e, nil
}

func (c *PostgresCollection) GetRelationship(ctx context.Context, guid string) (*instance.Relationship, error) {
	var r instance.Relationship
	var typeGUID, typeName string
	var typeVersion int64
	var propsJSON, oneJSON, twoJSON []byte

	err := c.db.QueryRowContext(ctx, `
		SELECT guid, type_guid, type_name, type_version, status, version,
		       create_time, update_time, provenance, metadata_collection_id,
		       metadata_collection_name, replicated_by, created_by, updated_by,
		       properties, entity_one_proxy, entity_two_proxy
		FROM omrs_relationships WHERE guid = $1
	`, guid).Scan(
		&r.GUID, &typeGUID, &typeName, &typeVersion, &r.Status, &r.Version,
		&r.CreateTime, &r.UpdateTime, &r.Provenance, &r.MetadataCollectionID,
		&r.MetadataCollectionName, &r.ReplicatedBy, &r.CreatedBy, &r.UpdatedBy,
		&propsJSON, &oneJSON, &twoJSON,
	)
	if err == sql.ErrNoRows {
		return nil, &ErrNotFound{Kind: "relationship", GUID: guid}
	}
	if err != nil {
		return nil, omrserrors.Repository(true, fmt.Errorf("failed to get relationship %s: %w", guid, err))
	}
	r.Type = instance.TypeDefSummary{GUID: typeGUID, Name: typeName, Version: typeVersion}
	if len(propsJSON) > 0 {
		if err := json.Unmarshal(propsJSON, &r.Properties); err != nil {
			return nil, fmt.Errorf("failed to unmarshal relationship properties: %w", err)
		}
	}
	if err := json.Unmarshal(oneJSON, &r.EntityOneProxy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entityOneProxy: %w", err)
	}
	if err := json.Unmarshal(twoJSON, &r.EntityTwoProxy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal entityTwoProxy: %w", err)
	}
	return &r, nil
}

func (c *PostgresCollection) FindEntities(ctx context.Context, typeGUID string, page PageSpec) ([]*instance.Entity, error) {
	query := `SELECT guid FROM omrs_entities WHERE status != 'DELETED'`
	args := []any{}
	if typeGUID != "" {
		query += ` AND type_guid = $1`
		args = append(args, typeGUID)
	}
	query += ` ORDER BY guid`
	if page.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.PageSize, page.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, omrserrors.Repository(true, fmt.Errorf("failed to list entities: %w", err))
	}
	defer rows.Close()

	var guids []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan entity guid: %w", err)
		}
		guids = append(guids, g)
	}

	out := make([]*instance.Entity, 0, len(guids))
	for _, g := range guids {
		e, err := c.GetEntityDetail(ctx, g)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *PostgresCollection) FindRelationships(ctx context.Context, typeGUID string, page PageSpec) ([]*instance.Relationship, error) {
	query := `SELECT guid FROM omrs_relationships WHERE status != 'DELETED'`
	args := []any{}
	if typeGUID != "" {
		query += ` AND type_guid = $1`
		args = append(args, typeGUID)
	}
	query += ` ORDER BY guid`
	if page.PageSize > 0 {
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", page.PageSize, page.Offset)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, omrserrors.Repository(true, fmt.Errorf("failed to list relationships: %w", err))
	}
	defer rows.Close()

	var guids []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("failed to scan relationship guid: %w", err)
		}
		guids = append(guids, g)
	}

	out := make([]*instance.Relationship, 0, len(guids))
	for _, g := range guids {
		r, err := c.GetRelationship(ctx, g)
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (c *PostgresCollection) SaveEntity(ctx context.Context, e *instance.Entity) error {
	propsJSON, err := json.Marshal(e.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal entity properties: %w", err)
	}
	classJSON, err := json.Marshal(e.Classifications)
	if err != nil {
		return fmt.Errorf("failed to marshal classifications: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO omrs_entities (
			guid, type_guid, type_name, type_version, status, version,
			create_time, update_time, provenance, metadata_collection_id,
			metadata_collection_name, replicated_by, created_by, updated_by,
			properties, classifications, is_proxy
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (guid) DO UPDATE SET
			type_guid = EXCLUDED.type_guid, type_name = EXCLUDED.type_name,
			type_version = EXCLUDED.type_version, status = EXCLUDED.status,
			version = EXCLUDED.version, update_time = EXCLUDED.update_time,
			provenance = EXCLUDED.provenance,
			metadata_collection_id = EXCLUDED.metadata_collection_id,
			metadata_collection_name = EXCLUDED.metadata_collection_name,
			replicated_by = EXCLUDED.replicated_by, updated_by = EXCLUDED.updated_by,
			properties = EXCLUDED.properties, classifications = EXCLUDED.classifications,
			is_proxy = EXCLUDED.is_proxy
	`, e.GUID, e.Type.GUID, e.Type.Name, e.Type.Version, e.Status, e.Version,
		e.CreateTime, e.UpdateTime, e.Provenance, e.MetadataCollectionID,
		e.MetadataCollectionName, e.ReplicatedBy, e.CreatedBy, e.UpdatedBy,
		propsJSON, classJSON, e.IsProxy)
	if err != nil {
		return omrserrors.Repository(true, fmt.Errorf("failed to save entity %s: %w", e.GUID, err))
	}
	return nil
}

func (c *PostgresCollection) SaveEntityReferenceCopy(ctx context.Context, e *instance.Entity) error {
	return c.SaveEntity(ctx, e)
}

func (c *PostgresCollection) SaveRelationship(ctx context.Context, r *instance.Relationship) error {
	propsJSON, err := json.Marshal(r.Properties)
	if err != nil {
		return fmt.Errorf("failed to marshal relationship properties: %w", err)
	}
	oneJSON, err := json.Marshal(r.EntityOneProxy)
	if err != nil {
		return fmt.Errorf("failed to marshal entityOneProxy: %w", err)
	}
	twoJSON, err := json.Marshal(r.EntityTwoProxy)
	if err != nil {
		return fmt.Errorf("failed to marshal entityTwoProxy: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO omrs_relationships (
			guid, type_guid, type_name, type_version, status, version,
			create_time, update_time, provenance, metadata_collection_id,
			metadata_collection_name, replicated_by, created_by, updated_by,
			properties, entity_one_proxy, entity_two_proxy
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (guid) DO UPDATE SET
			type_guid = EXCLUDED.type_guid, type_name = EXCLUDED.type_name,
			type_version = EXCLUDED.type_version, status = EXCLUDED.status,
			version = EXCLUDED.version, update_time = EXCLUDED.update_time,
			provenance = EXCLUDED.provenance,
			metadata_collection_id = EXCLUDED.metadata_collection_id,
			metadata_collection_name = EXCLUDED.metadata_collection_name,
			replicated_by = EXCLUDED.replicated_by, updated_by = EXCLUDED.updated_by,
			properties = EXCLUDED.properties,
			entity_one_proxy = EXCLUDED.entity_one_proxy,
			entity_two_proxy = EXCLUDED.entity_two_proxy
	`, r.GUID, r.Type.GUID, r.Type.Name, r.Type.Version, r.Status, r.Version,
		r.CreateTime, r.UpdateTime, r.Provenance, r.MetadataCollectionID,
		r.MetadataCollectionName, r.ReplicatedBy, r.CreatedBy, r.UpdatedBy,
		propsJSON, oneJSON, twoJSON)
	if err != nil {
		return omrserrors.Repository(true, fmt.Errorf("failed to save relationship %s: %w", r.GUID, err))
	}
	return nil
}

func (c *PostgresCollection) SaveRelationshipReferenceCopy(ctx context.Context, r *instance.Relationship) error {
	return c.SaveRelationship(ctx, r)
}

func (c *PostgresCollection) DeleteEntity(ctx context.Context, guid string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE omrs_entities SET status = 'DELETED', update_time = NOW() WHERE guid = $1`, guid)
	if err != nil {
		return omrserrors.Repository(true, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Kind: "entity", GUID: guid}
	}
	return nil
}

func (c *PostgresCollection) PurgeEntity(ctx context.Context, guid string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM omrs_entities WHERE guid = $1`, guid)
	if err != nil {
		return omrserrors.Repository(true, err)
	}
	return nil
}

func (c *PostgresCollection) DeleteRelationship(ctx context.Context, guid string) error {
	res, err := c.db.ExecContext(ctx, `UPDATE omrs_relationships SET status = 'DELETED', update_time = NOW() WHERE guid = $1`, guid)
	if err != nil {
		return omrserrors.Repository(true, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Kind: "relationship", GUID: guid}
	}
	return nil
}

func (c *PostgresCollection) PurgeRelationship(ctx context.Context, guid string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM omrs_relationships WHERE guid = $1`, guid)
	if err != nil {
		return omrserrors.Repository(true, err)
	}
	return nil
}

// PurgeEntityReferenceCopy removes a reference copy only if it is actually a
// reference copy homed at homeMetadataCollectionID, not the local master.
func (c *PostgresCollection) PurgeEntityReferenceCopy(ctx context.Context, guid, homeMetadataCollectionID string) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM omrs_entities WHERE guid = $1 AND metadata_collection_id = $2 AND metadata_collection_id != $3`,
		guid, homeMetadataCollectionID, c.id)
	if err != nil {
		return omrserrors.Repository(true, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Kind: "entity", GUID: guid}
	}
	return nil
}

func (c *PostgresCollection) PurgeRelationshipReferenceCopy(ctx context.Context, guid, homeMetadataCollectionID string) error {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM omrs_relationships WHERE guid = $1 AND metadata_collection_id = $2 AND metadata_collection_id != $3`,
		guid, homeMetadataCollectionID, c.id)
	if err != nil {
		return omrserrors.Repository(true, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ErrNotFound{Kind: "relationship", GUID: guid}
	}
	return nil
}

func (c *PostgresCollection) ReIdentifyEntity(ctx context.Context, originalGUID, newGUID string) (*instance.Entity, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE omrs_entities SET guid = $1, update_time = NOW() WHERE guid = $2`, newGUID, originalGUID)
	if err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &ErrNotFound{Kind: "entity", GUID: originalGUID}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit re-identify: %w", err)
	}
	return c.GetEntityDetail(ctx, newGUID)
}

func (c *PostgresCollection) ReIdentifyRelationship(ctx context.Context, originalGUID, newGUID string) (*instance.Relationship, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE omrs_relationships SET guid = $1, update_time = NOW() WHERE guid = $2`, newGUID, originalGUID)
	if err != nil {
		return nil, omrserrors.Repository(true, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, &ErrNotFound{Kind: "relationship", GUID: originalGUID}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit re-identify: %w", err)
	}
	return c.GetRelationship(ctx, newGUID)
}
