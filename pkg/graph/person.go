package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/sorrel/pkg/models"
	"github.com/Ramsey-B/sorrel/pkg/tracing"
)

// PersonService mirrors person nodes and merge outcomes into the graph
// database. The graph is a read-model only; Postgres stays the source of
// truth, so every method is safe to retry and a nil client disables the
// whole projection.
type PersonService struct {
	client *Client
	logger ectologger.Logger
}

// NewPersonService creates a new person graph service
func NewPersonService(client *Client, logger ectologger.Logger) *PersonService {
	return &PersonService{
		client: client,
		logger: logger,
	}
}

func (s *PersonService) enabled() bool {
	return s != nil && s.client != nil
}

// UpsertPerson creates or updates a person node in the graph
func (s *PersonService) UpsertPerson(ctx context.Context, person *models.Person) error {
	if !s.enabled() {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "graph.PersonService.UpsertPerson")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"person_id": person.ID,
		"tenant_id": person.TenantID,
	})

	props := map[string]any{
		"id":           person.ID,
		"tenant_id":    person.TenantID,
		"display_name": person.DisplayName,
		"created_at":   person.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		"updated_at":   person.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if person.Locality != nil {
		props["locality"] = *person.Locality
	}

	cypher := `
		MERGE (p:Person {id: $id, tenant_id: $tenant_id})
		SET p = $props
		RETURN p
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"id":        person.ID,
			"tenant_id": person.TenantID,
			"props":     props,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		log.WithError(err).Error("Failed to upsert person in graph")
		return fmt.Errorf("failed to upsert person in graph: %w", err)
	}

	log.Debug("Upserted person in graph")
	return nil
}

// RecordMerge marks the retired node and links it to the surviving node
// with a MERGED_INTO edge. Both nodes are MERGEd first so the projection
// works even if the create event never reached the graph.
func (s *PersonService) RecordMerge(ctx context.Context, tenantID string, sourceRootID, targetRootID string) error {
	if !s.enabled() {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "graph.PersonService.RecordMerge")
	defer span.End()

	cypher := `
		MERGE (s:Person {id: $source_id, tenant_id: $tenant_id})
		MERGE (t:Person {id: $target_id, tenant_id: $tenant_id})
		MERGE (s)-[r:MERGED_INTO]->(t)
		SET s.merged = true, r.recorded_at = datetime()
		RETURN r
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"source_id": sourceRootID,
			"target_id": targetRootID,
			"tenant_id": tenantID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":        tenantID,
			"source_person_id": sourceRootID,
			"target_person_id": targetRootID,
		}).Error("Failed to record merge in graph")
		return fmt.Errorf("failed to record merge in graph: %w", err)
	}

	return nil
}

// RecordUndo removes the MERGED_INTO edge and restores the source node
func (s *PersonService) RecordUndo(ctx context.Context, tenantID string, sourceRootID, targetRootID string) error {
	if !s.enabled() {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "graph.PersonService.RecordUndo")
	defer span.End()

	cypher := `
		MATCH (s:Person {id: $source_id, tenant_id: $tenant_id})
		OPTIONAL MATCH (s)-[r:MERGED_INTO]->(:Person {id: $target_id, tenant_id: $tenant_id})
		DELETE r
		SET s.merged = false
		RETURN s
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"source_id": sourceRootID,
			"target_id": targetRootID,
			"tenant_id": tenantID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tenant_id":        tenantID,
			"source_person_id": sourceRootID,
			"target_person_id": targetRootID,
		}).Error("Failed to record merge reversal in graph")
		return fmt.Errorf("failed to record merge reversal in graph: %w", err)
	}

	return nil
}

// MergeChain returns the chain of retired person ids leading to root,
// useful for debugging the projection against the Postgres merge log.
func (s *PersonService) MergeChain(ctx context.Context, tenantID string, rootID string) ([]string, error) {
	if !s.enabled() {
		return nil, nil
	}

	ctx, span := tracing.StartSpan(ctx, "graph.PersonService.MergeChain")
	defer span.End()

	cypher := `
		MATCH (s:Person {tenant_id: $tenant_id})-[:MERGED_INTO*]->(t:Person {id: $root_id, tenant_id: $tenant_id})
		RETURN s.id AS id
	`

	out, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"root_id":   rootID,
			"tenant_id": tenantID,
		})
		if err != nil {
			return nil, err
		}

		var ids []string
		for result.Next(ctx) {
			if id, ok := result.Record().Get("id"); ok {
				if str, ok := id.(string); ok {
					ids = append(ids, str)
				}
			}
		}
		return ids, result.Err()
	})

	if err != nil {
		return nil, fmt.Errorf("failed to read merge chain from graph: %w", err)
	}

	ids, _ := out.([]string)
	return ids, nil
}
