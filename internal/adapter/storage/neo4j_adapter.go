package storage

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/rl1809/cart-checkout/internal/core/domain"
)

// coPurchasedQuery ranks products bought by anyone who bought one of
// $names. Equal counts are ordered by name.
const coPurchasedQuery = `
UNWIND $names AS item
MATCH (p:Product {name: item})<-[:PURCHASED]-(u:User)-[:PURCHASED]->(rec:Product)
WHERE NOT rec.name IN $names
RETURN rec.name AS recommendation, count(*) AS freq
ORDER BY freq DESC, recommendation ASC
LIMIT $limit
`

type Neo4jAdapter struct {
	driver   neo4j.DriverWithContext
	database string
}

func NewNeo4jAdapter(driver neo4j.DriverWithContext, database string) *Neo4jAdapter {
	return &Neo4jAdapter{driver: driver, database: database}
}

// CoPurchased opens a read session per call and always closes it.
func (n *Neo4jAdapter) CoPurchased(ctx context.Context, names []string, limit int) ([]string, error) {
	if len(names) == 0 || limit <= 0 {
		return []string{}, nil
	}

	session := n.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: n.database,
	})
	defer session.Close(ctx)

	recs, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]string, error) {
		result, err := tx.Run(ctx, coPurchasedQuery, map[string]any{
			"names": names,
			"limit": int64(limit),
		})
		if err != nil {
			return nil, err
		}

		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}

		out := make([]string, 0, len(records))
		for _, record := range records {
			value, ok := record.Get("recommendation")
			if !ok {
				continue
			}
			if name, ok := value.(string); ok {
				out = append(out, name)
			}
		}
		return out, nil
	})
	if err != nil {
		if neo4j.IsConnectivityError(err) {
			return nil, fmt.Errorf("query co-purchases: %w: %w", domain.ErrStoreUnavailable, err)
		}
		return nil, storeErr("query co-purchases", err)
	}
	return recs, nil
}

func (n *Neo4jAdapter) Ping(ctx context.Context) error {
	return n.driver.VerifyConnectivity(ctx)
}
