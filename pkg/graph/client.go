// Package graph turns validated extraction results into idempotent upserts
// against a GraphStore.
package graph

import (
	"errors"
	"time"

	"github.com/OFFIS-RIT/newsgraph/pkg/store"
)

// Engine is the only writer to the graph store. It is safe for concurrent
// use by multiple articles.
//
// An Engine should be created using NewEngine.
type Engine struct {
	store           store.GraphStore
	parallelUpserts int
	now             func() time.Time
}

// NewEngineParams defines the configuration for a new Engine.
//
// Store receives every upsert. ParallelUpserts bounds the concurrent entity
// upserts of one article (default 4). Clock defaults to time.Now.
type NewEngineParams struct {
	Store           store.GraphStore
	ParallelUpserts int
	Clock           func() time.Time
}

// NewEngine creates an Engine.
//
// Example:
//
//	engine, err := graph.NewEngine(graph.NewEngineParams{
//		Store:           memory.New(),
//		ParallelUpserts: 8,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
func NewEngine(params NewEngineParams) (*Engine, error) {
	if params.Store == nil {
		return nil, errors.New("graph store is nil")
	}
	parallel := params.ParallelUpserts
	if parallel <= 0 {
		parallel = 4
	}
	now := params.Clock
	if now == nil {
		now = time.Now
	}
	return &Engine{
		store:           params.Store,
		parallelUpserts: parallel,
		now:             now,
	}, nil
}
