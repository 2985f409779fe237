package registry

import (
	memdb "github.com/hashicorp/go-memdb"
	"github.com/on-the-ground/effect_ive_store/saga"
	"github.com/on-the-ground/effect_ive_store/store"
)

const (
	tableReducer = "reducer"
	tableSaga    = "saga"

	indexID  = "id"
	indexSeq = "seq"
)

type reducerEntry struct {
	Name    string
	Seq     uint64
	Reducer store.Reducer
}

type sagaEntry struct {
	Name string
	Seq  uint64
	Saga saga.Saga
}

func tableSchema(name string) *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: name,
		Indexes: map[string]*memdb.IndexSchema{
			indexID: {
				Name:    indexID,
				Unique:  true,
				Indexer: &memdb.StringFieldIndex{Field: "Name"},
			},
			indexSeq: {
				Name:    indexSeq,
				Unique:  true,
				Indexer: &memdb.UintFieldIndex{Field: "Seq"},
			},
		},
	}
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableReducer: tableSchema(tableReducer),
			tableSaga:    tableSchema(tableSaga),
		},
	}
}
