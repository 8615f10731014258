package repository

import (
	"github.com/omni/rollup-bridge-reconciler/db"
	"github.com/omni/rollup-bridge-reconciler/entity"
	"github.com/omni/rollup-bridge-reconciler/repository/postgres"
)

type Repo struct {
	BridgeTxns entity.BridgeTxnsRepo
}

func NewRepo(db *db.DB) *Repo {
	return &Repo{
		BridgeTxns: postgres.NewBridgeTxnsRepo("bridge_txns", db),
	}
}
