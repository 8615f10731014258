package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/ethereum/go-ethereum/common"
	"github.com/lib/pq"

	"github.com/omni/rollup-bridge-reconciler/db"
	"github.com/omni/rollup-bridge-reconciler/entity"
)

// ensureBatchSize keeps a single upsert well below the postgres bind parameter limit.
const ensureBatchSize = 500

var bridgeTxnColumns = []string{
	"chain_id", "tx_hash", "type", "sender", "asset_name", "asset_type", "value", "l1_token",
	"receipt_status", "receipt_block_hash", "receipt_block_number", "seq_num",
	"partner_tx_hash", "partner_chain_id", "batch_number", "batch_index",
	"outgoing_message_state", "timestamp_created", "timestamp_resolved",
}

type bridgeTxnRow struct {
	ChainID              int64           `db:"chain_id"`
	TxHash               common.Hash     `db:"tx_hash"`
	Type                 string          `db:"type"`
	Sender               common.Address  `db:"sender"`
	AssetName            string          `db:"asset_name"`
	AssetType            string          `db:"asset_type"`
	Value                string          `db:"value"`
	L1Token              *common.Address `db:"l1_token"`
	ReceiptStatus        sql.NullInt64   `db:"receipt_status"`
	ReceiptBlockHash     *common.Hash    `db:"receipt_block_hash"`
	ReceiptBlockNumber   sql.NullInt64   `db:"receipt_block_number"`
	SeqNum               sql.NullString  `db:"seq_num"`
	PartnerTxHash        *common.Hash    `db:"partner_tx_hash"`
	PartnerChainID       sql.NullInt64   `db:"partner_chain_id"`
	BatchNumber          sql.NullString  `db:"batch_number"`
	BatchIndex           sql.NullString  `db:"batch_index"`
	OutgoingMessageState string          `db:"outgoing_message_state"`
	TimestampCreated     time.Time       `db:"timestamp_created"`
	TimestampResolved    *time.Time      `db:"timestamp_resolved"`
	UpdatedAt            time.Time       `db:"updated_at"`
}

func bigToNullString(v *big.Int) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func nullStringToBig(v sql.NullString) (*big.Int, error) {
	if !v.Valid {
		return nil, nil
	}
	res, ok := new(big.Int).SetString(v.String, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal %q", v.String)
	}
	return res, nil
}

func newBridgeTxnRow(txn *entity.BridgeTxn) *bridgeTxnRow {
	row := &bridgeTxnRow{
		ChainID:              int64(txn.ChainID),
		TxHash:               txn.TxHash,
		Type:                 string(txn.Type),
		Sender:               txn.Sender,
		AssetName:            txn.AssetName,
		AssetType:            string(txn.AssetType),
		Value:                txn.Value,
		L1Token:              txn.L1Token,
		SeqNum:               bigToNullString(txn.SeqNum),
		PartnerTxHash:        txn.PartnerTxHash,
		BatchNumber:          bigToNullString(txn.BatchNumber),
		BatchIndex:           bigToNullString(txn.BatchIndex),
		OutgoingMessageState: string(txn.OutgoingMessageState),
		TimestampCreated:     txn.TimestampCreated,
		TimestampResolved:    txn.TimestampResolved,
	}
	if txn.Receipt != nil {
		blockHash := txn.Receipt.BlockHash
		row.ReceiptStatus = sql.NullInt64{Int64: int64(txn.Receipt.Status), Valid: true}
		row.ReceiptBlockHash = &blockHash
		row.ReceiptBlockNumber = sql.NullInt64{Int64: int64(txn.Receipt.BlockNumber), Valid: true}
	}
	if txn.PartnerTxHash != nil {
		row.PartnerChainID = sql.NullInt64{Int64: int64(txn.PartnerChainID), Valid: true}
	}
	return row
}

func (row *bridgeTxnRow) values() []interface{} {
	return []interface{}{
		row.ChainID, row.TxHash, row.Type, row.Sender, row.AssetName, row.AssetType, row.Value, row.L1Token,
		row.ReceiptStatus, row.ReceiptBlockHash, row.ReceiptBlockNumber, row.SeqNum,
		row.PartnerTxHash, row.PartnerChainID, row.BatchNumber, row.BatchIndex,
		row.OutgoingMessageState, row.TimestampCreated, row.TimestampResolved,
	}
}

func (row *bridgeTxnRow) toEntity() (*entity.BridgeTxn, error) {
	txn := &entity.BridgeTxn{
		Type:                 entity.TxType(row.Type),
		ChainID:              uint64(row.ChainID),
		TxHash:               row.TxHash,
		Sender:               row.Sender,
		AssetName:            row.AssetName,
		AssetType:            entity.AssetType(row.AssetType),
		Value:                row.Value,
		L1Token:              row.L1Token,
		PartnerTxHash:        row.PartnerTxHash,
		OutgoingMessageState: entity.OutgoingMessageState(row.OutgoingMessageState),
		TimestampCreated:     row.TimestampCreated,
		TimestampResolved:    row.TimestampResolved,
	}
	if row.ReceiptStatus.Valid {
		txn.Receipt = &entity.Receipt{
			Status:          uint64(row.ReceiptStatus.Int64),
			TransactionHash: row.TxHash,
			BlockNumber:     uint64(row.ReceiptBlockNumber.Int64),
		}
		if row.ReceiptBlockHash != nil {
			txn.Receipt.BlockHash = *row.ReceiptBlockHash
		}
	}
	if row.PartnerChainID.Valid {
		txn.PartnerChainID = uint64(row.PartnerChainID.Int64)
	}
	var err error
	if txn.SeqNum, err = nullStringToBig(row.SeqNum); err != nil {
		return nil, fmt.Errorf("seq_num: %w", err)
	}
	if txn.BatchNumber, err = nullStringToBig(row.BatchNumber); err != nil {
		return nil, fmt.Errorf("batch_number: %w", err)
	}
	if txn.BatchIndex, err = nullStringToBig(row.BatchIndex); err != nil {
		return nil, fmt.Errorf("batch_index: %w", err)
	}
	return txn, nil
}

func chainIDsArray(chainIDs []uint64) pq.Int64Array {
	res := make(pq.Int64Array, len(chainIDs))
	for i, id := range chainIDs {
		res[i] = int64(id)
	}
	return res
}

type bridgeTxnsRepo basePostgresRepo

func NewBridgeTxnsRepo(table string, db *db.DB) entity.BridgeTxnsRepo {
	return (*bridgeTxnsRepo)(newBasePostgresRepo(table, db))
}

func (r *bridgeTxnsRepo) ensureQuery(txns []*entity.BridgeTxn) (string, []interface{}, error) {
	builder := sq.Insert(r.table).Columns(bridgeTxnColumns...)
	for _, txn := range txns {
		builder = builder.Values(newBridgeTxnRow(txn).values()...)
	}
	// receipts, seq numbers and batch coordinates are write-once
	return builder.
		Suffix(`ON CONFLICT (chain_id, tx_hash) DO UPDATE SET
			receipt_status = COALESCE(` + r.table + `.receipt_status, EXCLUDED.receipt_status),
			receipt_block_hash = COALESCE(` + r.table + `.receipt_block_hash, EXCLUDED.receipt_block_hash),
			receipt_block_number = COALESCE(` + r.table + `.receipt_block_number, EXCLUDED.receipt_block_number),
			seq_num = COALESCE(` + r.table + `.seq_num, EXCLUDED.seq_num),
			partner_tx_hash = EXCLUDED.partner_tx_hash,
			partner_chain_id = EXCLUDED.partner_chain_id,
			batch_number = COALESCE(` + r.table + `.batch_number, EXCLUDED.batch_number),
			batch_index = COALESCE(` + r.table + `.batch_index, EXCLUDED.batch_index),
			outgoing_message_state = EXCLUDED.outgoing_message_state,
			timestamp_resolved = EXCLUDED.timestamp_resolved,
			updated_at = NOW()`).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

// Ensure upserts all legs in one transaction, chunked to keep statements small.
func (r *bridgeTxnsRepo) Ensure(ctx context.Context, txns ...*entity.BridgeTxn) error {
	return r.db.InTx(ctx, func(ctx context.Context) error {
		for start := 0; start < len(txns); start += ensureBatchSize {
			end := start + ensureBatchSize
			if end > len(txns) {
				end = len(txns)
			}
			q, args, err := r.ensureQuery(txns[start:end])
			if err != nil {
				return fmt.Errorf("can't build query: %w", err)
			}
			if _, err = r.db.ExecContext(ctx, q, args...); err != nil {
				return fmt.Errorf("can't insert bridge transactions: %w", err)
			}
		}
		return nil
	})
}

func (r *bridgeTxnsRepo) findQuery(chainIDs []uint64) (string, []interface{}, error) {
	return sq.Select("*").
		From(r.table).
		Where(sq.Expr("chain_id = ANY(?)", chainIDsArray(chainIDs))).
		OrderBy("chain_id", "timestamp_created").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func (r *bridgeTxnsRepo) FindByChainIDs(ctx context.Context, chainIDs []uint64) ([]*entity.BridgeTxn, error) {
	q, args, err := r.findQuery(chainIDs)
	if err != nil {
		return nil, fmt.Errorf("can't build query: %w", err)
	}
	rows := make([]*bridgeTxnRow, 0, 64)
	if err = r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("can't get bridge transactions: %w", err)
	}
	res := make([]*entity.BridgeTxn, len(rows))
	for i, row := range rows {
		if res[i], err = row.toEntity(); err != nil {
			return nil, fmt.Errorf("can't decode bridge transaction %s: %w", row.TxHash, err)
		}
	}
	return res, nil
}

func (r *bridgeTxnsRepo) deleteQuery(chainIDs []uint64) (string, []interface{}, error) {
	return sq.Delete(r.table).
		Where(sq.Expr("chain_id = ANY(?)", chainIDsArray(chainIDs))).
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

func (r *bridgeTxnsRepo) DeleteByChainIDs(ctx context.Context, chainIDs []uint64) error {
	q, args, err := r.deleteQuery(chainIDs)
	if err != nil {
		return fmt.Errorf("can't build query: %w", err)
	}
	if _, err = r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("can't delete bridge transactions: %w", err)
	}
	return nil
}
