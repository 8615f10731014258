package bridgeabi

//nolint:golint
import (
	_ "embed"

	"github.com/omni/rollup-bridge-reconciler/contract/abi"
)

//go:embed inbox.json
var inboxJSONABI string

//go:embed arbsys.json
var arbSysJSONABI string

//go:embed gateway_router.json
var gatewayRouterJSONABI string

//go:embed node_interface.json
var nodeInterfaceJSONABI string

//go:embed outbox.json
var outboxJSONABI string

//go:embed outbox_entry.json
var outboxEntryJSONABI string

const (
	InboxMessageDelivered           = "event InboxMessageDelivered(uint256 indexed messageNum, bytes data)"
	InboxMessageDeliveredFromOrigin = "event InboxMessageDeliveredFromOrigin(uint256 indexed messageNum)"
	L2ToL1Transaction               = "event L2ToL1Transaction(address caller, address indexed destination, uint256 indexed uniqueId, uint256 indexed batchNumber, uint256 indexInBatch, uint256 arbBlockNum, uint256 ethBlockNum, uint256 timestamp, uint256 callvalue, bytes data)"
)

var (
	InboxABI         = abi.MustReadABI(inboxJSONABI)
	ArbSysABI        = abi.MustReadABI(arbSysJSONABI)
	GatewayRouterABI = abi.MustReadABI(gatewayRouterJSONABI)
	NodeInterfaceABI = abi.MustReadABI(nodeInterfaceJSONABI)
	OutboxABI        = abi.MustReadABI(outboxJSONABI)
	OutboxEntryABI   = abi.MustReadABI(outboxEntryJSONABI)

	InboxMessageDeliveredEventSignature = InboxABI.Events["InboxMessageDelivered"].ID
	L2ToL1TransactionEventSignature     = ArbSysABI.Events["L2ToL1Transaction"].ID
)
