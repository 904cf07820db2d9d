package economy

// UnitCost is the fixed exchange rate: tokens charged per ticket bought.
const UnitCost int64 = 52000

const (
	operationGetField = "get_field"
	operationBuy      = "buy"
	operationTransfer = "transfer"
	operationRecover  = "recover"

	operationStatusOK    = "ok"
	operationStatusError = "error"
)
