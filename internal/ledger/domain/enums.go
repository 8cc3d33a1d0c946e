package domain

import (
	"database/sql/driver"
	"fmt"
)

type IOClass string

const (
	IOClassSystem IOClass = "system"
	IOClassUser   IOClass = "user"
)

// IODirection restricts the sign of differences posted with a type.
type IODirection string

const (
	IOBidirectional IODirection = "inout"
	IOIncoming      IODirection = "in"
	IOOutgoing      IODirection = "out"
)

// Allows reports whether a difference of the given sign may be posted.
func (d IODirection) Allows(sign int) bool {
	switch d {
	case IOIncoming:
		return sign >= 0
	case IOOutgoing:
		return sign <= 0
	}
	return true
}

// IOFunction tags StashIO types that other components dispatch on.
type IOFunction string

const (
	FunctionRateQuotaPrepaid  IOFunction = "rate_qsum_pre"
	FunctionRateQuotaPostpaid IOFunction = "rate_qsum_post"
	FunctionRateUsage         IOFunction = "rate_usage"
	FunctionRateRollback      IOFunction = "rate_rollback"
	FunctionFutureConfirm     IOFunction = "future_confirm"
	FunctionTransferIn        IOFunction = "xfer_in"
	FunctionTransferOut       IOFunction = "xfer_out"
	FunctionServiceInitial    IOFunction = "ps_isum"
	FunctionServiceQuota      IOFunction = "ps_qsum"
)

// OperationType records why a balance-affecting event happened.
type OperationType string

const (
	OpSubQinQeg   OperationType = "sub_qin_qeg"
	OpSubMinQeg   OperationType = "sub_min_qeg"
	OpSubOQinQeg  OperationType = "sub_oqin_qeg"
	OpSubQinMeg   OperationType = "sub_qin_meg"
	OpSubQinOQeg  OperationType = "sub_qin_oqeg"
	OpSubMinMeg   OperationType = "sub_min_meg"
	OpSubOQinMeg  OperationType = "sub_oqin_meg"
	OpSubMinOQeg  OperationType = "sub_min_oqeg"
	OpSubOQinOQeg OperationType = "sub_oqin_oqeg"
	OpAddCash     OperationType = "add_cash"
	OpAddAuto     OperationType = "add_auto"
	OpOperator    OperationType = "oper"
	OpRollback    OperationType = "rollback"
)

// QuotaState is the per-direction classification used to pick a
// subtraction operation type.
type QuotaState uint8

const (
	// UnderQuota: no traffic beyond the quota.
	UnderQuota QuotaState = iota
	// Mixed: traffic beyond the quota that is accounted but not billed at a
	// positive price.
	Mixed
	// OverQuota: traffic beyond the quota billed at a positive price.
	OverQuota
)

var subtractOps = [3][3]OperationType{
	UnderQuota: {UnderQuota: OpSubQinQeg, Mixed: OpSubQinMeg, OverQuota: OpSubQinOQeg},
	Mixed:      {UnderQuota: OpSubMinQeg, Mixed: OpSubMinMeg, OverQuota: OpSubMinOQeg},
	OverQuota:  {UnderQuota: OpSubOQinQeg, Mixed: OpSubOQinMeg, OverQuota: OpSubOQinOQeg},
}

// SubtractOperation maps ingress and egress quota states to one of the nine
// subtraction operation types.
func SubtractOperation(ingress, egress QuotaState) OperationType {
	return subtractOps[ingress][egress]
}

var operationTypes = map[OperationType]struct{}{
	OpSubQinQeg: {}, OpSubMinQeg: {}, OpSubOQinQeg: {},
	OpSubQinMeg: {}, OpSubQinOQeg: {}, OpSubMinMeg: {},
	OpSubOQinMeg: {}, OpSubMinOQeg: {}, OpSubOQinOQeg: {},
	OpAddCash: {}, OpAddAuto: {}, OpOperator: {}, OpRollback: {},
}

func ParseOperationType(s string) (OperationType, error) {
	t := OperationType(s)
	if _, ok := operationTypes[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidOperationType, s)
	}
	return t, nil
}

func (t OperationType) Value() (driver.Value, error) {
	if _, err := ParseOperationType(string(t)); err != nil {
		return nil, err
	}
	return string(t), nil
}

func (t *OperationType) Scan(value any) error {
	var raw string
	switch v := value.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidOperationType, value)
	}
	parsed, err := ParseOperationType(raw)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
